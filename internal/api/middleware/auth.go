// auth.go — JWT middleware для аутентификации и авторизации Register Module.
// Извлекает claims из Keycloak JWT: роли из realm_access.roles и арендатора
// из настраиваемого claim. Права проверяются по матрице rbac.
// Fallback-валидация подписи через JWKS Keycloak (основная — на API Gateway).
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/complyreg/register-module/internal/api/errors"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims — извлечённые и обработанные claims из Keycloak JWT.
// Помещаются в контекст запроса для downstream handlers.
type AuthClaims struct {
	// Subject — sub из JWT (Keycloak user ID).
	Subject string
	// PreferredUsername — preferred_username из JWT.
	PreferredUsername string
	// Email — email из JWT.
	Email string
	// Roles — известные реестру роли из realm_access.roles.
	Roles []string
	// TenantID — арендатор из claim RM_JWT_TENANT_CLAIM (nil — не указан).
	TenantID *string
}

// HasRole проверяет наличие роли.
func (c *AuthClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Can проверяет право по матрице ролей.
func (c *AuthClaims) Can(p rbac.Permission) bool {
	return rbac.Allowed(c.Roles, p)
}

// UserSyncer — сохранение пользователя из токена в БД.
// Реализуется service.UserSync.
type UserSyncer interface {
	Sync(ctx context.Context, u model.User) error
}

// keycloakClaims — raw claims из Keycloak JWT для парсинга.
type keycloakClaims struct {
	jwt.RegisteredClaims
	// PreferredUsername — имя пользователя.
	PreferredUsername string `json:"preferred_username"`
	// Email — электронная почта.
	Email string `json:"email"`
	// RealmAccess — вложенная структура для realm_access.roles.
	RealmAccess *realmAccess `json:"realm_access,omitempty"`

	// all — все claims токена; нужны для claim арендатора с настраиваемым именем
	all map[string]any
}

// UnmarshalJSON разбирает известные поля и сохраняет все claims.
func (c *keycloakClaims) UnmarshalJSON(data []byte) error {
	type plain keycloakClaims
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}
	return json.Unmarshal(data, &c.all)
}

// realmAccess — вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS Keycloak.
type JWTAuth struct {
	jwks        keyfunc.Keyfunc
	logger      *slog.Logger
	users       UserSyncer
	issuer      string
	tenantClaim string
	jwtLeeway   time.Duration
}

// AuthOptions — параметры JWT middleware.
type AuthOptions struct {
	// URL к JWKS endpoint Keycloak
	JWKSURL string
	// Опциональный путь к CA-сертификату для TLS
	CACertPath string
	// Ожидаемый issuer (пусто — не проверяется)
	Issuer string
	// Имя claim с арендатором
	TenantClaim string
	// Таймаут HTTP-клиента JWKS (RM_JWKS_CLIENT_TIMEOUT)
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей (RM_JWKS_REFRESH_INTERVAL)
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (RM_JWT_LEEWAY)
	Leeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из Keycloak.
// Фоновое обновление ключей работает до отмены ctx.
// users — синхронизация пользователей в БД (может быть nil).
func NewJWTAuth(ctx context.Context, opts AuthOptions, users UserSyncer, logger *slog.Logger) (*JWTAuth, error) {
	// HTTP-клиент для JWKS (с кастомным CA или стандартный)
	httpClient := &http.Client{Timeout: opts.ClientTimeout}
	if opts.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(opts.CACertPath, opts.ClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", opts.CACertPath, err)
		}
		logger.Info("CA-сертификат для JWKS добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если Keycloak ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(opts.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", opts.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(k, opts.Issuer, opts.TenantClaim, users, logger)
	auth.jwtLeeway = opts.Leeway
	return auth, nil
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	tenantClaim string,
	users UserSyncer,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:        kf,
		logger:      logger.With(slog.String("component", "jwt_auth")),
		users:       users,
		issuer:      issuer,
		tenantClaim: tenantClaim,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), извлекает claims
// и помещает их в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			// Парсинг и валидация JWT через JWKS
			rawClaims := &keycloakClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			// Извлекаем sub
			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			authClaims := j.buildAuthClaims(rawClaims)
			j.syncUser(r.Context(), authClaims)

			ctx := context.WithValue(r.Context(), ContextKeyClaims, authClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildAuthClaims формирует AuthClaims из raw Keycloak claims.
func (j *JWTAuth) buildAuthClaims(raw *keycloakClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Email:             raw.Email,
	}

	// Роли из realm_access.roles; служебные роли IdP отбрасываются
	if raw.RealmAccess != nil {
		claims.Roles = rbac.FilterKnown(raw.RealmAccess.Roles)
	}

	tenant := tenantFromClaim(raw.all[j.tenantClaim])
	if tenant != "" {
		if _, err := uuid.Parse(tenant); err != nil {
			j.logger.Warn("Некорректный арендатор в токене",
				slog.String("user_id", raw.Subject),
				slog.String("claim", j.tenantClaim),
			)
		} else {
			claims.TenantID = &tenant
		}
	}
	return claims
}

// tenantFromClaim извлекает арендатора из значения claim.
// Mapper Keycloak может вернуть строку или массив строк.
func tenantFromClaim(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// syncUser сохраняет пользователя в БД. Ошибка не прерывает запрос.
func (j *JWTAuth) syncUser(ctx context.Context, claims *AuthClaims) {
	if j.users == nil {
		return
	}
	err := j.users.Sync(ctx, model.User{
		ID:       claims.Subject,
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Role:     rbac.HighestRole(claims.Roles),
	})
	if err != nil {
		j.logger.Warn("Ошибка синхронизации пользователя",
			slog.String("user_id", claims.Subject),
			slog.String("error", err.Error()),
		)
	}
}

// --- RBAC middleware helpers ---

// RequirePermission возвращает middleware, требующий право из матрицы rbac.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequirePermission(p rbac.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !claims.Can(p) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется право %s", p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTenant отклоняет токены без арендатора.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
			return
		}
		if claims.TenantID == nil {
			apierrors.Forbidden(w, "Пользователь не привязан к арендатору")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если claims не найдены.
func SubjectFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// TenantFromContext извлекает арендатора из контекста запроса.
func TenantFromContext(ctx context.Context) *string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return nil
	}
	return claims.TenantID
}

// --- ReadinessChecker для Keycloak ---

// KeycloakReadinessChecker — проверка доступности Keycloak через JWKS.
type KeycloakReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewKeycloakReadinessChecker создаёт checker доступности Keycloak.
func NewKeycloakReadinessChecker(jwksURL, caCertPath string, readinessTimeout time.Duration) (*KeycloakReadinessChecker, error) {
	client := &http.Client{Timeout: readinessTimeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, readinessTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}

	return &KeycloakReadinessChecker{
		jwksURL: jwksURL,
		client:  client,
	}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint Keycloak.
func (k *KeycloakReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req) //nolint:gosec // G704: URL из конфигурации Keycloak
	if err != nil {
		return statusFail, fmt.Sprintf("Keycloak JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("Keycloak JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("Keycloak JWKS: невалидный JSON: %v", err)
	}

	if len(jwksResp.Keys) == 0 {
		return "degraded", "Keycloak JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
