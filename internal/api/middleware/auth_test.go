package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/domain/rbac"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-rm"

const (
	testIssuer = "https://keycloak.test/realms/complyreg"
	testTenant = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

// mockUserSyncer — мок для UserSyncer.
type mockUserSyncer struct {
	mu    sync.Mutex
	users []model.User
	err   error
}

func (m *mockUserSyncer) Sync(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return m.err
}

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	nB64 := base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	eB64 := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   nB64,
				"e":   eB64,
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth для тестов.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey, users UserSyncer) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return NewJWTAuthWithKeyfunc(kf, testIssuer, "tenant_id", users, testLogger())
}

// generateUserToken генерирует JWT пользователя; extra дополняет claims.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub string, roles []string, extra map[string]any, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": "officer",
		"email":              "officer@test.com",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(roles) > 0 {
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// serveWithToken прогоняет запрос с токеном через middleware и возвращает claims.
func serveWithToken(t *testing.T, auth *JWTAuth, token string) (*httptest.ResponseRecorder, *AuthClaims) {
	t.Helper()
	var got *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions/assigned", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

// --- Тесты JWT Middleware ---

// TestJWTAuth_ValidToken — валидный JWT с ролью и арендатором.
func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	users := &mockUserSyncer{}
	auth := newTestJWTAuth(t, key, users)

	token := generateUserToken(t, key, "user-123",
		[]string{"compliance_officer", "offline_access", "default-roles-complyreg"},
		map[string]any{"tenant_id": testTenant}, false)

	rec, claims := serveWithToken(t, auth, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if claims == nil {
		t.Fatal("claims не найдены в контексте")
	}
	if claims.Subject != "user-123" {
		t.Errorf("ожидался sub=user-123, получен %s", claims.Subject)
	}
	if claims.PreferredUsername != "officer" || claims.Email != "officer@test.com" {
		t.Errorf("username/email = %s/%s", claims.PreferredUsername, claims.Email)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != model.RoleComplianceOfficer {
		t.Errorf("ожидались роли [compliance_officer], получены %v", claims.Roles)
	}
	if claims.TenantID == nil || *claims.TenantID != testTenant {
		t.Errorf("TenantID = %v, ожидается %s", claims.TenantID, testTenant)
	}
	if !claims.Can(rbac.PermTriage) || claims.Can(rbac.PermAssess) {
		t.Error("права compliance_officer вычислены неверно")
	}

	if len(users.users) != 1 {
		t.Fatalf("ожидалась 1 синхронизация пользователя, получено %d", len(users.users))
	}
	synced := users.users[0]
	if synced.ID != "user-123" || synced.Role != model.RoleComplianceOfficer || synced.Email != "officer@test.com" {
		t.Errorf("синхронизирован неверный пользователь: %+v", synced)
	}
	if synced.TenantID == nil || *synced.TenantID != testTenant {
		t.Errorf("синхронизирован неверный арендатор: %v", synced.TenantID)
	}
}

// TestNewJWTAuth_FromJWKSEndpoint — ключи загружаются с JWKS endpoint.
func TestNewJWTAuth_FromJWKSEndpoint(t *testing.T) {
	key := generateTestKey(t)
	jwks := buildJWKSetJSON(&key.PublicKey, testKeyID)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, err := NewJWTAuth(ctx, AuthOptions{
		JWKSURL:         srv.URL,
		Issuer:          testIssuer,
		TenantClaim:     "tenant_id",
		ClientTimeout:   time.Second,
		RefreshInterval: time.Hour,
	}, nil, testLogger())
	if err != nil {
		t.Fatalf("NewJWTAuth() ошибка: %v", err)
	}

	token := generateUserToken(t, key, "user-1", []string{"admin"}, nil, false)
	if rec, _ := serveWithToken(t, auth, token); rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

// TestNewJWTAuth_BadCA — отсутствующий CA-файл.
func TestNewJWTAuth_BadCA(t *testing.T) {
	_, err := NewJWTAuth(context.Background(), AuthOptions{
		JWKSURL:    "https://kc.test/certs",
		CACertPath: "/nonexistent/ca.pem",
	}, nil, testLogger())
	if err == nil {
		t.Error("ожидалась ошибка для отсутствующего CA-файла")
	}
}

// TestJWTAuth_TenantClaim — разбор claim арендатора.
func TestJWTAuth_TenantClaim(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		expect *string
	}{
		{"строка", testTenant, ptr(testTenant)},
		{"массив", []string{testTenant}, ptr(testTenant)},
		{"пустой массив", []string{}, nil},
		{"не UUID", "acme-corp", nil},
		{"число", 42, nil},
		{"отсутствует", nil, nil},
	}

	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extra := map[string]any{}
			if tt.value != nil {
				extra["tenant_id"] = tt.value
			}
			token := generateUserToken(t, key, "user-1", []string{"bpo"}, extra, false)

			rec, claims := serveWithToken(t, auth, token)
			if rec.Code != http.StatusOK {
				t.Fatalf("ожидался статус 200, получен %d", rec.Code)
			}
			switch {
			case tt.expect == nil && claims.TenantID != nil:
				t.Errorf("ожидался nil, получен %s", *claims.TenantID)
			case tt.expect != nil && (claims.TenantID == nil || *claims.TenantID != *tt.expect):
				t.Errorf("ожидался %s, получен %v", *tt.expect, claims.TenantID)
			}
		})
	}
}

// TestJWTAuth_CustomTenantClaim — имя claim задаётся конфигурацией.
func TestJWTAuth_CustomTenantClaim(t *testing.T) {
	key := generateTestKey(t)
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatal(err)
	}
	auth := NewJWTAuthWithKeyfunc(kf, testIssuer, "org", nil, testLogger())

	token := generateUserToken(t, key, "user-1", []string{"admin"},
		map[string]any{"org": testTenant, "tenant_id": "11111111-1111-1111-1111-111111111111"}, false)

	_, claims := serveWithToken(t, auth, token)
	if claims == nil || claims.TenantID == nil || *claims.TenantID != testTenant {
		t.Errorf("ожидался арендатор из claim org")
	}
}

// TestJWTAuth_SyncErrorDoesNotFail — ошибка синхронизации не прерывает запрос.
func TestJWTAuth_SyncErrorDoesNotFail(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, &mockUserSyncer{err: errors.New("db down")})

	token := generateUserToken(t, key, "user-1", []string{"bpo"}, nil, false)
	rec, claims := serveWithToken(t, auth, token)
	if rec.Code != http.StatusOK || claims == nil {
		t.Errorf("ожидался статус 200 с claims, получен %d", rec.Code)
	}
}

// TestJWTAuth_Rejected — токены, которые middleware отклоняет.
func TestJWTAuth_Rejected(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	auth := newTestJWTAuth(t, key, nil)

	wrongIssuer := func() string {
		claims := jwt.MapClaims{
			"sub": "user-1",
			"iss": "https://evil.test",
			"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = testKeyID
		s, _ := token.SignedString(key)
		return s
	}
	noExp := func() string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-1", "iss": testIssuer})
		token.Header["kid"] = testKeyID
		s, _ := token.SignedString(key)
		return s
	}

	tests := []struct {
		name  string
		token string
	}{
		{"нет токена", ""},
		{"просроченный", generateUserToken(t, key, "user-1", nil, nil, true)},
		{"чужой ключ", generateUserToken(t, otherKey, "user-1", nil, nil, false)},
		{"чужой issuer", wrongIssuer()},
		{"без exp", noExp()},
		{"мусор", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, claims := serveWithToken(t, auth, tt.token)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
			if claims != nil {
				t.Error("handler не должен быть вызван")
			}
		})
	}
}

// TestJWTAuth_InvalidFormat — некорректный формат Authorization.
func TestJWTAuth_InvalidFormat(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key, nil)
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/suggestions/assigned", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

// --- Тесты RBAC middleware ---

func requestWithClaims(claims *AuthClaims) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if claims == nil {
		return req
	}
	return req.WithContext(context.WithValue(req.Context(), ContextKeyClaims, claims))
}

// TestRequirePermission — матрица прав в middleware.
func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		claims *AuthClaims
		perm   rbac.Permission
		status int
	}{
		{"admin утверждает", &AuthClaims{Roles: []string{model.RoleAdmin}}, rbac.PermAssess, http.StatusOK},
		{"officer запускает обработку", &AuthClaims{Roles: []string{model.RoleComplianceOfficer}}, rbac.PermProcess, http.StatusOK},
		{"officer не утверждает", &AuthClaims{Roles: []string{model.RoleComplianceOfficer}}, rbac.PermAssess, http.StatusForbidden},
		{"bpo не читает аудит", &AuthClaims{Roles: []string{model.RoleBPO}}, rbac.PermAudit, http.StatusForbidden},
		{"без ролей", &AuthClaims{}, rbac.PermRead, http.StatusForbidden},
		{"без claims", nil, rbac.PermRead, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequirePermission(tt.perm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithClaims(tt.claims))
			if rec.Code != tt.status {
				t.Errorf("ожидался статус %d, получен %d", tt.status, rec.Code)
			}
		})
	}
}

// TestRequireTenant — токен без арендатора получает 403.
func TestRequireTenant(t *testing.T) {
	handler := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TenantFromContext(r.Context()); got == nil || *got != testTenant {
			t.Errorf("TenantFromContext = %v", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		claims *AuthClaims
		status int
	}{
		{"с арендатором", &AuthClaims{TenantID: ptr(testTenant)}, http.StatusOK},
		{"без арендатора", &AuthClaims{}, http.StatusForbidden},
		{"без claims", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, requestWithClaims(tt.claims))
			if rec.Code != tt.status {
				t.Errorf("ожидался статус %d, получен %d", tt.status, rec.Code)
			}
		})
	}
}

// TestContextHelpers_Empty — хелперы на пустом контексте.
func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if ClaimsFromContext(ctx) != nil {
		t.Error("ClaimsFromContext должен вернуть nil")
	}
	if SubjectFromContext(ctx) != "" {
		t.Error("SubjectFromContext должен вернуть пустую строку")
	}
	if TenantFromContext(ctx) != nil {
		t.Error("TenantFromContext должен вернуть nil")
	}
}

// --- KeycloakReadinessChecker ---

func TestKeycloakReadinessChecker(t *testing.T) {
	key := generateTestKey(t)
	tests := []struct {
		name   string
		status int
		body   string
		expect string
	}{
		{"ключи есть", http.StatusOK, string(buildJWKSetJSON(&key.PublicKey, testKeyID)), "ok"},
		{"нет ключей", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"невалидный JSON", http.StatusOK, `{`, "degraded"},
		{"ошибка сервера", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewKeycloakReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if status, msg := checker.CheckReady(); status != tt.expect {
				t.Errorf("CheckReady() = %s (%s), ожидается %s", status, msg, tt.expect)
			}
		})
	}
}

func TestKeycloakReadinessChecker_BadCA(t *testing.T) {
	if _, err := NewKeycloakReadinessChecker("https://kc.test/certs", "/nonexistent/ca.pem", time.Second); err == nil {
		t.Error("ожидалась ошибка для отсутствующего CA-файла")
	}
}

func ptr(s string) *string { return &s }
