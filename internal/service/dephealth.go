// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Register Module мониторит три зависимости:
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode, critical)
//   - Keycloak — HTTP checker к JWKS endpoint (critical)
//   - MinIO — HTTP checker к /minio/health/live (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker для Keycloak и MinIO
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"     // PostgreSQL checker (pool mode)
	"github.com/prometheus/client_golang/prometheus"
)

// minioHealthPath — liveness endpoint MinIO.
const minioHealthPath = "/minio/health/live"

// DephealthDeps — параметры мониторинга зависимостей.
type DephealthDeps struct {
	// *sql.DB, полученный из pgxpool через stdlib.OpenDBFromPool()
	DB *sql.DB
	// URL подключения к PostgreSQL (для лейблов, не для подключения)
	PostgresURL string
	// URL JWKS endpoint Keycloak
	JWKSURL string
	// URL объектного хранилища со схемой
	StorageURL string
	// Интервал проверки (RM_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(serviceID, group string, deps DephealthDeps, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	serviceID, group string,
	deps DephealthDeps,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(serviceID, group, deps, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(
	serviceID, group string,
	deps DephealthDeps,
	logger *slog.Logger,
	extraOpts ...dephealth.Option,
) (*DephealthService, error) {
	// У Keycloak /health доступен только на management порту,
	// поэтому проверяем path самого JWKS URL.
	kcHealthPath := "/health"
	if parsed, err := url.Parse(deps.JWKSURL); err == nil && parsed.Path != "" {
		kcHealthPath = parsed.Path
	}

	minioOpts := []dephealth.DependencyOption{
		dephealth.FromURL(deps.StorageURL),
		dephealth.WithHTTPHealthPath(minioHealthPath),
		dephealth.CheckInterval(deps.CheckInterval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(deps.StorageURL); err == nil && parsed.Scheme == "https" {
		minioOpts = append(minioOpts, dephealth.WithHTTPTLSSkipVerify(false))
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		// PostgreSQL — connection pool mode через существующий pgxpool.
		// pgcheck.New + AddDependency напрямую, без contrib/sqldb с транзитивным MySQL.
		dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(deps.DB)),
			dephealth.FromURL(deps.PostgresURL),
			dephealth.CheckInterval(deps.CheckInterval),
			dephealth.Critical(true),
		),
		dephealth.HTTP("keycloak-jwks",
			dephealth.FromURL(deps.JWKSURL),
			dephealth.WithHTTPHealthPath(kcHealthPath),
			dephealth.CheckInterval(deps.CheckInterval),
			dephealth.Critical(true),
			dephealth.WithHTTPTLSSkipVerify(true), // Dev-среда: self-signed сертификаты
		),
		dephealth.HTTP("minio", minioOpts...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (PostgreSQL + Keycloak + MinIO)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
