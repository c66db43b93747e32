// Точка входа Register Module — реестр рисков и контролей комплаенса.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// объектному хранилищу и LLM, собирает конвейер обработки документов,
// запускает диспетчер обработки, мониторинг зависимостей
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/complyreg/register-module/internal/analyzer"
	"github.com/bigkaa/complyreg/register-module/internal/api/handlers"
	"github.com/bigkaa/complyreg/register-module/internal/api/middleware"
	"github.com/bigkaa/complyreg/register-module/internal/config"
	"github.com/bigkaa/complyreg/register-module/internal/database"
	"github.com/bigkaa/complyreg/register-module/internal/dispatch"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
	"github.com/bigkaa/complyreg/register-module/internal/server"
	"github.com/bigkaa/complyreg/register-module/internal/service"
	"github.com/bigkaa/complyreg/register-module/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Register Module завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("Register Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("dispatch_mode", cfg.DispatchMode),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("RM_DEPHEALTH_GROUP") == "" {
		logger.Warn("RM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	store := repository.NewStore(pool)

	// 5. Объектное хранилище
	objects, err := storage.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		// Хранилище может подняться позже: readiness покажет fail
		logger.Warn("Бакет документов недоступен", slog.String("error", err.Error()))
	}

	// 6. Сервисный слой
	tenants := service.NewTenantCache(store, cfg.TenantCacheSize, cfg.TenantCacheTTL)
	pipeline := service.NewPipeline(
		store,
		objects,
		analyzer.NewClient(cfg, logger),
		service.NewHierarchyReconciler(logger),
		tenants,
		logger,
	)
	documentsSvc := service.NewDocumentService(store, pipeline, logger)
	suggestionsSvc := service.NewSuggestionService(store, logger)
	assessmentsSvc := service.NewAssessmentService(store, logger)
	userSync := service.NewUserSync(store, tenants, cfg.TenantCacheSize, cfg.TenantCacheTTL, logger)

	// 7. Диспетчер обработки документов
	dispatcher, err := dispatch.NewFromConfig(cfg, pipeline, logger)
	if err != nil {
		return err
	}
	dispatcher.Start(ctx)

	// 8. Readiness checkers (PostgreSQL + хранилище + Keycloak [+ Redis])
	kcChecker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACert, cfg.JWKSClientTimeout)
	if err != nil {
		return err
	}
	var redisChecker handlers.ReadinessChecker
	if rd, ok := dispatcher.(*dispatch.Redis); ok {
		redisChecker = rd
		defer rd.Close()
	}
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		objects,
		kcChecker,
		redisChecker,
	)

	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		documentsSvc,
		dispatcher,
		suggestionsSvc,
		assessmentsSvc,
		logger,
	)

	// 9. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(ctx, middleware.AuthOptions{
		JWKSURL:         cfg.JWTJWKSURL,
		CACertPath:      cfg.JWKSCACert,
		Issuer:          cfg.JWTIssuer,
		TenantClaim:     cfg.JWTTenantClaim,
		ClientTimeout:   cfg.JWKSClientTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		Leeway:          cfg.JWTLeeway,
	}, userSync, logger)
	if err != nil {
		return err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("tenant_claim", cfg.JWTTenantClaim),
	)

	// 10. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"register-module",
		cfg.DephealthGroup,
		service.DephealthDeps{
			DB:            pgDB,
			PostgresURL:   cfg.DatabaseURL("postgres"),
			JWKSURL:       cfg.JWTJWKSURL,
			StorageURL:    cfg.StorageURL(),
			CheckInterval: cfg.DephealthCheckInterval,
		},
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	}

	// 11. HTTP-сервер; блокируется до сигнала завершения
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	serveErr := srv.Run(ctx)

	// 12. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	dispatcher.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Register Module остановлен")
	return serveErr
}
