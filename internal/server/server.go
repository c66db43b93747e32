// Пакет server — HTTP-сервер Register Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/complyreg/register-module/internal/api/handlers"
	"github.com/bigkaa/complyreg/register-module/internal/api/middleware"
	"github.com/bigkaa/complyreg/register-module/internal/config"
	"github.com/bigkaa/complyreg/register-module/internal/domain/rbac"
)

// Server — HTTP-сервер Register Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// auth — JWT middleware (nil допустим только в тестах: API-маршруты
// тогда не регистрируются).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, auth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, handler, auth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout + cfg.StorageTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты API.
// Health и metrics проверяются Kubernetes напрямую, без JWT.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, auth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)

	if auth == nil {
		return router
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware())
		r.Use(middleware.RequireTenant)

		r.Route("/documents/{id}", func(r chi.Router) {
			r.With(middleware.RequirePermission(rbac.PermRead)).Get("/", h.GetDocument)
			r.With(middleware.RequirePermission(rbac.PermRead)).Get("/suggestions", h.ListDocumentSuggestions)
			r.With(middleware.RequirePermission(rbac.PermProcess)).Post("/process", h.ProcessDocument)
			r.With(middleware.RequirePermission(rbac.PermProcess)).Post("/reprocess", h.ReprocessDocument)
		})

		r.Route("/suggestions/{id}", func(r chi.Router) {
			r.With(middleware.RequirePermission(rbac.PermRead)).Get("/", h.GetSuggestion)
			r.With(middleware.RequirePermission(rbac.PermTriage)).Post("/promote", h.PromoteSuggestion)
			r.With(middleware.RequirePermission(rbac.PermTriage)).Post("/reject", h.RejectSuggestion)
			r.With(middleware.RequirePermission(rbac.PermAssess)).Post("/assessment", h.AssessSuggestion)
		})

		r.With(middleware.RequirePermission(rbac.PermAssess)).Get("/assessments/pending", h.ListPendingAssessments)
		r.With(middleware.RequirePermission(rbac.PermAudit)).Get("/audit-logs", h.ListAuditLogs)
	})

	return router
}

// Run запускает сервер и блокируется до отмены ctx (сигнал завершения)
// или ошибки сервера. При отмене выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
