// handler.go — основной обработчик API Register Module.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/complyreg/register-module/internal/api/errors"
	"github.com/bigkaa/complyreg/register-module/internal/dispatch"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/service"
)

// DocumentService — чтение и синхронная переобработка документов.
// Реализуется *service.DocumentService.
type DocumentService interface {
	Get(ctx context.Context, id string, tenantID *string) (*model.Document, error)
	Reprocess(ctx context.Context, id string, tenantID *string, actorID string) (*model.Document, error)
}

// Dispatcher — постановка документа в очередь обработки.
type Dispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// SuggestionService — разбор и чтение предложений.
// Реализуется *service.SuggestionService.
type SuggestionService interface {
	Get(ctx context.Context, id string, tenantID *string) (*model.Suggestion, error)
	ListByDocument(ctx context.Context, documentID string, tenantID *string) ([]*model.Suggestion, error)
	ListAssigned(ctx context.Context, reviewerID string, tenantID *string) ([]*model.Suggestion, error)
	History(ctx context.Context, id string, tenantID *string) ([]*model.AuditEntry, error)
	Promote(ctx context.Context, req service.PromoteRequest) (*model.Suggestion, error)
	Reject(ctx context.Context, req service.RejectRequest) (*model.Suggestion, error)
}

// AssessmentService — утверждение и отклонение предложений ответственным.
// Реализуется *service.AssessmentService.
type AssessmentService interface {
	Approve(ctx context.Context, req service.ApproveRequest) (*model.AssessmentResult, error)
	Discard(ctx context.Context, req service.DiscardRequest) (*model.AssessmentResult, error)
}

// APIHandler — основной обработчик API Register Module.
type APIHandler struct {
	health      *HealthHandler
	documents   DocumentService
	dispatcher  Dispatcher
	suggestions SuggestionService
	assessments AssessmentService
	logger      *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	documents DocumentService,
	dispatcher Dispatcher,
	suggestions SuggestionService,
	assessments AssessmentService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:      health,
		documents:   documents,
		dispatcher:  dispatcher,
		suggestions: suggestions,
		assessments: assessments,
		logger:      logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// maxBodySize — предельный размер тела запроса.
const maxBodySize = 1 << 20

// decodeJSON читает тело запроса. Пустое тело допустимо,
// если allowEmpty = true.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}
	return true
}

// pathID извлекает и проверяет UUID из параметра пути.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор: "+id)
		return "", false
	}
	return id, true
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		apierrors.InvalidTransition(w, conflict.Error(), string(conflict.Current))
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, dispatch.ErrAlreadyQueued):
		apierrors.AlreadyQueued(w, err.Error())
	case errors.Is(err, dispatch.ErrQueueFull):
		apierrors.QueueFull(w, err.Error())
	case errors.Is(err, dispatch.ErrStopped):
		apierrors.ServiceUnavailable(w, err.Error())
	default:
		h.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
		apierrors.InternalError(w, msg)
	}
}
