// suggestions.go — обработчики /api/v1/suggestions и /api/v1/audit-logs.
// Чтение предложений, передача на оценку, отклонение при разборе, журнал аудита.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/complyreg/register-module/internal/api/errors"
	"github.com/bigkaa/complyreg/register-module/internal/api/middleware"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/service"
)

// GetSuggestion — GET /api/v1/suggestions/{id}.
func (h *APIHandler) GetSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	sug, err := h.suggestions.Get(r.Context(), id, middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения предложения", slog.String("suggestion_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapSuggestion(sug))
}

// PromoteSuggestion — POST /api/v1/suggestions/{id}/promote.
// Передаёт предложение ответственному; тело необязательно.
func (h *APIHandler) PromoteSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req promoteRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	sug, err := h.suggestions.Promote(r.Context(), service.PromoteRequest{
		SuggestionID:       id,
		ActorID:            middleware.SubjectFromContext(r.Context()),
		TenantID:           middleware.TenantFromContext(r.Context()),
		AssignedReviewerID: req.AssignedReviewerID,
		ContentPatch:       req.Content,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка передачи предложения на оценку", slog.String("suggestion_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapSuggestion(sug))
}

// RejectSuggestion — POST /api/v1/suggestions/{id}/reject.
func (h *APIHandler) RejectSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req rejectRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	sug, err := h.suggestions.Reject(r.Context(), service.RejectRequest{
		SuggestionID: id,
		ActorID:      middleware.SubjectFromContext(r.Context()),
		TenantID:     middleware.TenantFromContext(r.Context()),
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, err, "Ошибка отклонения предложения", slog.String("suggestion_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapSuggestion(sug))
}

// ListAuditLogs — GET /api/v1/audit-logs?entity_type=&entity_id=.
// Журнал ведётся по предложениям, поэтому entity_type — только ai_suggestion.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	entityType := q.Get("entity_type")
	if entityType == "" {
		entityType = model.EntityTypeSuggestion
	}
	if entityType != model.EntityTypeSuggestion {
		apierrors.ValidationError(w, "Неподдерживаемый entity_type: "+entityType)
		return
	}

	entityID := q.Get("entity_id")
	if _, err := uuid.Parse(entityID); err != nil {
		apierrors.ValidationError(w, "Параметр entity_id обязателен и должен быть UUID")
		return
	}

	entries, err := h.suggestions.History(r.Context(), entityID, middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения журнала аудита", slog.String("entity_id", entityID))
		return
	}
	writeJSON(w, http.StatusOK, mapAuditEntries(entries))
}
