// assessments.go — обработчики оценки предложений ответственным (BPO).
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/complyreg/register-module/internal/api/errors"
	"github.com/bigkaa/complyreg/register-module/internal/api/middleware"
	"github.com/bigkaa/complyreg/register-module/internal/service"
)

// AssessSuggestion — POST /api/v1/suggestions/{id}/assessment.
// action=approve создаёт сущности реестра, action=discard архивирует предложение.
func (h *APIHandler) AssessSuggestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req assessmentRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	actorID := middleware.SubjectFromContext(r.Context())
	tenantID := middleware.TenantFromContext(r.Context())

	switch req.Action {
	case actionApprove:
		result, err := h.assessments.Approve(r.Context(), service.ApproveRequest{
			SuggestionID: id,
			ResidualRisk: req.ResidualRisk,
			Edits:        req.AssessmentEdits,
			ActorID:      actorID,
			TenantID:     tenantID,
		})
		if err != nil {
			h.writeServiceError(w, err, "Ошибка утверждения предложения", slog.String("suggestion_id", id))
			return
		}
		writeJSON(w, http.StatusOK, result)

	case actionDiscard:
		result, err := h.assessments.Discard(r.Context(), service.DiscardRequest{
			SuggestionID: id,
			ActorID:      actorID,
			TenantID:     tenantID,
		})
		if err != nil {
			h.writeServiceError(w, err, "Ошибка отклонения предложения", slog.String("suggestion_id", id))
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		apierrors.ValidationError(w, "Поле action должно быть approve или discard")
	}
}

// ListPendingAssessments — GET /api/v1/assessments/pending.
// Очередь вызывающего: предложения в pending_review, назначенные ему.
func (h *APIHandler) ListPendingAssessments(w http.ResponseWriter, r *http.Request) {
	reviewerID := middleware.SubjectFromContext(r.Context())
	items, err := h.suggestions.ListAssigned(r.Context(), reviewerID, middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения очереди оценки", slog.String("reviewer_id", reviewerID))
		return
	}
	writeJSON(w, http.StatusOK, mapSuggestions(items))
}
