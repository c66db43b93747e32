// documents.go — обработчики /api/v1/documents endpoints.
// Чтение документа, постановка в очередь и синхронная переобработка.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/bigkaa/complyreg/register-module/internal/api/middleware"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// GetDocument — GET /api/v1/documents/{id}.
func (h *APIHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Get(r.Context(), id, middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения документа", slog.String("document_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapDocument(doc))
}

// ProcessDocument — POST /api/v1/documents/{id}/process.
// Ставит документ в очередь обработки и сразу отвечает 202.
func (h *APIHandler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	// Документ должен существовать в пределах арендатора
	if _, err := h.documents.Get(r.Context(), id, middleware.TenantFromContext(r.Context())); err != nil {
		h.writeServiceError(w, err, "Ошибка получения документа", slog.String("document_id", id))
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "Ошибка постановки документа в очередь", slog.String("document_id", id))
		return
	}

	h.logger.Info("Документ поставлен в очередь обработки",
		slog.String("document_id", id),
		slog.String("actor_id", middleware.SubjectFromContext(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, processAccepted{
		DocumentID: id,
		Status:     string(model.DocumentPending),
	})
}

// ReprocessDocument — POST /api/v1/documents/{id}/reprocess.
// Выполняет конвейер синхронно и возвращает документ с итоговым статусом.
func (h *APIHandler) ReprocessDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Reprocess(r.Context(), id,
		middleware.TenantFromContext(r.Context()),
		middleware.SubjectFromContext(r.Context()),
	)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка обработки документа", slog.String("document_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapDocument(doc))
}

// ListDocumentSuggestions — GET /api/v1/documents/{id}/suggestions.
func (h *APIHandler) ListDocumentSuggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	items, err := h.suggestions.ListByDocument(r.Context(), id, middleware.TenantFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения предложений документа", slog.String("document_id", id))
		return
	}
	writeJSON(w, http.StatusOK, mapSuggestions(items))
}
