// dto.go — формы запросов и ответов API.
package handlers

import (
	"time"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// documentResponse — документ в ответе API.
type documentResponse struct {
	ID         string     `json:"id"`
	TenantID   *string    `json:"tenant_id"`
	Filename   string     `json:"filename"`
	Status     string     `json:"status"`
	UploadedBy string     `json:"uploaded_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// processAccepted — ответ на постановку документа в очередь.
type processAccepted struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// suggestionResponse — предложение в ответе API.
type suggestionResponse struct {
	ID                 string         `json:"id"`
	TenantID           *string        `json:"tenant_id"`
	DocumentID         string         `json:"document_id"`
	Type               string         `json:"type"`
	Content            map[string]any `json:"content"`
	Rationale          string         `json:"rationale"`
	SourceReference    string         `json:"source_reference"`
	Status             string         `json:"status"`
	AssignedReviewerID *string        `json:"assigned_reviewer_id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// suggestionList — список предложений.
type suggestionList struct {
	Items []suggestionResponse `json:"items"`
	Total int                  `json:"total"`
}

// auditEntryResponse — запись журнала аудита.
type auditEntryResponse struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Changes    map[string]any `json:"changes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// auditList — журнал аудита сущности.
type auditList struct {
	Items []auditEntryResponse `json:"items"`
	Total int                  `json:"total"`
}

// promoteRequest — тело POST /suggestions/{id}/promote.
type promoteRequest struct {
	AssignedReviewerID *string        `json:"assigned_reviewer_id,omitempty"`
	Content            map[string]any `json:"content,omitempty"`
}

// rejectRequest — тело POST /suggestions/{id}/reject.
type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Действия оценки.
const (
	actionApprove = "approve"
	actionDiscard = "discard"
)

// assessmentRequest — тело POST /suggestions/{id}/assessment.
type assessmentRequest struct {
	Action       string `json:"action"`
	ResidualRisk string `json:"residual_risk,omitempty"`
	model.AssessmentEdits
}

func mapDocument(d *model.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		TenantID:   d.TenantID,
		Filename:   d.Filename,
		Status:     string(d.Status),
		UploadedBy: d.UploadedBy,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		ArchivedAt: d.ArchivedAt,
	}
}

func mapSuggestion(s *model.Suggestion) suggestionResponse {
	content := s.Content
	if content == nil {
		content = map[string]any{}
	}
	return suggestionResponse{
		ID:                 s.ID,
		TenantID:           s.TenantID,
		DocumentID:         s.DocumentID,
		Type:               string(s.Type),
		Content:            content,
		Rationale:          s.Rationale,
		SourceReference:    s.SourceReference,
		Status:             string(s.Status),
		AssignedReviewerID: s.AssignedReviewerID,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func mapSuggestions(items []*model.Suggestion) suggestionList {
	out := suggestionList{Items: make([]suggestionResponse, 0, len(items)), Total: len(items)}
	for _, s := range items {
		out.Items = append(out.Items, mapSuggestion(s))
	}
	return out
}

func mapAuditEntries(entries []*model.AuditEntry) auditList {
	out := auditList{Items: make([]auditEntryResponse, 0, len(entries)), Total: len(entries)}
	for _, e := range entries {
		out.Items = append(out.Items, auditEntryResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Changes:    e.Changes,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}
