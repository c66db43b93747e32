package model

import "time"

// Действия, фиксируемые в журнале аудита.
const (
	ActionApproveSuggestion = "approve_suggestion"
	ActionDiscardSuggestion = "discard_suggestion"
	ActionPromoteSuggestion = "promote_suggestion"
	ActionRejectSuggestion  = "reject_suggestion"
)

// EntityTypeSuggestion — тип сущности предложения в журнале аудита.
const EntityTypeSuggestion = "ai_suggestion"

// AuditEntry — неизменяемая запись журнала аудита.
type AuditEntry struct {
	ID         string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	// Произвольная полезная нагрузка (обычно diff old/new)
	Changes   map[string]any
	CreatedAt time.Time
}

// FieldChange — изменение одного поля.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}
