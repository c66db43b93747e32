package model

import (
	"fmt"
	"strings"
	"time"
)

// SuggestionType — тип предложения.
type SuggestionType string

const (
	SuggestionRisk            SuggestionType = "risk"
	SuggestionControl         SuggestionType = "control"
	SuggestionBusinessProcess SuggestionType = "business_process"
)

// SuggestionStatus — статус предложения в жизненном цикле.
type SuggestionStatus string

const (
	// StatusPending — создано конвейером, ждёт разбора
	StatusPending SuggestionStatus = "pending"
	// StatusPendingReview — передано ответственному (BPO) на оценку
	StatusPendingReview SuggestionStatus = "pending_review"
	// StatusActive — утверждено, сущности реестра созданы
	StatusActive SuggestionStatus = "active"
	// StatusArchived — отклонено ответственным
	StatusArchived SuggestionStatus = "archived"
	// StatusRejected — отклонено при разборе (двухшаговый поток)
	StatusRejected SuggestionStatus = "rejected"
)

// Известные ключи content. Соглашение, а не строгая схема.
const (
	ContentRiskName            = "risk_name"
	ContentRiskDescription     = "risk_description"
	ContentControlName         = "control_name"
	ContentControlDescription  = "control_description"
	ContentBusinessProcessName = "business_process_name"
	ContentControlType         = "control_type"
)

// Suggestion — предложение LLM, ожидающее решения человека.
type Suggestion struct {
	ID         string
	TenantID   *string
	DocumentID string
	Type       SuggestionType
	// Произвольный набор полей, форма зависит от Type
	Content         map[string]any
	Rationale       string
	SourceReference string
	Status          SuggestionStatus
	// Назначенный ответственный (BPO)
	AssignedReviewerID *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ContentString возвращает строковое значение ключа content.
// Пустые строки и значения других типов считаются отсутствующими.
func (s *Suggestion) ContentString(key string) string {
	if s.Content == nil {
		return ""
	}
	v, ok := s.Content[key]
	if !ok || v == nil {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(str)
}

// ParseSuggestionType проверяет тип предложения из внешнего источника.
func ParseSuggestionType(s string) (SuggestionType, error) {
	t := SuggestionType(s)
	switch t {
	case SuggestionRisk, SuggestionControl, SuggestionBusinessProcess:
		return t, nil
	default:
		return "", fmt.Errorf("недопустимый тип предложения: %q, допустимые: risk, control, business_process", s)
	}
}

// ParseSuggestionStatus проверяет статус из внешнего источника.
// Исторические значения (accepted, awaiting_bpo_approval) не принимаются.
func ParseSuggestionStatus(s string) (SuggestionStatus, error) {
	st := SuggestionStatus(s)
	switch st {
	case StatusPending, StatusPendingReview, StatusActive, StatusArchived, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("недопустимый статус предложения: %q", s)
	}
}
