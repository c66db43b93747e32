package model

import "fmt"

// ResidualRisk — уровень остаточного риска, задаваемый при утверждении.
type ResidualRisk string

const (
	ResidualLow    ResidualRisk = "low"
	ResidualMedium ResidualRisk = "medium"
	ResidualHigh   ResidualRisk = "high"
)

// ParseResidualRisk проверяет уровень остаточного риска.
func ParseResidualRisk(s string) (ResidualRisk, error) {
	r := ResidualRisk(s)
	switch r {
	case ResidualLow, ResidualMedium, ResidualHigh:
		return r, nil
	default:
		return "", fmt.Errorf("недопустимый остаточный риск: %q, допустимые: low, medium, high", s)
	}
}

// AssessmentEdits — правки ответственного поверх значений LLM.
// nil-поле означает «правки нет».
type AssessmentEdits struct {
	BusinessProcess    *string `json:"edited_business_process,omitempty"`
	RiskDescription    *string `json:"edited_risk_description,omitempty"`
	ControlDescription *string `json:"edited_control_description,omitempty"`
}

// CreatedRecords — идентификаторы сущностей, созданных при утверждении.
type CreatedRecords struct {
	BusinessProcessID string `json:"business_process_id"`
	RiskID            string `json:"risk_id"`
	ControlID         string `json:"control_id"`
}

// AssessmentResult — итог утверждения или отклонения предложения.
type AssessmentResult struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	NewStatus  SuggestionStatus `json:"new_status"`
	AuditLogID string           `json:"audit_log_id"`
	// Только для утверждения
	CreatedRecords *CreatedRecords `json:"created_records,omitempty"`
}
