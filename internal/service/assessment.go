// assessment.go — утверждение и отклонение предложений ответственным (BPO).
//
// Approve в одной транзакции: проверка статуса, перевод в active, создание
// бизнес-процесса, риска и контроля, запись аудита. Любая ошибка откатывает
// всё целиком. Остаточный риск проверяется до начала транзакции.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/complyreg/register-module/internal/audit"
	"github.com/bigkaa/complyreg/register-module/internal/domain/lifecycle"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

// Значения по умолчанию для полей, не заданных ни правкой, ни LLM.
const (
	defaultProcessName = "Unnamed Process"
	defaultRiskName    = "Unnamed Risk"
	defaultControlName = "Unnamed Control"
	defaultControlType = "Preventive"
	defaultDescription = "No description"
)

const (
	messageApproved          = "Successfully added to register"
	messageDiscarded         = "Item discarded"
	processDescriptionFormat = "Business process for %s"
)

// ApproveRequest — утверждение предложения.
type ApproveRequest struct {
	SuggestionID string
	// Обязателен: low, medium, high
	ResidualRisk string
	Edits        model.AssessmentEdits
	ActorID      string
	TenantID     *string
}

// DiscardRequest — отклонение предложения ответственным.
type DiscardRequest struct {
	SuggestionID string
	ActorID      string
	TenantID     *string
}

// AssessmentService — терминальные действия над предложениями.
type AssessmentService struct {
	uow    UnitOfWork
	logger *slog.Logger
}

// NewAssessmentService создаёт сервис оценки предложений.
func NewAssessmentService(uow UnitOfWork, logger *slog.Logger) *AssessmentService {
	return &AssessmentService{
		uow:    uow,
		logger: logger.With(slog.String("component", "assessment")),
	}
}

// Approve утверждает предложение и создаёт сущности реестра.
func (s *AssessmentService) Approve(ctx context.Context, req ApproveRequest) (*model.AssessmentResult, error) {
	if strings.TrimSpace(req.ResidualRisk) == "" {
		return nil, fmt.Errorf("%w: остаточный риск обязателен для утверждения", ErrValidation)
	}
	residual, err := model.ParseResidualRisk(req.ResidualRisk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var result *model.AssessmentResult
	err = s.uow.RunInTx(ctx, func(tx repository.Repositories) error {
		sug, err := loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		if err != nil {
			return err
		}
		if err := checkAssessable(sug, lifecycle.EventApprove, req.ActorID); err != nil {
			return err
		}

		next, err := transition(ctx, tx, sug, lifecycle.EventApprove, nil, nil)
		if err != nil {
			return err
		}

		fields := deriveFields(sug, req.Edits)

		process := &model.BusinessProcess{
			ID:          uuid.New().String(),
			TenantID:    req.TenantID,
			Name:        fields.processName,
			Description: fmt.Sprintf(processDescriptionFormat, fields.processName),
			OwnerID:     req.ActorID,
		}
		if err := tx.Register.CreateBusinessProcess(ctx, process); err != nil {
			return fmt.Errorf("создание бизнес-процесса: %w", err)
		}

		risk := &model.Risk{
			ID:          uuid.New().String(),
			TenantID:    req.TenantID,
			Name:        fields.riskName,
			Description: fields.riskDescription,
			Category:    string(residual),
			OwnerID:     req.ActorID,
			ProcessID:   &process.ID,
		}
		if err := tx.Register.CreateRisk(ctx, risk); err != nil {
			return fmt.Errorf("создание риска: %w", err)
		}

		control := &model.Control{
			ID:          uuid.New().String(),
			TenantID:    req.TenantID,
			Name:        fields.controlName,
			Description: fields.controlDescription,
			ControlType: fields.controlType,
			OwnerID:     req.ActorID,
			ProcessID:   &process.ID,
		}
		if err := tx.Register.CreateControl(ctx, control); err != nil {
			return fmt.Errorf("создание контроля: %w", err)
		}

		created := &model.CreatedRecords{
			BusinessProcessID: process.ID,
			RiskID:            risk.ID,
			ControlID:         control.ID,
		}
		changes := map[string]any{
			"action":          "approve",
			"residual_risk":   string(residual),
			"suggestion_id":   sug.ID,
			"created_records": created,
			"status_change":   model.FieldChange{Old: sug.Status, New: next},
		}
		if edits := editsDiff(sug, req.Edits); len(edits) > 0 {
			changes["edits"] = edits
		}

		entry, err := audit.Append(ctx, tx.Audit, req.ActorID, model.ActionApproveSuggestion,
			model.EntityTypeSuggestion, sug.ID, changes)
		if err != nil {
			return err
		}

		result = &model.AssessmentResult{
			Success:        true,
			Message:        messageApproved,
			NewStatus:      next,
			AuditLogID:     entry.ID,
			CreatedRecords: created,
		}
		return nil
	})
	if err != nil {
		return nil, observeTransition(s.logger, lifecycle.EventApprove, req.SuggestionID, err)
	}
	_ = observeTransition(s.logger, lifecycle.EventApprove, req.SuggestionID, nil)
	return result, nil
}

// Discard переводит предложение в archived без создания сущностей.
func (s *AssessmentService) Discard(ctx context.Context, req DiscardRequest) (*model.AssessmentResult, error) {
	var result *model.AssessmentResult
	err := s.uow.RunInTx(ctx, func(tx repository.Repositories) error {
		sug, err := loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		if err != nil {
			return err
		}
		if err := checkAssessable(sug, lifecycle.EventDiscard, req.ActorID); err != nil {
			return err
		}

		next, err := transition(ctx, tx, sug, lifecycle.EventDiscard, nil, nil)
		if err != nil {
			return err
		}

		entry, err := audit.Append(ctx, tx.Audit, req.ActorID, model.ActionDiscardSuggestion,
			model.EntityTypeSuggestion, sug.ID, map[string]any{
				"action":        "discard",
				"suggestion_id": sug.ID,
				"status_change": model.FieldChange{Old: sug.Status, New: next},
			})
		if err != nil {
			return err
		}

		result = &model.AssessmentResult{
			Success:    true,
			Message:    messageDiscarded,
			NewStatus:  next,
			AuditLogID: entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, observeTransition(s.logger, lifecycle.EventDiscard, req.SuggestionID, err)
	}
	_ = observeTransition(s.logger, lifecycle.EventDiscard, req.SuggestionID, nil)
	return result, nil
}

// checkAssessable проверяет статус и назначенного ответственного.
// Предложение без ответственного может оценить любой BPO арендатора.
func checkAssessable(sug *model.Suggestion, event lifecycle.Event, actorID string) error {
	if _, err := lifecycle.Next(sug.Status, event); err != nil {
		return conflictFrom(sug.ID, sug.Status, event, err)
	}
	if sug.AssignedReviewerID != nil && *sug.AssignedReviewerID != actorID {
		return fmt.Errorf("%w: предложение %s назначено другому ответственному", ErrForbidden, sug.ID)
	}
	return nil
}

// registerFields — итоговые значения полей сущностей реестра.
type registerFields struct {
	processName        string
	riskName           string
	riskDescription    string
	controlName        string
	controlDescription string
	controlType        string
}

// deriveFields вычисляет значения по цепочке: правка → content → rationale → заглушка.
func deriveFields(sug *model.Suggestion, edits model.AssessmentEdits) registerFields {
	rationale := strings.TrimSpace(sug.Rationale)
	return registerFields{
		processName: firstNonEmpty(
			editValue(edits.BusinessProcess),
			sug.ContentString(model.ContentBusinessProcessName),
			defaultProcessName,
		),
		riskName: firstNonEmpty(sug.ContentString(model.ContentRiskName), defaultRiskName),
		riskDescription: firstNonEmpty(
			editValue(edits.RiskDescription),
			sug.ContentString(model.ContentRiskDescription),
			rationale,
			defaultDescription,
		),
		controlName: firstNonEmpty(sug.ContentString(model.ContentControlName), defaultControlName),
		controlDescription: firstNonEmpty(
			editValue(edits.ControlDescription),
			sug.ContentString(model.ContentControlDescription),
			rationale,
			defaultDescription,
		),
		controlType: firstNonEmpty(sug.ContentString(model.ContentControlType), defaultControlType),
	}
}

// editsDiff возвращает правки, отличающиеся от значений LLM.
func editsDiff(sug *model.Suggestion, edits model.AssessmentEdits) map[string]model.FieldChange {
	proposed := map[string]any{}
	original := map[string]any{}
	add := func(field string, edit *string, contentKey string) {
		v := editValue(edit)
		if v == "" {
			return
		}
		proposed[field] = v
		if orig := sug.ContentString(contentKey); orig != "" {
			original[field] = orig
		}
	}
	add("business_process", edits.BusinessProcess, model.ContentBusinessProcessName)
	add("risk_description", edits.RiskDescription, model.ContentRiskDescription)
	add("control_description", edits.ControlDescription, model.ContentControlDescription)

	return audit.Diff(original, proposed)
}

// editValue — значение правки; пустая правка считается отсутствующей.
func editValue(edit *string) string {
	if edit == nil {
		return ""
	}
	return strings.TrimSpace(*edit)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
