// suggestions.go — разбор предложений: передача на оценку и отклонение.
//
// Переходы статусов выполняются условным UPDATE в транзакции вместе с
// записью аудита. Если статус успел измениться, возвращается ConflictError
// с фактическим статусом, перечитанным в той же транзакции.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/bigkaa/complyreg/register-module/internal/audit"
	"github.com/bigkaa/complyreg/register-module/internal/domain/lifecycle"
	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

// PromoteRequest — передача предложения на оценку ответственному.
type PromoteRequest struct {
	SuggestionID string
	ActorID      string
	TenantID     *string
	// Необязательный ответственный (BPO)
	AssignedReviewerID *string
	// Необязательные правки content поверх значений LLM
	ContentPatch map[string]any
}

// RejectRequest — отклонение предложения при разборе.
type RejectRequest struct {
	SuggestionID string
	ActorID      string
	TenantID     *string
	Reason       string
}

// SuggestionService — операции разбора и чтения предложений.
type SuggestionService struct {
	uow    UnitOfWork
	logger *slog.Logger
}

// NewSuggestionService создаёт сервис предложений.
func NewSuggestionService(uow UnitOfWork, logger *slog.Logger) *SuggestionService {
	return &SuggestionService{
		uow:    uow,
		logger: logger.With(slog.String("component", "suggestions")),
	}
}

// Promote переводит предложение pending → pending_review.
func (s *SuggestionService) Promote(ctx context.Context, req PromoteRequest) (*model.Suggestion, error) {
	var updated *model.Suggestion

	err := s.uow.RunInTx(ctx, func(tx repository.Repositories) error {
		sug, err := loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		if err != nil {
			return err
		}

		changes := map[string]any{}
		var newContent map[string]any
		if len(req.ContentPatch) > 0 {
			diff := audit.Diff(sug.Content, req.ContentPatch)
			if len(diff) > 0 {
				newContent = maps.Clone(sug.Content)
				if newContent == nil {
					newContent = map[string]any{}
				}
				maps.Copy(newContent, req.ContentPatch)
				changes["content"] = diff
			}
		}

		next, err := transition(ctx, tx, sug, lifecycle.EventPromote, req.AssignedReviewerID, newContent)
		if err != nil {
			return err
		}
		changes["status"] = model.FieldChange{Old: sug.Status, New: next}
		if req.AssignedReviewerID != nil {
			changes["assigned_reviewer_id"] = model.FieldChange{
				Old: derefOrNil(sug.AssignedReviewerID),
				New: *req.AssignedReviewerID,
			}
		}

		if _, err := audit.Append(ctx, tx.Audit, req.ActorID, model.ActionPromoteSuggestion,
			model.EntityTypeSuggestion, sug.ID, changes); err != nil {
			return err
		}

		updated, err = loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		return err
	})
	if err != nil {
		return nil, s.observe(lifecycle.EventPromote, req.SuggestionID, err)
	}
	_ = s.observe(lifecycle.EventPromote, req.SuggestionID, nil)
	return updated, nil
}

// Reject переводит предложение pending → rejected.
func (s *SuggestionService) Reject(ctx context.Context, req RejectRequest) (*model.Suggestion, error) {
	var updated *model.Suggestion

	err := s.uow.RunInTx(ctx, func(tx repository.Repositories) error {
		sug, err := loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		if err != nil {
			return err
		}

		next, err := transition(ctx, tx, sug, lifecycle.EventReject, nil, nil)
		if err != nil {
			return err
		}

		changes := map[string]any{
			"status": model.FieldChange{Old: sug.Status, New: next},
		}
		if req.Reason != "" {
			changes["reason"] = req.Reason
		}
		if _, err := audit.Append(ctx, tx.Audit, req.ActorID, model.ActionRejectSuggestion,
			model.EntityTypeSuggestion, sug.ID, changes); err != nil {
			return err
		}

		updated, err = loadSuggestion(ctx, tx, req.SuggestionID, req.TenantID)
		return err
	})
	if err != nil {
		return nil, s.observe(lifecycle.EventReject, req.SuggestionID, err)
	}
	_ = s.observe(lifecycle.EventReject, req.SuggestionID, nil)
	return updated, nil
}

// Get возвращает предложение в пределах арендатора.
func (s *SuggestionService) Get(ctx context.Context, id string, tenantID *string) (*model.Suggestion, error) {
	return loadSuggestion(ctx, s.uow.Repos(), id, tenantID)
}

// ListByDocument возвращает предложения документа.
func (s *SuggestionService) ListByDocument(ctx context.Context, documentID string, tenantID *string) ([]*model.Suggestion, error) {
	items, err := s.uow.Repos().Suggestions.ListByDocument(ctx, documentID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("предложения документа %s: %w", documentID, err)
	}
	return items, nil
}

// ListAssigned возвращает очередь ответственного: предложения в pending_review.
func (s *SuggestionService) ListAssigned(ctx context.Context, reviewerID string, tenantID *string) ([]*model.Suggestion, error) {
	items, err := s.uow.Repos().Suggestions.ListAssigned(ctx, reviewerID, tenantID, model.StatusPendingReview)
	if err != nil {
		return nil, fmt.Errorf("очередь ответственного %s: %w", reviewerID, err)
	}
	return items, nil
}

// History возвращает журнал аудита предложения.
func (s *SuggestionService) History(ctx context.Context, id string, tenantID *string) ([]*model.AuditEntry, error) {
	repos := s.uow.Repos()
	if _, err := loadSuggestion(ctx, repos, id, tenantID); err != nil {
		return nil, err
	}
	entries, err := repos.Audit.ListByEntity(ctx, model.EntityTypeSuggestion, id)
	if err != nil {
		return nil, fmt.Errorf("журнал аудита предложения %s: %w", id, err)
	}
	return entries, nil
}

// observe учитывает результат перехода в метриках и логах.
func (s *SuggestionService) observe(event lifecycle.Event, id string, err error) error {
	return observeTransition(s.logger, event, id, err)
}

// loadSuggestion загружает предложение в пределах арендатора.
func loadSuggestion(ctx context.Context, repos repository.Repositories, id string, tenantID *string) (*model.Suggestion, error) {
	sug, err := repos.Suggestions.GetByID(ctx, id, tenantID)
	if err != nil {
		return nil, mapRepoError(err, "предложение "+id)
	}
	return sug, nil
}

// transition проверяет переход по автомату и выполняет условный UPDATE.
// При гонке перечитывает фактический статус в той же транзакции.
func transition(
	ctx context.Context,
	tx repository.Repositories,
	sug *model.Suggestion,
	event lifecycle.Event,
	reviewerID *string,
	content map[string]any,
) (model.SuggestionStatus, error) {
	next, err := lifecycle.Next(sug.Status, event)
	if err != nil {
		return "", conflictFrom(sug.ID, sug.Status, event, err)
	}

	ok, err := tx.Suggestions.Transition(ctx, repository.SuggestionTransition{
		ID:                 sug.ID,
		TenantID:           sug.TenantID,
		From:               sug.Status,
		To:                 next,
		AssignedReviewerID: reviewerID,
		Content:            content,
	})
	if err != nil {
		return "", fmt.Errorf("смена статуса предложения %s: %w", sug.ID, err)
	}
	if !ok {
		current, err := loadSuggestion(ctx, tx, sug.ID, sug.TenantID)
		if err != nil {
			return "", err
		}
		return "", &ConflictError{SuggestionID: sug.ID, Current: current.Status, Event: event}
	}
	return next, nil
}

// conflictFrom превращает ошибку автомата в ConflictError.
func conflictFrom(id string, current model.SuggestionStatus, event lifecycle.Event, err error) error {
	var te *lifecycle.TransitionError
	if errors.As(err, &te) && te.Code == lifecycle.CodeUnknownEvent {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return &ConflictError{SuggestionID: id, Current: current, Event: event}
}

// observeTransition пишет метрику и лог результата перехода и возвращает err.
func observeTransition(logger *slog.Logger, event lifecycle.Event, id string, err error) error {
	switch {
	case err == nil:
		transitionsTotal.WithLabelValues(string(event), "ok").Inc()
		logger.Info("Переход выполнен",
			slog.String("event", string(event)),
			slog.String("suggestion_id", id),
		)
	case errors.Is(err, ErrConflict):
		transitionsTotal.WithLabelValues(string(event), "conflict").Inc()
		logger.Warn("Конфликт статуса",
			slog.String("event", string(event)),
			slog.String("suggestion_id", id),
			slog.String("error", err.Error()),
		)
	default:
		transitionsTotal.WithLabelValues(string(event), "error").Inc()
	}
	return err
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
