package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// SuggestionTransition — условная смена статуса предложения.
// Обновление применяется, только если текущий статус равен From.
type SuggestionTransition struct {
	ID       string
	TenantID *string
	From     model.SuggestionStatus
	To       model.SuggestionStatus
	// Назначенный ответственный; nil — не менять
	AssignedReviewerID *string
	// Новое содержимое; nil — не менять
	Content map[string]any
}

// SuggestionRepository — интерфейс для таблицы ai_suggestions.
type SuggestionRepository interface {
	// CreateBatch сохраняет предложения (статус берётся из модели).
	CreateBatch(ctx context.Context, items []*model.Suggestion) error
	// GetByID возвращает предложение в пределах арендатора.
	GetByID(ctx context.Context, id string, tenantID *string) (*model.Suggestion, error)
	// ListByDocument возвращает предложения документа в порядке создания.
	ListByDocument(ctx context.Context, documentID string, tenantID *string) ([]*model.Suggestion, error)
	// ListAssigned возвращает предложения, назначенные ответственному, в указанном статусе.
	ListAssigned(ctx context.Context, reviewerID string, tenantID *string, status model.SuggestionStatus) ([]*model.Suggestion, error)
	// Transition выполняет условную смену статуса.
	// false — строка не найдена или её статус уже не равен From.
	Transition(ctx context.Context, t SuggestionTransition) (bool, error)
}

type suggestionRepo struct {
	db DBTX
}

// NewSuggestionRepository создаёт репозиторий предложений.
func NewSuggestionRepository(db DBTX) SuggestionRepository {
	return &suggestionRepo{db: db}
}

const suggestionColumns = `id, tenant_id, document_id, type, content, rationale, source_reference,
		       status, assigned_reviewer_id, created_at, updated_at`

func (r *suggestionRepo) CreateBatch(ctx context.Context, items []*model.Suggestion) error {
	query := `
		INSERT INTO ai_suggestions (id, tenant_id, document_id, type, content, rationale,
		                            source_reference, status, assigned_reviewer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	for _, s := range items {
		content := s.Content
		if content == nil {
			content = map[string]any{}
		}
		err := r.db.QueryRow(ctx, query,
			s.ID, s.TenantID, s.DocumentID, s.Type, content, s.Rationale,
			s.SourceReference, s.Status, s.AssignedReviewerID,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("ошибка сохранения предложения %s: %w", s.ID, err)
		}
	}
	return nil
}

func (r *suggestionRepo) GetByID(ctx context.Context, id string, tenantID *string) (*model.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + `
		FROM ai_suggestions
		WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2`

	s, err := scanSuggestion(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения предложения: %w", err)
	}
	return s, nil
}

func (r *suggestionRepo) ListByDocument(ctx context.Context, documentID string, tenantID *string) ([]*model.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + `
		FROM ai_suggestions
		WHERE document_id = $1 AND tenant_id IS NOT DISTINCT FROM $2
		ORDER BY created_at, id`

	return r.list(ctx, query, documentID, tenantID)
}

func (r *suggestionRepo) ListAssigned(ctx context.Context, reviewerID string, tenantID *string, status model.SuggestionStatus) ([]*model.Suggestion, error) {
	query := `SELECT ` + suggestionColumns + `
		FROM ai_suggestions
		WHERE assigned_reviewer_id = $1 AND tenant_id IS NOT DISTINCT FROM $2 AND status = $3
		ORDER BY created_at, id`

	return r.list(ctx, query, reviewerID, tenantID, status)
}

func (r *suggestionRepo) list(ctx context.Context, query string, args ...any) ([]*model.Suggestion, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка предложений: %w", err)
	}
	defer rows.Close()

	var result []*model.Suggestion
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения предложения: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *suggestionRepo) Transition(ctx context.Context, t SuggestionTransition) (bool, error) {
	query := `
		UPDATE ai_suggestions SET
			status = $4,
			assigned_reviewer_id = COALESCE($5, assigned_reviewer_id),
			content = COALESCE($6::jsonb, content),
			updated_at = now()
		WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2 AND status = $3`

	// nil-интерфейс передаётся как NULL, пустая map — как {}
	var content any
	if t.Content != nil {
		content = t.Content
	}

	tag, err := r.db.Exec(ctx, query, t.ID, t.TenantID, t.From, t.To, t.AssignedReviewerID, content)
	if err != nil {
		return false, fmt.Errorf("ошибка смены статуса предложения: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// scanSuggestion читает строку ai_suggestions в модель.
func scanSuggestion(row pgx.Row) (*model.Suggestion, error) {
	s := &model.Suggestion{}
	err := row.Scan(
		&s.ID, &s.TenantID, &s.DocumentID, &s.Type, &s.Content, &s.Rationale, &s.SourceReference,
		&s.Status, &s.AssignedReviewerID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
