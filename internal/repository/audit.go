package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// AuditRepository — интерфейс для таблицы audit_logs.
// Только вставка и чтение: UPDATE/DELETE запрещены триггером.
type AuditRepository interface {
	// Insert добавляет запись журнала.
	Insert(ctx context.Context, e *model.AuditEntry) error
	// ListByEntity возвращает историю сущности в хронологическом порядке.
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*model.AuditEntry, error)
}

type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий журнала аудита.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, changes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	changes := e.Changes
	if changes == nil {
		changes = map[string]any{}
	}

	err := r.db.QueryRow(ctx, query, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, changes).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал аудита: %w", err)
	}
	return nil
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*model.AuditEntry, error) {
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, changes, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditEntry
	for rows.Next() {
		e := &model.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Changes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
