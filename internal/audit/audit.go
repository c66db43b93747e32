// Пакет audit — журнал аудита: добавление записей и вычисление изменений.
//
// Пакет не управляет транзакциями: атомарность с сопутствующими
// изменениями обеспечивает вызывающий, передавая репозиторий транзакции.
package audit

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
	"github.com/bigkaa/complyreg/register-module/internal/repository"
)

// Append добавляет запись в журнал аудита.
func Append(
	ctx context.Context,
	repo repository.AuditRepository,
	actorID, action, entityType, entityID string,
	changes map[string]any,
) (*model.AuditEntry, error) {
	if changes == nil {
		changes = map[string]any{}
	}
	entry := &model.AuditEntry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("запись аудита %s: %w", action, err)
	}
	return entry, nil
}

// Diff сравнивает текущие значения полей с предлагаемыми и возвращает
// только изменённые поля. Поля, отсутствующие в proposed, не рассматриваются.
func Diff(old, proposed map[string]any) map[string]model.FieldChange {
	changes := make(map[string]model.FieldChange)
	for field, newValue := range proposed {
		oldValue := old[field]
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changes[field] = model.FieldChange{Old: oldValue, New: newValue}
	}
	return changes
}
