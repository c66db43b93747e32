package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// UserRepository — интерфейс для таблицы users (зеркало учётных записей IdP).
type UserRepository interface {
	// Upsert создаёт или обновляет пользователя.
	Upsert(ctx context.Context, u *model.User) error
	// GetTenantID возвращает арендатора пользователя (nil — не привязан).
	GetTenantID(ctx context.Context, userID string) (*string, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, tenant_id, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			email = EXCLUDED.email,
			role = EXCLUDED.role
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query, u.ID, u.TenantID, u.Email, u.Role).Scan(&u.CreatedAt); err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetTenantID(ctx context.Context, userID string) (*string, error) {
	var tenantID *string
	err := r.db.QueryRow(ctx, `SELECT tenant_id FROM users WHERE id = $1`, userID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения арендатора пользователя: %w", err)
	}
	return tenantID, nil
}
