// user_sync.go — зеркалирование учётных записей IdP в таблицу users.
//
// Конвейер определяет арендатора документа по загрузившему пользователю,
// поэтому каждый аутентифицированный пользователь сохраняется в users.
// Запись выполняется, только если данные из токена изменились.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// UserSync — синхронизация пользователей из claims JWT.
type UserSync struct {
	uow     UnitOfWork
	tenants *TenantCache
	// seen — последний сохранённый отпечаток пользователя
	seen   *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewUserSync создаёт синхронизатор пользователей.
// tenants может быть nil.
func NewUserSync(uow UnitOfWork, tenants *TenantCache, maxSize int, ttl time.Duration, logger *slog.Logger) *UserSync {
	return &UserSync{
		uow:     uow,
		tenants: tenants,
		seen:    expirable.NewLRU[string, string](maxSize, nil, ttl),
		logger:  logger.With(slog.String("component", "user_sync")),
	}
}

// Sync сохраняет пользователя, если его данные изменились с прошлой записи.
func (s *UserSync) Sync(ctx context.Context, u model.User) error {
	fp := userFingerprint(u)
	if prev, ok := s.seen.Get(u.ID); ok && prev == fp {
		return nil
	}

	if err := s.uow.Repos().Users.Upsert(ctx, &u); err != nil {
		return fmt.Errorf("синхронизация пользователя %s: %w", u.ID, err)
	}
	s.seen.Add(u.ID, fp)
	if s.tenants != nil {
		s.tenants.Invalidate(u.ID)
	}

	s.logger.Debug("Пользователь синхронизирован",
		slog.String("user_id", u.ID),
		slog.String("role", u.Role),
	)
	return nil
}

func userFingerprint(u model.User) string {
	tenant := ""
	if u.TenantID != nil {
		tenant = *u.TenantID
	}
	return tenant + "|" + u.Email + "|" + u.Role
}
