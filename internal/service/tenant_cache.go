// tenant_cache.go — LRU-кэш арендаторов пользователей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// tenantEntry — закэшированный арендатор. nil — пользователь без арендатора.
type tenantEntry struct {
	tenantID *string
}

// TenantCache — кэш соответствия «пользователь → арендатор».
// Промахи идут в репозиторий пользователей; отсутствующие пользователи не кэшируются.
type TenantCache struct {
	uow   UnitOfWork
	cache *expirable.LRU[string, tenantEntry]
}

// NewTenantCache создаёт кэш с указанным максимальным размером и TTL.
func NewTenantCache(uow UnitOfWork, maxSize int, ttl time.Duration) *TenantCache {
	return &TenantCache{
		uow:   uow,
		cache: expirable.NewLRU[string, tenantEntry](maxSize, nil, ttl),
	}
}

// Resolve возвращает арендатора пользователя.
// ErrNotFound — пользователя нет в БД.
func (c *TenantCache) Resolve(ctx context.Context, userID string) (*string, error) {
	if e, ok := c.cache.Get(userID); ok {
		tenantCacheTotal.WithLabelValues("hit").Inc()
		return e.tenantID, nil
	}
	tenantCacheTotal.WithLabelValues("miss").Inc()

	tenantID, err := c.uow.Repos().Users.GetTenantID(ctx, userID)
	if err != nil {
		return nil, mapRepoError(err, "пользователь "+userID)
	}
	c.cache.Add(userID, tenantEntry{tenantID: tenantID})
	return tenantID, nil
}

// Invalidate удаляет пользователя из кэша.
func (c *TenantCache) Invalidate(userID string) {
	c.cache.Remove(userID)
}
