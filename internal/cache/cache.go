package cache

import (
	"context"
	"time"

	"tokopos/backend/internal/domain"
)

// TreeCache holds the assembled category tree. Writes to categories must
// invalidate it so the next read rebuilds from the store.
type TreeCache interface {
	Get(ctx context.Context, key string) ([]domain.CategoryNode, bool, error)
	Set(ctx context.Context, key string, value []domain.CategoryNode, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopTreeCache struct{}

func (NoopTreeCache) Get(_ context.Context, _ string) ([]domain.CategoryNode, bool, error) {
	return nil, false, nil
}

func (NoopTreeCache) Set(_ context.Context, _ string, _ []domain.CategoryNode, _ time.Duration) error {
	return nil
}

func (NoopTreeCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
