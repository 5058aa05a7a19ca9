package repomanager

import (
	"context"

	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/memory"
)

// MemoryStore adapts memory.Store to Store.
type MemoryStore struct {
	s *memory.Store
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{s: memory.NewStore()}
}

func (m *MemoryStore) Repos() Repositories {
	return m.s.Repos()
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return m.s.RunInTx(ctx, func(ctx context.Context, r *memory.Repos) error {
		return fn(ctx, r)
	})
}

func (m *MemoryStore) RunMigrations(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
