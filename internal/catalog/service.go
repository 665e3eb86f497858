package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Store abstracts the persistent catalog.
type Store interface {
	Get(ctx context.Context, kind Kind, id uuid.UUID) (Entry, error)
}

// Service serves catalog lookups through the cache. Concurrent lookups for
// the same entry share one backend round trip.
type Service struct {
	store  Store
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// Lookup returns the entry for kind and id.
func (s *Service) Lookup(ctx context.Context, kind Kind, id uuid.UUID) (Entry, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Entry{}, err
	}
	key, err := s.cache.BuildKey(ctx, "catalog", string(kind), id.String())
	if err != nil {
		s.logger.Warn("catalog cache unavailable", slog.Any("error", err))
		return s.store.Get(ctx, kind, id)
	}
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		return s.cache.FetchEntry(ctx, key, func(ctx context.Context) (Entry, error) {
			return s.store.Get(ctx, kind, id)
		})
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Entry{}, fmt.Errorf("catalog: lookup %s %s: %w", kind, id, res.Err)
		}
		return res.Val.(Entry), nil
	}
}

// Invalidate drops every cached snapshot, typically after stock moved.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
