package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	entries map[uuid.UUID]Entry
	calls   int
}

func (m *memoryStore) Get(ctx context.Context, kind Kind, id uuid.UUID) (Entry, error) {
	m.calls++
	entry, ok := m.entries[id]
	if !ok || entry.Kind != kind {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func newTestService(t *testing.T, store Store) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(store, cache, nil), cache
}

func TestLookupCachesEntries(t *testing.T) {
	stock := 4
	id := uuid.New()
	store := &memoryStore{entries: map[uuid.UUID]Entry{
		id: {ID: id, Kind: KindProduct, Name: "Argan Oil", UnitPrice: decimal.NewFromInt(650), StockQuantity: &stock},
	}}
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Lookup(ctx, KindProduct, id)
	require.NoError(t, err)
	require.Equal(t, "Argan Oil", first.Name)
	require.True(t, first.UnitPrice.Equal(decimal.NewFromInt(650)))
	require.NotNil(t, first.StockQuantity)
	require.Equal(t, 4, *first.StockQuantity)

	_, err = svc.Lookup(ctx, KindProduct, id)
	require.NoError(t, err)
	require.Equal(t, 1, store.calls)
}

func TestInvalidateForcesReload(t *testing.T) {
	id := uuid.New()
	store := &memoryStore{entries: map[uuid.UUID]Entry{
		id: {ID: id, Kind: KindService, Name: "Haircut", UnitPrice: decimal.NewFromInt(500)},
	}}
	svc, cache := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Lookup(ctx, KindService, id)
	require.NoError(t, err)
	before, err := cache.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	_, err = svc.Lookup(ctx, KindService, id)
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestLookupNotFound(t *testing.T) {
	svc, _ := newTestService(t, &memoryStore{entries: map[uuid.UUID]Entry{}})
	_, err := svc.Lookup(context.Background(), KindService, uuid.New())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestLookupRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestService(t, &memoryStore{})
	_, err := svc.Lookup(context.Background(), Kind("voucher"), uuid.New())
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestLookupWithoutCache(t *testing.T) {
	id := uuid.New()
	store := &memoryStore{entries: map[uuid.UUID]Entry{
		id: {ID: id, Kind: KindMembership, Name: "Gold", UnitPrice: decimal.NewFromInt(5000)},
	}}
	svc := NewService(store, nil, nil)
	entry, err := svc.Lookup(context.Background(), KindMembership, id)
	require.NoError(t, err)
	require.Equal(t, "Gold", entry.Name)
	require.NoError(t, svc.Invalidate(context.Background()))
}
