// Package storagetest holds the behaviour every registry.Storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// NewRecord returns a minimal record for key and transactionID.
func NewRecord(key, transactionID string) *registry.Record {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	expires := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return &registry.Record{
		ID:            "id-" + key,
		Key:           key,
		TransactionID: transactionID,
		Product:       "pkg",
		Status:        registry.StatusActive,
		Expires:       &expires,
		Custom:        map[string]string{"registry_seats": "5"},
		Variations:    []registry.Variation{{SKU: "addon", Name: "Add-on"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Run exercises storage returned by newStorage. Each subtest gets a fresh, empty storage.
func Run(t *testing.T, newStorage func(t *testing.T) registry.Storage) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStorage(t)) })
	t.Run("DuplicateTransaction", func(t *testing.T) { testDuplicateTransaction(t, newStorage(t)) })
	t.Run("UpdateVersioning", func(t *testing.T) { testUpdateVersioning(t, newStorage(t)) })
	t.Run("UpdateRekeysTransaction", func(t *testing.T) { testUpdateRekeys(t, newStorage(t)) })
	t.Run("FindByTransactionPrefix", func(t *testing.T) { testFindByPrefix(t, newStorage(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStorage(t)) })
}

func testCreateAndGet(t *testing.T, s registry.Storage) {
	ctx := context.Background()
	rec := NewRecord("K1", "100|shop.example.com|pro")
	require.NoError(t, s.CreateRecord(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	got, err := s.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, "100|shop.example.com|pro", got.TransactionID)
	assert.Equal(t, "pkg", got.Product)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "5", got.Custom["registry_seats"])
	assert.Equal(t, []registry.Variation{{SKU: "addon", Name: "Add-on"}}, got.Variations)
	require.NotNil(t, got.Expires)
	assert.True(t, rec.Expires.Equal(*got.Expires))

	got, err = s.GetRecordByTransaction(ctx, "100|shop.example.com|pro")
	require.NoError(t, err)
	assert.Equal(t, "K1", got.Key)

	_, err = s.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrRecordNotFound)
	_, err = s.GetRecordByTransaction(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrRecordNotFound)
}

func testDuplicateTransaction(t *testing.T, s registry.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateRecord(ctx, NewRecord("K1", "100|shop.example.com")))
	err := s.CreateRecord(ctx, NewRecord("K2", "100|shop.example.com"))
	assert.ErrorIs(t, err, registry.ErrDuplicateTransaction)

	_, err = s.GetRecord(ctx, "K2")
	assert.ErrorIs(t, err, registry.ErrRecordNotFound)
}

func testUpdateVersioning(t *testing.T, s registry.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateRecord(ctx, NewRecord("K1", "100|shop.example.com")))

	first, err := s.GetRecord(ctx, "K1")
	require.NoError(t, err)
	stale, err := s.GetRecord(ctx, "K1")
	require.NoError(t, err)

	first.Status = registry.StatusInactive
	require.NoError(t, s.UpdateRecord(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	stale.Status = registry.StatusTerminated
	assert.ErrorIs(t, s.UpdateRecord(ctx, stale), registry.ErrVersionConflict)

	got, err := s.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusInactive, got.Status)
	assert.Equal(t, int64(2), got.Version)

	missing := NewRecord("K9", "900|shop.example.com")
	missing.Version = 1
	assert.ErrorIs(t, s.UpdateRecord(ctx, missing), registry.ErrRecordNotFound)
}

func testUpdateRekeys(t *testing.T, s registry.Storage) {
	ctx := context.Background()
	require.NoError(t, s.CreateRecord(ctx, NewRecord("K1", "100|shop.example.com|pro")))
	require.NoError(t, s.CreateRecord(ctx, NewRecord("K2", "200|shop.example.com|pro")))

	rec, err := s.GetRecord(ctx, "K1")
	require.NoError(t, err)
	rec.TransactionID = "300|shop.example.com|pro"
	require.NoError(t, s.UpdateRecord(ctx, rec))

	_, err = s.GetRecordByTransaction(ctx, "100|shop.example.com|pro")
	assert.ErrorIs(t, err, registry.ErrRecordNotFound)
	got, err := s.GetRecordByTransaction(ctx, "300|shop.example.com|pro")
	require.NoError(t, err)
	assert.Equal(t, "K1", got.Key)

	got.TransactionID = "200|shop.example.com|pro"
	assert.ErrorIs(t, s.UpdateRecord(ctx, got), registry.ErrDuplicateTransaction)
}

func testFindByPrefix(t *testing.T, s registry.Storage) {
	ctx := context.Background()
	for i, id := range []string{
		"100|shop.example.com|pro",
		"100|shop.example.com",
		"100|shop.example.com|addon",
		"1000|shop.example.com",
		"100|other.example.com",
		"100%|shop.example.com",
	} {
		require.NoError(t, s.CreateRecord(ctx, NewRecord(fmt.Sprintf("K%d", i), id)))
	}

	recs, err := s.FindByTransactionPrefix(ctx, "100|shop.example.com")
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.TransactionID)
	}
	assert.Equal(t, []string{"100|shop.example.com", "100|shop.example.com|addon", "100|shop.example.com|pro"}, ids)

	recs, err = s.FindByTransactionPrefix(ctx, "555|shop.example.com")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)

	recs, err = s.FindByTransactionPrefix(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, recs, 1, "prefix is matched literally")
	assert.Equal(t, "100%|shop.example.com", recs[0].TransactionID)
}

func testConcurrentCreate(t *testing.T, s registry.Storage) {
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, duplicates := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateRecord(ctx, NewRecord(fmt.Sprintf("K%d", i), "100|shop.example.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, registry.ErrDuplicateTransaction):
				duplicates++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, duplicates)
}

// Putter is a storage that can also replace records unconditionally.
type Putter interface {
	registry.Storage
	PutRecord(ctx context.Context, rec *registry.Record) error
}

// RunPut exercises PutRecord on storage returned by newStorage.
func RunPut(t *testing.T, newStorage func(t *testing.T) Putter) {
	t.Run("PutKeepsVersion", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		rec := NewRecord("K1", "100|shop.example.com|pro")
		rec.Version = 7
		require.NoError(t, s.PutRecord(ctx, rec))

		got, err := s.GetRecordByTransaction(ctx, "100|shop.example.com|pro")
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Version)
		assert.Equal(t, "K1", got.Key)
	})

	t.Run("PutMovesTransaction", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		require.NoError(t, s.CreateRecord(ctx, NewRecord("K1", "100|shop.example.com")))

		moved := NewRecord("K1", "200|shop.example.com")
		moved.Version = 2
		require.NoError(t, s.PutRecord(ctx, moved))

		_, err := s.GetRecordByTransaction(ctx, "100|shop.example.com")
		assert.ErrorIs(t, err, registry.ErrRecordNotFound)
		recs, err := s.FindByTransactionPrefix(ctx, "100|")
		require.NoError(t, err)
		assert.Empty(t, recs)

		got, err := s.GetRecord(ctx, "K1")
		require.NoError(t, err)
		assert.Equal(t, "200|shop.example.com", got.TransactionID)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("PutRequiresIdentity", func(t *testing.T) {
		err := newStorage(t).PutRecord(context.Background(), &registry.Record{Key: "K1"})
		assert.ErrorIs(t, err, registry.ErrInvalidRegistration)
	})
}
