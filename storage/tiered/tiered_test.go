package tiered

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/storage/memory"
	"github.com/mihaimyh/goregistry/storage/storagetest"
)

func TestNew(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
		assert.NoError(t, err)
		assert.NotNil(t, storage)
		assert.NoError(t, storage.Close())
	})

	t.Run("nil hot storage", func(t *testing.T) {
		storage, err := New(Config{Cold: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "hot and cold storage are required")
	})

	t.Run("nil cold storage", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New()})
		assert.Error(t, err)
		assert.Nil(t, storage)
		assert.Contains(t, err.Error(), "hot and cold storage are required")
	})

	t.Run("default sync buffer size", func(t *testing.T) {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New(), AsyncSync: true})
		require.NoError(t, err)
		defer storage.Close()
		assert.Equal(t, 1000, cap(storage.syncQueue))
	})

	t.Run("custom sync buffer size", func(t *testing.T) {
		storage, err := New(Config{
			Hot:            memory.New(),
			Cold:           memory.New(),
			AsyncSync:      true,
			SyncBufferSize: 500,
		})
		require.NoError(t, err)
		defer storage.Close()
		assert.Equal(t, 500, cap(storage.syncQueue))
	})
}

func TestStorage_Conformance(t *testing.T) {
	storagetest.Run(t, func(*testing.T) registry.Storage {
		storage, err := New(Config{Hot: memory.New(), Cold: memory.New()})
		require.NoError(t, err)
		return storage
	})
}

// --- Read-Through Strategy Tests ---

func TestStorage_GetRecord_ReadThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("hot hit", func(t *testing.T) {
		hot, cold := memory.New(), memory.New()
		storage, _ := New(Config{Hot: hot, Cold: cold})
		defer storage.Close()

		rec := storagetest.NewRecord("K1", "100|shop.example.com")
		rec.Version = 4
		require.NoError(t, hot.PutRecord(ctx, rec))

		got, err := storage.GetRecord(ctx, "K1")
		require.NoError(t, err)
		assert.Equal(t, int64(4), got.Version)

		_, err = cold.GetRecord(ctx, "K1")
		assert.ErrorIs(t, err, registry.ErrRecordNotFound, "cold was never written to")
	})

	t.Run("hot miss, cold hit (read-through)", func(t *testing.T) {
		hot, cold := memory.New(), memory.New()
		storage, _ := New(Config{Hot: hot, Cold: cold})
		defer storage.Close()

		require.NoError(t, cold.CreateRecord(ctx, storagetest.NewRecord("K1", "100|shop.example.com")))

		got, err := storage.GetRecordByTransaction(ctx, "100|shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, "K1", got.Key)

		cached, err := hot.GetRecord(ctx, "K1")
		require.NoError(t, err, "hot should now be populated")
		assert.Equal(t, int64(1), cached.Version)
	})

	t.Run("both miss", func(t *testing.T) {
		storage, _ := New(Config{Hot: memory.New(), Cold: memory.New()})
		defer storage.Close()

		_, err := storage.GetRecord(ctx, "nonexistent")
		assert.ErrorIs(t, err, registry.ErrRecordNotFound)
	})
}

func TestStorage_FindByTransactionPrefix_ColdOnly(t *testing.T) {
	ctx := context.Background()
	hot, cold := memory.New(), memory.New()
	storage, _ := New(Config{Hot: hot, Cold: cold})
	defer storage.Close()

	require.NoError(t, hot.PutRecord(ctx, storagetest.NewRecord("H1", "100|shop.example.com|stale")))
	require.NoError(t, cold.CreateRecord(ctx, storagetest.NewRecord("K1", "100|shop.example.com|pro")))

	recs, err := storage.FindByTransactionPrefix(ctx, "100|shop.example.com")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "K1", recs[0].Key)
}

// --- Write-Through Strategy Tests ---

func TestStorage_CreateRecord_WriteThrough(t *testing.T) {
	ctx := context.Background()
	hot, cold := memory.New(), memory.New()
	storage, _ := New(Config{Hot: hot, Cold: cold})
	defer storage.Close()

	require.NoError(t, storage.CreateRecord(ctx, storagetest.NewRecord("K1", "100|shop.example.com")))

	for name, s := range map[string]registry.Storage{"hot": hot, "cold": cold} {
		got, err := s.GetRecord(ctx, "K1")
		require.NoError(t, err, name)
		assert.Equal(t, int64(1), got.Version, name)
	}
}

func TestStorage_UpdateRecord_WriteThrough(t *testing.T) {
	ctx := context.Background()
	hot, cold := memory.New(), memory.New()
	storage, _ := New(Config{Hot: hot, Cold: cold})
	defer storage.Close()

	rec := storagetest.NewRecord("K1", "100|shop.example.com")
	require.NoError(t, storage.CreateRecord(ctx, rec))
	rec.Status = registry.StatusInactive
	require.NoError(t, storage.UpdateRecord(ctx, rec))

	cached, err := hot.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusInactive, cached.Status)
	assert.Equal(t, int64(2), cached.Version)
}

func TestStorage_UpdateRecord_ConflictRefreshesHot(t *testing.T) {
	ctx := context.Background()
	hot, cold := memory.New(), memory.New()
	storage, _ := New(Config{Hot: hot, Cold: cold})
	defer storage.Close()

	require.NoError(t, storage.CreateRecord(ctx, storagetest.NewRecord("K1", "100|shop.example.com")))

	// Another writer advances cold behind the cache's back.
	other, err := cold.GetRecord(ctx, "K1")
	require.NoError(t, err)
	other.Status = registry.StatusTerminated
	require.NoError(t, cold.UpdateRecord(ctx, other))

	stale, err := storage.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.Version)

	stale.Status = registry.StatusInactive
	assert.ErrorIs(t, storage.UpdateRecord(ctx, stale), registry.ErrVersionConflict)

	fresh, err := storage.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fresh.Version)
	assert.Equal(t, registry.StatusTerminated, fresh.Status)
}

func TestStorage_WithManager(t *testing.T) {
	ctx := context.Background()
	storage, _ := New(Config{Hot: memory.New(), Cold: memory.New()})
	defer storage.Close()

	manager, err := registry.NewManager(storage, registry.Config{})
	require.NoError(t, err)

	created, err := manager.Create(ctx, &registry.Registration{TransactionID: "7|shop.example.com|pro", Product: "pro"})
	require.NoError(t, err)
	revised, err := manager.Create(ctx, &registry.Registration{TransactionID: "7|shop.example.com|pro", Product: "pro", Name: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, registry.ActionRevise, revised.Action)
	assert.Equal(t, created.Record.Key, revised.Record.Key)
	assert.Equal(t, "Ada", revised.Record.Name)
}

// --- Async Refresh Tests ---

type failingCache struct {
	*memory.Storage
	err error
}

func (f *failingCache) PutRecord(context.Context, *registry.Record) error {
	return f.err
}

func TestStorage_AsyncRefresh(t *testing.T) {
	ctx := context.Background()
	hot, cold := memory.New(), memory.New()
	storage, _ := New(Config{Hot: hot, Cold: cold, AsyncSync: true})

	rec := storagetest.NewRecord("K1", "100|shop.example.com")
	require.NoError(t, storage.CreateRecord(ctx, rec))
	require.NoError(t, storage.Close(), "close drains the queue")

	cached, err := hot.GetRecord(ctx, "K1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Version)
}

func TestStorage_RefreshFailureReported(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var reported []error

	storage, _ := New(Config{
		Hot:  &failingCache{Storage: memory.New(), err: errors.New("cache down")},
		Cold: memory.New(),
		AsyncErrorHandler: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, err)
		},
	})
	defer storage.Close()

	require.NoError(t, storage.CreateRecord(ctx, storagetest.NewRecord("K1", "100|shop.example.com")),
		"a cache failure never fails the write")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "cache down")
}

func TestStorage_Close_Idempotent(t *testing.T) {
	storage, _ := New(Config{Hot: memory.New(), Cold: memory.New(), AsyncSync: true})
	assert.NoError(t, storage.Close())
	assert.NoError(t, storage.Close())
}
