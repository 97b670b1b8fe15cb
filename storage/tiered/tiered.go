// Package tiered provides a Hot/Cold tiered storage adapter. Cold is the durable
// source of truth (Postgres, Firestore) and owns every versioned write. Hot is a
// fast cache (Redis, Memory) that serves single-record reads and is refreshed
// after each committed write.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Cache is the hot tier. PutRecord replaces a record without a version check.
type Cache interface {
	GetRecord(ctx context.Context, key string) (*registry.Record, error)
	GetRecordByTransaction(ctx context.Context, transactionID string) (*registry.Record, error)
	PutRecord(ctx context.Context, rec *registry.Record) error
}

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache (e.g., Redis, Memory)
	Hot Cache

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold registry.Storage

	// AsyncSync defers hot refreshes to a background worker. If false, the hot
	// tier is refreshed before the write returns.
	AsyncSync bool

	// SyncBufferSize is the size of the buffered channel for async refreshes.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when a hot refresh fails.
	AsyncErrorHandler func(error)
}

// Storage implements registry.Storage over a hot cache and a cold store.
//   - Read-Through: GetRecord, GetRecordByTransaction (Hot → Cold → Populate Hot)
//   - Cold-Only: FindByTransactionPrefix
//   - Write-Through: CreateRecord, UpdateRecord (Cold → Hot)
type Storage struct {
	hot  Cache
	cold registry.Storage
	conf Config

	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncSync {
		s.startWorker()
	}

	return s, nil
}

// Close drains pending refreshes and stops the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncSync {
		select {
		case <-s.shutdown:
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background refresh loop. Jobs run in order, so the
// last committed version of a record reaches the cache last.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.report(job())
			case <-s.shutdown:
				for {
					select {
					case job := <-s.syncQueue:
						s.report(job())
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) report(err error) {
	if err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// GetRecord implements registry.Storage with read-through strategy.
func (s *Storage) GetRecord(ctx context.Context, key string) (*registry.Record, error) {
	if rec, err := s.hot.GetRecord(ctx, key); err == nil {
		return rec, nil
	}

	rec, err := s.cold.GetRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, rec)
	return rec, nil
}

// GetRecordByTransaction implements registry.Storage with read-through strategy.
func (s *Storage) GetRecordByTransaction(ctx context.Context, transactionID string) (*registry.Record, error) {
	if rec, err := s.hot.GetRecordByTransaction(ctx, transactionID); err == nil {
		return rec, nil
	}

	rec, err := s.cold.GetRecordByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	s.populate(ctx, rec)
	return rec, nil
}

// --- Strategy: Cold-Only ---

// FindByTransactionPrefix implements registry.Storage. The hot tier only holds
// records it has seen, so prefix scans go to the source of truth.
func (s *Storage) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error) {
	return s.cold.FindByTransactionPrefix(ctx, prefix)
}

// --- Strategy: Write-Through (Cold → Hot) ---

// CreateRecord implements registry.Storage with write-through strategy.
func (s *Storage) CreateRecord(ctx context.Context, rec *registry.Record) error {
	if err := s.cold.CreateRecord(ctx, rec); err != nil {
		return err
	}
	s.refresh(ctx, rec.Clone())
	return nil
}

// UpdateRecord implements registry.Storage with write-through strategy.
// A version conflict reloads the cache from cold so the caller's retry reads
// the current version.
func (s *Storage) UpdateRecord(ctx context.Context, rec *registry.Record) error {
	err := s.cold.UpdateRecord(ctx, rec)
	switch {
	case err == nil:
		s.refresh(ctx, rec.Clone())
		return nil
	case errors.Is(err, registry.ErrVersionConflict):
		if current, getErr := s.cold.GetRecord(ctx, rec.Key); getErr == nil {
			s.populate(ctx, current)
		}
		return err
	default:
		return err
	}
}

// populate writes a record read from cold into the cache synchronously.
func (s *Storage) populate(ctx context.Context, rec *registry.Record) {
	s.report(s.hot.PutRecord(ctx, rec.Clone()))
}

// refresh writes a committed record into the cache, in the background when
// AsyncSync is enabled.
func (s *Storage) refresh(ctx context.Context, rec *registry.Record) {
	if !s.conf.AsyncSync {
		s.report(s.hot.PutRecord(ctx, rec))
		return
	}

	select {
	case s.syncQueue <- func() error {
		// Context background ensures completion even if request cancels
		return s.hot.PutRecord(context.Background(), rec)
	}:
	default:
		s.report(errors.New("sync queue full, dropping hot refresh"))
	}
}
