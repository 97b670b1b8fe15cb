// Package memory provides an in-memory implementation of the registry.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Storage implements registry.Storage using in-memory maps
type Storage struct {
	mu            sync.RWMutex
	records       map[string]*registry.Record // by registry key
	byTransaction map[string]string           // transaction id -> registry key
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		records:       make(map[string]*registry.Record),
		byTransaction: make(map[string]string),
	}
}

// GetRecord implements registry.Storage
func (s *Storage) GetRecord(_ context.Context, key string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, registry.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// GetRecordByTransaction implements registry.Storage
func (s *Storage) GetRecordByTransaction(_ context.Context, transactionID string) (*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byTransaction[transactionID]
	if !ok {
		return nil, registry.ErrRecordNotFound
	}
	return s.records[key].Clone(), nil
}

// FindByTransactionPrefix implements registry.Storage
func (s *Storage) FindByTransactionPrefix(_ context.Context, prefix string) ([]*registry.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registry.Record, 0)
	for transactionID, key := range s.byTransaction {
		if strings.HasPrefix(transactionID, prefix) {
			out = append(out, s.records[key].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out, nil
}

// CreateRecord implements registry.Storage
func (s *Storage) CreateRecord(_ context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTransaction[rec.TransactionID]; ok {
		return registry.ErrDuplicateTransaction
	}
	if _, ok := s.records[rec.Key]; ok {
		return fmt.Errorf("registry key %q already exists", rec.Key)
	}

	rec.Version = 1
	s.records[rec.Key] = rec.Clone()
	s.byTransaction[rec.TransactionID] = rec.Key
	return nil
}

// UpdateRecord implements registry.Storage
func (s *Storage) UpdateRecord(_ context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.Key]
	if !ok {
		return registry.ErrRecordNotFound
	}
	if current.Version != rec.Version {
		return registry.ErrVersionConflict
	}
	if current.TransactionID != rec.TransactionID {
		if owner, taken := s.byTransaction[rec.TransactionID]; taken && owner != rec.Key {
			return registry.ErrDuplicateTransaction
		}
		delete(s.byTransaction, current.TransactionID)
		s.byTransaction[rec.TransactionID] = rec.Key
	}

	rec.Version++
	s.records[rec.Key] = rec.Clone()
	return nil
}

// PutRecord stores rec as-is, keeping its version. It lets the storage act as
// the cache tier of storage/tiered.
func (s *Storage) PutRecord(_ context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.records[rec.Key]; ok && current.TransactionID != rec.TransactionID {
		delete(s.byTransaction, current.TransactionID)
	}
	s.records[rec.Key] = rec.Clone()
	s.byTransaction[rec.TransactionID] = rec.Key
	return nil
}
