package registry

import (
	"context"
	"time"
)

// CircuitBreakerStorage wraps a Storage implementation with circuit breaker protection
// and records storage timings.
type CircuitBreakerStorage struct {
	storage Storage
	cb      CircuitBreaker
	metrics Metrics
}

// NewCircuitBreakerStorage creates a new storage wrapper with circuit breaker.
func NewCircuitBreakerStorage(storage Storage, cb CircuitBreaker, metrics Metrics) *CircuitBreakerStorage {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &CircuitBreakerStorage{
		storage: storage,
		cb:      cb,
		metrics: metrics,
	}
}

func (s *CircuitBreakerStorage) execute(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := s.cb.Execute(ctx, fn)
	s.metrics.RecordStorageOperation(op, time.Since(start), err)
	return err
}

func (s *CircuitBreakerStorage) GetRecord(ctx context.Context, key string) (*Record, error) {
	var rec *Record
	err := s.execute(ctx, "get_record", func() error {
		var e error
		rec, e = s.storage.GetRecord(ctx, key)
		return e
	})
	return rec, err
}

func (s *CircuitBreakerStorage) GetRecordByTransaction(ctx context.Context, transactionID string) (*Record, error) {
	var rec *Record
	err := s.execute(ctx, "get_record_by_transaction", func() error {
		var e error
		rec, e = s.storage.GetRecordByTransaction(ctx, transactionID)
		return e
	})
	return rec, err
}

func (s *CircuitBreakerStorage) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*Record, error) {
	var recs []*Record
	err := s.execute(ctx, "find_by_transaction_prefix", func() error {
		var e error
		recs, e = s.storage.FindByTransactionPrefix(ctx, prefix)
		return e
	})
	return recs, err
}

func (s *CircuitBreakerStorage) CreateRecord(ctx context.Context, rec *Record) error {
	return s.execute(ctx, "create_record", func() error {
		return s.storage.CreateRecord(ctx, rec)
	})
}

func (s *CircuitBreakerStorage) UpdateRecord(ctx context.Context, rec *Record) error {
	return s.execute(ctx, "update_record", func() error {
		return s.storage.UpdateRecord(ctx, rec)
	})
}
