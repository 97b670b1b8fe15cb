package registry

import "context"

// Storage defines the interface for registration persistence backends.
type Storage interface {
	// GetRecord retrieves a registration by its registry key.
	// Returns ErrRecordNotFound if none exists.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// GetRecordByTransaction retrieves a registration by its exact transaction id.
	// Returns ErrRecordNotFound if none exists.
	GetRecordByTransaction(ctx context.Context, transactionID string) (*Record, error)

	// FindByTransactionPrefix returns every registration whose transaction id
	// starts with prefix. Returns an empty slice when nothing matches.
	FindByTransactionPrefix(ctx context.Context, prefix string) ([]*Record, error)

	// CreateRecord stores a new registration with Version 1.
	// Returns ErrDuplicateTransaction if the transaction id is already stored.
	CreateRecord(ctx context.Context, rec *Record) error

	// UpdateRecord replaces a registration when the stored version equals rec.Version,
	// then increments rec.Version. Returns ErrVersionConflict on mismatch and
	// ErrDuplicateTransaction if a changed transaction id collides with another record.
	UpdateRecord(ctx context.Context, rec *Record) error
}
