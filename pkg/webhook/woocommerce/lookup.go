package woocommerce

import (
	"context"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Registry is the registry API the engine drives. *registry.Manager implements it.
type Registry interface {
	FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error)
	Create(ctx context.Context, reg *registry.Registration) (*registry.Result, error)
	Revise(ctx context.Context, reg *registry.Registration) (*registry.Result, error)
	Renew(ctx context.Context, reg *registry.Registration) (*registry.Result, error)
	Activate(ctx context.Context, reg *registry.Registration) (*registry.Result, error)
	Deactivate(ctx context.Context, reg *registry.Registration) (*registry.Result, error)
	Restore(ctx context.Context, key string) (*registry.Record, error)
}

// ExistingKey identifies a stored registration of an order.
type ExistingKey struct {
	TransactionID string
	RecordID      string
	Key           string
	Status        registry.Status
	Trashed       bool
}

// ExistingKeys are the stored registrations of one order, ordered by transaction id.
type ExistingKeys []ExistingKey

// Get returns the registration stored under transactionID.
func (k ExistingKeys) Get(transactionID string) (ExistingKey, bool) {
	for _, e := range k {
		if e.TransactionID == transactionID {
			return e, true
		}
	}
	return ExistingKey{}, false
}

// Has reports whether a registration is stored under transactionID.
func (k ExistingKeys) Has(transactionID string) bool {
	_, ok := k.Get(transactionID)
	return ok
}

// Rekey moves every transaction id from the from prefix to the to prefix.
func (k ExistingKeys) Rekey(from, to string) ExistingKeys {
	out := make(ExistingKeys, len(k))
	for i, e := range k {
		if e.TransactionID == from {
			e.TransactionID = to
		} else if strings.HasPrefix(e.TransactionID, from+"|") {
			e.TransactionID = to + strings.TrimPrefix(e.TransactionID, from)
		}
		out[i] = e
	}
	return out
}

// lookupExisting returns the registrations stored for the order-level
// transaction id prefix, including its item-level ids. No match is not an error.
func lookupExisting(ctx context.Context, reg Registry, prefix string) (ExistingKeys, error) {
	records, err := reg.FindByTransactionPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make(ExistingKeys, 0, len(records))
	for _, rec := range records {
		if rec.TransactionID != prefix && !strings.HasPrefix(rec.TransactionID, prefix+"|") {
			continue
		}
		keys = append(keys, ExistingKey{
			TransactionID: rec.TransactionID,
			RecordID:      rec.ID,
			Key:           rec.Key,
			Status:        rec.Status,
			Trashed:       rec.Trashed,
		})
	}
	return keys, nil
}
