// Package firestore provides a Firestore implementation of the registry.Storage interface.
// Records live in one collection keyed by registry key. A second collection maps
// transaction ids to keys and is maintained inside the same transaction, which is
// how duplicate registrations are refused.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

var errKeyExists = errors.New("registry key already exists")

// Storage implements registry.Storage using Google Cloud Firestore
type Storage struct {
	client                 *firestore.Client
	recordsCollection      string
	transactionsCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// RecordsCollection is the Firestore collection for registrations
	// Default: "registry_records"
	RecordsCollection string

	// TransactionsCollection is the Firestore collection indexing transaction ids
	// Default: "registry_transactions"
	TransactionsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.RecordsCollection == "" {
		config.RecordsCollection = "registry_records"
	}
	if config.TransactionsCollection == "" {
		config.TransactionsCollection = "registry_transactions"
	}

	return &Storage{
		client:                 client,
		recordsCollection:      config.RecordsCollection,
		transactionsCollection: config.TransactionsCollection,
	}, nil
}

// recordDoc is the stored shape of a registry.Record.
type recordDoc struct {
	ID            string            `firestore:"id"`
	Key           string            `firestore:"key"`
	TransactionID string            `firestore:"transactionId"`
	Product       string            `firestore:"product"`
	Description   string            `firestore:"description,omitempty"`
	Status        string            `firestore:"status"`
	Effective     *time.Time        `firestore:"effective,omitempty"`
	Expires       *time.Time        `firestore:"expires,omitempty"`
	PaidDate      *time.Time        `firestore:"paidDate,omitempty"`
	NextPay       *time.Time        `firestore:"nextPay,omitempty"`
	AmountDue     float64           `firestore:"amountDue"`
	PaymentID     string            `firestore:"paymentId,omitempty"`
	PaymentAmount float64           `firestore:"paymentAmount"`
	Name          string            `firestore:"name,omitempty"`
	Email         string            `firestore:"email,omitempty"`
	Company       string            `firestore:"company,omitempty"`
	Address       string            `firestore:"address,omitempty"`
	Phone         string            `firestore:"phone,omitempty"`
	Variations    []variationDoc    `firestore:"variations,omitempty"`
	Custom        map[string]string `firestore:"custom,omitempty"`
	Trashed       bool              `firestore:"trashed"`
	Version       int64             `firestore:"version"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

type variationDoc struct {
	SKU  string `firestore:"sku"`
	Name string `firestore:"name"`
}

func toDoc(rec *registry.Record) *recordDoc {
	doc := &recordDoc{
		ID:            rec.ID,
		Key:           rec.Key,
		TransactionID: rec.TransactionID,
		Product:       rec.Product,
		Description:   rec.Description,
		Status:        string(rec.Status),
		Effective:     rec.Effective,
		Expires:       rec.Expires,
		PaidDate:      rec.PaidDate,
		NextPay:       rec.NextPay,
		AmountDue:     rec.AmountDue,
		PaymentID:     rec.PaymentID,
		PaymentAmount: rec.PaymentAmount,
		Name:          rec.Name,
		Email:         rec.Email,
		Company:       rec.Company,
		Address:       rec.Address,
		Phone:         rec.Phone,
		Custom:        rec.Custom,
		Trashed:       rec.Trashed,
		Version:       rec.Version,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	for _, v := range rec.Variations {
		doc.Variations = append(doc.Variations, variationDoc{SKU: v.SKU, Name: v.Name})
	}
	return doc
}

func (d *recordDoc) record() *registry.Record {
	rec := &registry.Record{
		ID:            d.ID,
		Key:           d.Key,
		TransactionID: d.TransactionID,
		Product:       d.Product,
		Description:   d.Description,
		Status:        registry.Status(d.Status),
		Effective:     utc(d.Effective),
		Expires:       utc(d.Expires),
		PaidDate:      utc(d.PaidDate),
		NextPay:       utc(d.NextPay),
		AmountDue:     d.AmountDue,
		PaymentID:     d.PaymentID,
		PaymentAmount: d.PaymentAmount,
		Name:          d.Name,
		Email:         d.Email,
		Company:       d.Company,
		Address:       d.Address,
		Phone:         d.Phone,
		Custom:        d.Custom,
		Trashed:       d.Trashed,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	for _, v := range d.Variations {
		rec.Variations = append(rec.Variations, registry.Variation{SKU: v.SKU, Name: v.Name})
	}
	return rec
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// GetRecord implements registry.Storage
func (s *Storage) GetRecord(ctx context.Context, key string) (*registry.Record, error) {
	snap, err := s.recordDoc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, registry.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decode(snap)
}

// GetRecordByTransaction implements registry.Storage
func (s *Storage) GetRecordByTransaction(ctx context.Context, transactionID string) (*registry.Record, error) {
	snap, err := s.transactionDoc(transactionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, registry.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	key, ok := snap.Data()["key"].(string)
	if !ok || key == "" {
		return nil, registry.ErrRecordNotFound
	}
	return s.GetRecord(ctx, key)
}

// FindByTransactionPrefix implements registry.Storage
func (s *Storage) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error) {
	iter := s.client.Collection(s.recordsCollection).
		Where("transactionId", ">=", prefix).
		OrderBy("transactionId", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	out := make([]*registry.Record, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query records: %w", err)
		}
		rec, err := decode(snap)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(rec.TransactionID, prefix) {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// CreateRecord implements registry.Storage
func (s *Storage) CreateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	recRef := s.recordDoc(rec.Key)
	txRef := s.transactionDoc(rec.TransactionID)
	doc := toDoc(rec)
	doc.Version = 1

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if exists, err := docExists(tx, txRef); err != nil {
			return err
		} else if exists {
			return registry.ErrDuplicateTransaction
		}
		if exists, err := docExists(tx, recRef); err != nil {
			return err
		} else if exists {
			return fmt.Errorf("%w: %q", errKeyExists, rec.Key)
		}

		if err := tx.Create(txRef, map[string]interface{}{"key": rec.Key}); err != nil {
			return err
		}
		return tx.Create(recRef, doc)
	})
	if err != nil {
		return err
	}
	rec.Version = 1
	return nil
}

// UpdateRecord implements registry.Storage
func (s *Storage) UpdateRecord(ctx context.Context, rec *registry.Record) error {
	if rec == nil || rec.Key == "" || rec.TransactionID == "" {
		return fmt.Errorf("%w: key and transaction id are required", registry.ErrInvalidRegistration)
	}

	recRef := s.recordDoc(rec.Key)
	doc := toDoc(rec)
	doc.Version = rec.Version + 1

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(recRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return registry.ErrRecordNotFound
			}
			return err
		}
		current, err := decode(snap)
		if err != nil {
			return err
		}
		if current.Version != rec.Version {
			return registry.ErrVersionConflict
		}

		if current.TransactionID != rec.TransactionID {
			newRef := s.transactionDoc(rec.TransactionID)
			if exists, err := docExists(tx, newRef); err != nil {
				return err
			} else if exists {
				return registry.ErrDuplicateTransaction
			}
			if err := tx.Delete(s.transactionDoc(current.TransactionID)); err != nil {
				return err
			}
			if err := tx.Create(newRef, map[string]interface{}{"key": rec.Key}); err != nil {
				return err
			}
		}
		return tx.Set(recRef, doc)
	})
	if err != nil {
		return err
	}
	rec.Version = doc.Version
	return nil
}

func docExists(tx *firestore.Transaction, ref *firestore.DocumentRef) (bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, err
	}
	return snap.Exists(), nil
}

func decode(snap *firestore.DocumentSnapshot) (*registry.Record, error) {
	if !snap.Exists() {
		return nil, registry.ErrRecordNotFound
	}
	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return doc.record(), nil
}

func (s *Storage) recordDoc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.recordsCollection).Doc(documentID(key))
}

func (s *Storage) transactionDoc(transactionID string) *firestore.DocumentRef {
	return s.client.Collection(s.transactionsCollection).Doc(documentID(transactionID))
}

// documentID escapes characters Firestore does not allow in document ids.
func documentID(s string) string {
	return url.PathEscape(s)
}
