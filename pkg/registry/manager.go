package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager implements the registry API over a Storage backend.
type Manager struct {
	storage Storage
	config  Config
	locks   *keyedMutex
}

// NewManager creates a new registry manager with the given storage and configuration
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	if config.DefaultTerm.IsZero() {
		config.DefaultTerm = Period{Years: 1}
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.MaxUpdateAttempts <= 0 {
		config.MaxUpdateAttempts = 3
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = func() string { return strings.ToUpper(uuid.NewString()) }
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Notifier == nil {
		config.Notifier = NoopNotifier{}
	}

	return &Manager{
		storage: storage,
		config:  config,
		locks:   newKeyedMutex(),
	}, nil
}

// Get retrieves a registration by registry key
func (m *Manager) Get(ctx context.Context, key string) (*Record, error) {
	return m.storage.GetRecord(ctx, key)
}

// FindByTransactionPrefix returns every registration whose transaction id starts with prefix
func (m *Manager) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*Record, error) {
	return m.storage.FindByTransactionPrefix(ctx, prefix)
}

// Create registers a new record. A registration whose transaction id is already
// stored is applied to the existing record as a revise.
func (m *Manager) Create(ctx context.Context, reg *Registration) (*Result, error) {
	return m.run(ctx, ActionCreate, reg, func() (*Result, error) {
		if reg.TransactionID == "" || reg.Product == "" {
			return nil, fmt.Errorf("%w: transaction id and product are required", ErrInvalidRegistration)
		}

		existing, err := m.storage.GetRecordByTransaction(ctx, reg.TransactionID)
		if err == nil {
			return m.update(ctx, ActionRevise, existing, reg)
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}

		rec := m.newRecord(reg)
		if err := m.storage.CreateRecord(ctx, rec); err != nil {
			if !errors.Is(err, ErrDuplicateTransaction) {
				return nil, err
			}
			existing, err = m.storage.GetRecordByTransaction(ctx, reg.TransactionID)
			if err != nil {
				return nil, err
			}
			return m.update(ctx, ActionRevise, existing, reg)
		}
		return &Result{Action: ActionCreate, Record: rec}, nil
	})
}

// Revise applies reg to an existing registration
func (m *Manager) Revise(ctx context.Context, reg *Registration) (*Result, error) {
	return m.modify(ctx, ActionRevise, reg)
}

// Renew revises an existing registration and extends its expiration by the
// default term when reg carries none
func (m *Manager) Renew(ctx context.Context, reg *Registration) (*Result, error) {
	return m.modify(ctx, ActionRenew, reg)
}

// Activate revises an existing registration after it was restored
func (m *Manager) Activate(ctx context.Context, reg *Registration) (*Result, error) {
	return m.modify(ctx, ActionActivate, reg)
}

// Deactivate moves an existing registration to inactive, or terminated when reg asks for it
func (m *Manager) Deactivate(ctx context.Context, reg *Registration) (*Result, error) {
	return m.modify(ctx, ActionDeactivate, reg)
}

// Restore clears the trashed flag on a registration
func (m *Manager) Restore(ctx context.Context, key string) (*Record, error) {
	return m.setTrashed(ctx, key, false)
}

// Trash marks a registration as trashed. Trashed registrations refuse every
// operation except Restore.
func (m *Manager) Trash(ctx context.Context, key string) (*Record, error) {
	return m.setTrashed(ctx, key, true)
}

func (m *Manager) setTrashed(ctx context.Context, key string, trashed bool) (*Record, error) {
	unlock := m.locks.lock(key)
	defer unlock()

	for attempt := 0; ; attempt++ {
		rec, err := m.storage.GetRecord(ctx, key)
		if err != nil {
			return nil, NewAPIError(err)
		}
		if rec.Trashed == trashed {
			return rec, nil
		}
		rec.Trashed = trashed
		rec.UpdatedAt = m.config.Now().UTC()
		err = m.storage.UpdateRecord(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt+1 >= m.config.MaxUpdateAttempts {
			return nil, NewAPIError(err)
		}
	}
}

func (m *Manager) modify(ctx context.Context, action Action, reg *Registration) (*Result, error) {
	return m.run(ctx, action, reg, func() (*Result, error) {
		rec, err := m.locate(ctx, reg)
		if err != nil {
			return nil, err
		}
		return m.update(ctx, action, rec, reg)
	})
}

// run serializes operations per transaction id and converts failures to APIError.
func (m *Manager) run(ctx context.Context, action Action, reg *Registration, fn func() (*Result, error)) (*Result, error) {
	start := m.config.Now()
	if reg == nil {
		return nil, NewAPIError(fmt.Errorf("%w: nil registration", ErrInvalidRegistration))
	}

	lockKey := reg.TransactionID
	if lockKey == "" {
		lockKey = reg.Key
	}
	unlock := m.locks.lock(lockKey)
	res, err := fn()
	unlock()

	if err != nil {
		apiErr := NewAPIError(err)
		m.config.Metrics.RecordOperation(action, "error", m.config.Now().Sub(start))
		m.config.Logger.Warn("registry operation failed",
			Field{"action", string(action)},
			Field{"transaction_id", reg.TransactionID},
			Field{"key", reg.Key},
			Field{"code", apiErr.Code},
			Field{"error", apiErr.Message},
		)
		return nil, apiErr
	}

	m.config.Metrics.RecordOperation(res.Action, "success", m.config.Now().Sub(start))
	m.config.Logger.Debug("registry operation applied",
		RecordFields(res.Record, Field{"action", string(res.Action)})...)

	if reg.Notify {
		if err := m.config.Notifier.NotifyClient(ctx, res.Record.Clone(), res.Action); err != nil {
			m.config.Logger.Warn("client notification failed",
				RecordFields(res.Record, Field{"error", err.Error()})...)
		}
	}
	return res, nil
}

func (m *Manager) locate(ctx context.Context, reg *Registration) (*Record, error) {
	if reg.Key != "" {
		return m.storage.GetRecord(ctx, reg.Key)
	}
	if reg.TransactionID != "" {
		return m.storage.GetRecordByTransaction(ctx, reg.TransactionID)
	}
	return nil, fmt.Errorf("%w: key or transaction id is required", ErrInvalidRegistration)
}

// update applies reg to rec, re-reading rec after version conflicts.
func (m *Manager) update(ctx context.Context, action Action, rec *Record, reg *Registration) (*Result, error) {
	for attempt := 0; ; attempt++ {
		if rec.Trashed {
			return nil, ErrRecordTrashed
		}

		next := rec.Clone()
		m.apply(action, next, reg)
		next.UpdatedAt = m.config.Now().UTC()

		err := m.storage.UpdateRecord(ctx, next)
		if err == nil {
			return &Result{Action: action, Record: next}, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt+1 >= m.config.MaxUpdateAttempts {
			return nil, err
		}

		rec, err = m.storage.GetRecord(ctx, rec.Key)
		if err != nil {
			return nil, err
		}
	}
}

func (m *Manager) today() time.Time {
	y, mo, d := m.config.Now().In(m.config.Location).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.config.Location)
}

func (m *Manager) newRecord(reg *Registration) *Record {
	now := m.config.Now().UTC()
	rec := &Record{
		ID:            uuid.NewString(),
		Key:           m.config.KeyGenerator(),
		TransactionID: reg.TransactionID,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.apply(ActionCreate, rec, reg)
	if rec.Expires == nil {
		expires := m.config.DefaultTerm.AddTo(m.today())
		rec.Expires = &expires
	}
	return rec
}

// apply merges reg into rec. Custom metadata already stored on rec is kept.
func (m *Manager) apply(action Action, rec *Record, reg *Registration) {
	if reg.TransactionID != "" {
		rec.TransactionID = reg.TransactionID
	}
	mergeString(&rec.Product, reg.Product)
	mergeString(&rec.Description, reg.Description)
	mergeString(&rec.Name, reg.Name)
	mergeString(&rec.Email, reg.Email)
	mergeString(&rec.Company, reg.Company)
	mergeString(&rec.Address, reg.Address)
	mergeString(&rec.Phone, reg.Phone)
	mergeString(&rec.PaymentID, reg.PaymentID)

	if reg.Status != "" {
		rec.Status = reg.Status
	}

	mergeDate(&rec.Effective, reg.Effective)
	mergeDate(&rec.Expires, reg.Expires)
	mergeDate(&rec.PaidDate, reg.PaidDate)
	mergeDate(&rec.NextPay, reg.NextPay)

	if reg.AmountDue != 0 {
		rec.AmountDue = reg.AmountDue
	}
	if reg.PaymentAmount != 0 {
		rec.PaymentAmount = reg.PaymentAmount
	}
	if reg.Variations != nil {
		rec.Variations = append([]Variation(nil), reg.Variations...)
	}

	for k, v := range reg.Custom {
		if rec.Custom == nil {
			rec.Custom = make(map[string]string, len(reg.Custom))
		}
		if _, ok := rec.Custom[k]; !ok {
			rec.Custom[k] = v
		}
	}

	switch action {
	case ActionRenew:
		if reg.Expires.Kind == DateAbsent {
			base := m.today()
			if rec.Expires != nil && rec.Expires.After(base) {
				base = *rec.Expires
			}
			expires := m.config.DefaultTerm.AddTo(base)
			rec.Expires = &expires
		}
	case ActionDeactivate:
		if reg.Status == StatusTerminated {
			rec.Status = StatusTerminated
		} else {
			rec.Status = StatusInactive
		}
	}
}

func mergeString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func mergeDate(dst **time.Time, value DateValue) {
	switch value.Kind {
	case DateSet:
		*dst = value.Pointer()
	case DateCleared:
		*dst = nil
	}
}

// keyedMutex serializes work per key within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
