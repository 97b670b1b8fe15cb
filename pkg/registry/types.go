package registry

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by registry date fields.
const DateLayout = "2006-01-02"

// Status represents the lifecycle state of a registration.
type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusTrial         Status = "trial"
	StatusInactive      Status = "inactive"
	StatusExpired       Status = "expired"
	StatusTerminated    Status = "terminated"
	StatusPendingCancel Status = "pending-cancel"
)

// Valid reports whether s is a known registry status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusTrial, StatusInactive,
		StatusExpired, StatusTerminated, StatusPendingCancel:
		return true
	}
	return false
}

// Action names the registry operation applied to a registration.
type Action string

const (
	ActionCreate     Action = "create"
	ActionRevise     Action = "revise"
	ActionRenew      Action = "renew"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
)

// Registry field names. Product metadata carrying one of these keys
// can populate the matching Registration field.
const (
	FieldKey           = "registry_key"
	FieldTransactionID = "registry_transid"
	FieldProduct       = "registry_product"
	FieldDescription   = "registry_description"
	FieldStatus        = "registry_status"
	FieldEffective     = "registry_effective"
	FieldExpires       = "registry_expires"
	FieldPaidDate      = "registry_paydate"
	FieldNextPay       = "registry_nextpay"
	FieldAmountDue     = "registry_paydue"
	FieldPaymentID     = "registry_payid"
	FieldPaymentAmount = "registry_payamount"
	FieldName          = "registry_name"
	FieldEmail         = "registry_email"
	FieldCompany       = "registry_company"
	FieldAddress       = "registry_address"
	FieldPhone         = "registry_phone"
	FieldVariations    = "registry_variations"

	// FieldPrefix marks a metadata key as a registry field.
	FieldPrefix = "registry_"
)

// DateKind distinguishes an absent date from one that is explicitly cleared.
type DateKind uint8

const (
	// DateAbsent leaves the stored value untouched.
	DateAbsent DateKind = iota
	// DateCleared removes the stored value.
	DateCleared
	// DateSet replaces the stored value.
	DateSet
)

// DateValue is a calendar date that may be absent, cleared or set.
type DateValue struct {
	Kind DateKind
	Date time.Time
}

// ClearedDate returns a DateValue that clears the stored date.
func ClearedDate() DateValue {
	return DateValue{Kind: DateCleared}
}

// DateOn returns a DateValue set to the calendar date of t in t's location.
func DateOn(t time.Time) DateValue {
	y, m, d := t.Date()
	return DateValue{Kind: DateSet, Date: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// IsSet reports whether the value carries a date.
func (d DateValue) IsSet() bool {
	return d.Kind == DateSet
}

// String returns the date formatted with DateLayout, or "" when no date is set.
func (d DateValue) String() string {
	if d.Kind != DateSet {
		return ""
	}
	return d.Date.Format(DateLayout)
}

// Pointer returns the date as a pointer, nil unless set.
func (d DateValue) Pointer() *time.Time {
	if d.Kind != DateSet {
		return nil
	}
	t := d.Date
	return &t
}

// Variation is an additional product bundled into a single registration.
type Variation struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// Registration is the payload submitted to the registry for a single record.
// Empty strings, zero amounts and absent dates leave stored values untouched on revise.
type Registration struct {
	// Key identifies an existing registration. Empty on create.
	Key string
	// RecordID is the owning record id of an existing registration.
	RecordID string
	// TransactionID is the natural key derived from the storefront order.
	TransactionID string

	Product     string
	Description string
	Status      Status

	Effective DateValue
	Expires   DateValue
	PaidDate  DateValue
	NextPay   DateValue

	AmountDue     float64
	PaymentID     string
	PaymentAmount float64

	Name    string
	Email   string
	Company string
	Address string
	Phone   string

	Variations []Variation

	// Custom holds additional registry_* metadata.
	Custom map[string]string

	// Notify asks the registry to notify the client after a successful operation.
	Notify bool
}

// SetField assigns the registry field name to value when that field has no value yet.
// It returns false when the field is already populated or cannot be assigned from text.
func (r *Registration) SetField(name, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	switch name {
	case FieldKey, FieldTransactionID, FieldVariations:
		return false
	case FieldProduct:
		return setString(&r.Product, value)
	case FieldDescription:
		return setString(&r.Description, value)
	case FieldName:
		return setString(&r.Name, value)
	case FieldEmail:
		return setString(&r.Email, value)
	case FieldCompany:
		return setString(&r.Company, value)
	case FieldAddress:
		return setString(&r.Address, value)
	case FieldPhone:
		return setString(&r.Phone, value)
	case FieldPaymentID:
		return setString(&r.PaymentID, value)
	case FieldStatus:
		s := Status(strings.ToLower(value))
		if r.Status != "" || !s.Valid() {
			return false
		}
		r.Status = s
		return true
	case FieldEffective:
		return setDate(&r.Effective, value)
	case FieldExpires:
		return setDate(&r.Expires, value)
	case FieldPaidDate:
		return setDate(&r.PaidDate, value)
	case FieldNextPay:
		return setDate(&r.NextPay, value)
	case FieldAmountDue:
		return setAmount(&r.AmountDue, value)
	case FieldPaymentAmount:
		return setAmount(&r.PaymentAmount, value)
	}

	if r.Custom == nil {
		r.Custom = make(map[string]string)
	}
	if _, ok := r.Custom[name]; ok {
		return false
	}
	r.Custom[name] = value
	return true
}

func setString(dst *string, value string) bool {
	if *dst != "" {
		return false
	}
	*dst = value
	return true
}

func setDate(dst *DateValue, value string) bool {
	if dst.Kind != DateAbsent {
		return false
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return false
	}
	*dst = DateOn(t)
	return true
}

func setAmount(dst *float64, value string) bool {
	if *dst != 0 {
		return false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false
	}
	*dst = f
	return true
}

// Record is a stored registration.
type Record struct {
	ID            string `json:"id"`
	Key           string `json:"key"`
	TransactionID string `json:"transaction_id"`

	Product     string `json:"product"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	Effective *time.Time `json:"effective,omitempty"`
	Expires   *time.Time `json:"expires,omitempty"`
	PaidDate  *time.Time `json:"paid_date,omitempty"`
	NextPay   *time.Time `json:"next_pay,omitempty"`

	AmountDue     float64 `json:"amount_due,omitempty"`
	PaymentID     string  `json:"payment_id,omitempty"`
	PaymentAmount float64 `json:"payment_amount,omitempty"`

	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`

	Variations []Variation       `json:"variations,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`

	Trashed   bool      `json:"trashed"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Effective = cloneTime(r.Effective)
	c.Expires = cloneTime(r.Expires)
	c.PaidDate = cloneTime(r.PaidDate)
	c.NextPay = cloneTime(r.NextPay)
	if r.Variations != nil {
		c.Variations = append([]Variation(nil), r.Variations...)
	}
	if r.Custom != nil {
		c.Custom = make(map[string]string, len(r.Custom))
		for k, v := range r.Custom {
			c.Custom[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Result is the outcome of a successful registry operation.
type Result struct {
	Action Action
	Record *Record
}
