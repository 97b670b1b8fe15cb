package woocommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mihaimyh/goregistry/pkg/webhook"
)

// Billing is the billing contact of an order or subscription.
type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// LineItem is an order line.
type LineItem struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	ProductID  int64    `json:"product_id"`
	SKU        string   `json:"sku" validate:"max=255"`
	Subtotal   Amount   `json:"subtotal"`
	MetaData   MetaList `json:"meta_data"`
	Attributes MetaList `json:"attributes"`
}

// ProductMeta is product metadata supplied by the storefront companion plugin.
type ProductMeta struct {
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Attributes MetaList `json:"attributes"`
	MetaData   MetaList `json:"meta_data"`
}

// Order is the order webhook payload.
type Order struct {
	ID               int64         `json:"id" validate:"required,gt=0"`
	ParentID         int64         `json:"parent_id"`
	Status           string        `json:"status"`
	CreatedVia       string        `json:"created_via"`
	TransactionID    string        `json:"transaction_id"`
	DateCompletedGMT string        `json:"date_completed_gmt"`
	DatePaidGMT      string        `json:"date_paid_gmt"`
	Billing          Billing       `json:"billing"`
	LineItems        []LineItem    `json:"line_items" validate:"dive"`
	ProductMeta      []ProductMeta `json:"product_meta"`
	Subscriptions    Subscriptions `json:"subscriptions" validate:"dive"`
}

// Subscription is the subscription webhook payload, also embedded in orders.
type Subscription struct {
	ID                  int64         `json:"id" validate:"required,gt=0"`
	ParentID            int64         `json:"parent_id" validate:"gte=0"`
	Status              string        `json:"status"`
	CreatedVia          string        `json:"created_via"`
	TransactionID       string        `json:"transaction_id"`
	ScheduleStart       string        `json:"schedule_start"`
	ScheduleEnd         string        `json:"schedule_end"`
	ScheduleTrialEnd    string        `json:"schedule_trial_end"`
	ScheduleNextPayment string        `json:"schedule_next_payment"`
	DatePaid            string        `json:"date_paid"`
	Billing             Billing       `json:"billing"`
	LineItems           []LineItem    `json:"line_items" validate:"dive"`
	ProductMeta         []ProductMeta `json:"product_meta"`
	RelatedOrders       RelatedOrders `json:"related_orders"`
	// SwitchedOrderID is the order a switched subscription was migrated from.
	SwitchedOrderID int64 `json:"switched_order_id" validate:"gte=0"`
}

// OrderID returns the parent order id, or the subscription id when it has no parent.
func (s *Subscription) OrderID() int64 {
	if s.ParentID > 0 {
		return s.ParentID
	}
	return s.ID
}

// LatestRelation returns the relation of the most recent related order.
func (s *Subscription) LatestRelation() string {
	if len(s.RelatedOrders) == 0 {
		return ""
	}
	return s.RelatedOrders[0].Relation
}

// asOrder presents the subscription in order form for mapping and building.
func (s *Subscription) asOrder() *Order {
	return &Order{
		ID:            s.OrderID(),
		Status:        s.Status,
		CreatedVia:    s.CreatedVia,
		TransactionID: s.TransactionID,
		Billing:       s.Billing,
		LineItems:     s.LineItems,
		ProductMeta:   s.ProductMeta,
		Subscriptions: Subscriptions{*s},
	}
}

// Subscriptions keeps embedded subscriptions in delivery order. The storefront
// sends them as an object keyed by id, or as an array.
type Subscriptions []Subscription

func (s *Subscriptions) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = nil
		return nil
	case data[0] == '[':
		var list []Subscription
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}

	var out Subscriptions
	err := decodeObject(data, func(_ string, raw json.RawMessage) error {
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		out = append(out, sub)
		return nil
	})
	*s = out
	return err
}

// RelatedOrder is one entry of a subscription's related orders, newest first.
type RelatedOrder struct {
	OrderID  string
	Relation string
}

// RelatedOrders decodes {"order_id": "relation", ...} or ["relation", ...].
type RelatedOrders []RelatedOrder

func (r *RelatedOrders) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = nil
		return nil
	case data[0] == '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		out := make(RelatedOrders, 0, len(list))
		for _, rel := range list {
			out = append(out, RelatedOrder{Relation: rel})
		}
		*r = out
		return nil
	}

	var out RelatedOrders
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		out = append(out, RelatedOrder{OrderID: key, Relation: rawString(raw)})
		return nil
	})
	*r = out
	return err
}

// MetaEntry is a key/value pair from meta_data or attributes.
type MetaEntry struct {
	Key   string
	Value string
}

// MetaList keeps metadata in delivery order. It decodes [{"key":..,"value":..}]
// (also name/option pairs) or a plain object.
type MetaList []MetaEntry

// Get returns the first value stored under key.
func (m MetaList) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value under key, or appends it.
func (m *MetaList) Set(key, value string) {
	for i, e := range *m {
		if e.Key == key {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, MetaEntry{Key: key, Value: value})
}

func (m *MetaList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*m = nil
		return nil
	case data[0] == '[':
		var list []struct {
			Key    *string         `json:"key"`
			Name   *string         `json:"name"`
			Value  json.RawMessage `json:"value"`
			Option json.RawMessage `json:"option"`
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		out := make(MetaList, 0, len(list))
		for _, e := range list {
			entry := MetaEntry{Value: rawString(e.Value)}
			switch {
			case e.Key != nil:
				entry.Key = *e.Key
			case e.Name != nil:
				entry.Key = *e.Name
			default:
				continue
			}
			if e.Value == nil {
				entry.Value = rawString(e.Option)
			}
			out = append(out, entry)
		}
		*m = out
		return nil
	}

	var out MetaList
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		out = append(out, MetaEntry{Key: key, Value: rawString(raw)})
		return nil
	})
	*m = out
	return err
}

// Amount decodes money sent either as a string ("10.00") or a number.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := rawString(data)
	if s == "" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*a = Amount(f)
	return nil
}

// rawString renders a JSON value as text: strings unquoted, null empty,
// everything else in compact JSON.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// decodeObject walks a JSON object in key order.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

var validate = validator.New()

// parseOrder decodes and validates an order payload.
func parseOrder(body []byte) (*Order, error) {
	var order Order
	if err := decodePayload(body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// parseSubscription decodes and validates a subscription payload.
func parseSubscription(body []byte) (*Subscription, error) {
	var sub Subscription
	if err := decodePayload(body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func decodePayload(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", webhook.ErrMalformedPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", webhook.ErrMalformedPayload, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
