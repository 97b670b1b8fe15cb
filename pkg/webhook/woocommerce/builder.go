package woocommerce

import (
	"fmt"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// RegistrationType selects how line items become registrations.
type RegistrationType string

const (
	// RegisterByItem creates one registration per mapped line item.
	RegisterByItem RegistrationType = "item"
	// RegisterByOrder creates one registration per order with the remaining items as variations.
	RegisterByOrder RegistrationType = "order"
)

// ParseRegistrationType validates a registration type option. Empty means RegisterByItem.
func ParseRegistrationType(value string) (RegistrationType, error) {
	switch t := RegistrationType(strings.ToLower(strings.TrimSpace(value))); t {
	case "":
		return RegisterByItem, nil
	case RegisterByItem, RegisterByOrder:
		return t, nil
	default:
		return "", fmt.Errorf("unknown registration type %q", value)
	}
}

// builder turns mapped items into registrations.
type builder struct {
	calc *Calculator
	mode RegistrationType
}

// build chooses the mode from the stored registrations: an existing order-level
// registration keeps the order mode, any other existing registration keeps the item mode.
func (b *builder) build(d *Delivery, order *Order, orderID int64, items []Item, existing ExistingKeys) []*registry.Registration {
	orderTransID := TransactionID(orderID, d.Host)
	if existing.Has(orderTransID) || (len(existing) == 0 && b.mode == RegisterByOrder) {
		return []*registry.Registration{b.byOrder(orderTransID, order, items, existing)}
	}
	return b.byItem(d, order, orderID, items, existing)
}

func (b *builder) byOrder(transID string, order *Order, items []Item, existing ExistingKeys) *registry.Registration {
	reg := b.registration(transID, order, items[0], existing)

	var total float64
	counted := make(map[int64]bool)
	for i, item := range items {
		if i > 0 {
			reg.Variations = append(reg.Variations, registry.Variation{SKU: item.Target, Name: item.LineItem.Name})
		}
		if id := item.LineItem.ID; id != 0 {
			if counted[id] {
				continue
			}
			counted[id] = true
		}
		if item.LineItem.Subtotal > 0 {
			total += float64(item.LineItem.Subtotal)
		}
	}
	reg.AmountDue = total
	setPayment(reg)

	for _, item := range items {
		applyMeta(reg, item.Meta)
	}
	return reg
}

func (b *builder) byItem(d *Delivery, order *Order, orderID int64, items []Item, existing ExistingKeys) []*registry.Registration {
	regs := make([]*registry.Registration, 0, len(items))
	for _, item := range items {
		reg := b.registration(TransactionID(orderID, d.Host, item.Target), order, item, existing)
		if item.LineItem.Subtotal > 0 {
			reg.AmountDue = float64(item.LineItem.Subtotal)
		}
		setPayment(reg)
		applyMeta(reg, item.Meta)
		regs = append(regs, reg)
	}
	return regs
}

// setPayment records the payment only for a paid, non-zero amount due.
func setPayment(reg *registry.Registration) {
	if reg.PaidDate.IsSet() && reg.AmountDue > 0 {
		reg.PaymentAmount = reg.AmountDue
		return
	}
	reg.PaymentID = ""
}

// registration computes the fields one item contributes.
func (b *builder) registration(transID string, order *Order, item Item, existing ExistingKeys) *registry.Registration {
	lc := b.calc.Compute(item.Terms)
	reg := &registry.Registration{
		TransactionID: transID,
		Product:       item.Target,
		Description:   item.LineItem.Name,
		Status:        lc.Status,
		Effective:     lc.Effective,
		Expires:       lc.Expires,
		PaidDate:      lc.PaidDate,
		NextPay:       lc.NextPay,
		PaymentID:     order.TransactionID,
	}
	if item.Subscription != nil && item.Subscription.TransactionID != "" {
		reg.PaymentID = item.Subscription.TransactionID
	}
	if e, ok := existing.Get(transID); ok {
		reg.Key = e.Key
		reg.RecordID = e.RecordID
	}
	setContact(reg, order.Billing)
	return reg
}

func setContact(reg *registry.Registration, b Billing) {
	reg.Name = strings.TrimSpace(b.FirstName + " " + b.LastName)
	reg.Email = strings.TrimSpace(b.Email)
	reg.Company = strings.TrimSpace(b.Company)
	reg.Phone = strings.TrimSpace(b.Phone)

	var lines []string
	street := strings.TrimSpace(b.Address1)
	if a2 := strings.TrimSpace(b.Address2); a2 != "" {
		street = strings.TrimSpace(street + "\n" + a2)
	}
	if street != "" {
		lines = append(lines, street)
	}
	locality := strings.Join(strings.Fields(b.City+" "+b.State+" "+b.Postcode), " ")
	if locality != "" {
		lines = append(lines, locality)
	}
	reg.Address = strings.Join(lines, "\n")
}

// applyMeta copies registry_* metadata onto fields the builder left empty.
func applyMeta(reg *registry.Registration, meta MetaList) {
	for _, e := range meta {
		if strings.HasPrefix(e.Key, registry.FieldPrefix) {
			reg.SetField(e.Key, e.Value)
		}
	}
}
