package woocommerce

import (
	"strings"
	"time"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// sourceLayouts are the timestamp formats the storefront sends, all in UTC.
var sourceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Lifecycle holds the computed registry fields for one item.
type Lifecycle struct {
	Status    registry.Status
	Effective registry.DateValue
	Expires   registry.DateValue
	PaidDate  registry.DateValue
	// NextPay is set to a future date or cleared, never absent.
	NextPay registry.DateValue
}

// Calculator derives lifecycle fields in the registry's time zone.
type Calculator struct {
	location *time.Location
	grace    registry.Period
	now      func() time.Time
}

// NewCalculator creates a calculator. A nil location means UTC and a nil clock means time.Now.
func NewCalculator(location *time.Location, grace registry.Period, now func() time.Time) *Calculator {
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{location: location, grace: grace, now: now}
}

// ParseGracePeriod reads the grace period option. Values that do not start with
// a number, such as "None", mean no grace period.
func ParseGracePeriod(text string) (registry.Period, error) {
	t := strings.TrimLeft(strings.TrimSpace(text), "+-")
	if t == "" || t[0] < '0' || t[0] > '9' {
		return registry.Period{}, nil
	}
	return registry.ParsePeriod(text)
}

// Compute derives the lifecycle of an item from its terms.
func (c *Calculator) Compute(t Terms) Lifecycle {
	now := c.now().In(c.location)
	today := registry.DateOn(now).Date

	trial, hasTrial := c.parse(t.TrialEnd)
	next, hasNext := c.parse(t.NextPayment)
	end, hasEnd := c.parse(t.End)

	lc := Lifecycle{Status: t.Status}
	if lc.Status == registry.StatusActive && hasTrial && c.date(trial).After(today) {
		lc.Status = registry.StatusTrial
	}

	if start, ok := c.parse(t.Start); ok {
		lc.Effective = registry.DateOn(start)
	}

	lc.Expires = c.expiration(today,
		candidate{trial, hasTrial},
		candidate{next, hasNext},
		candidate{end, hasEnd},
	)

	if paid, ok := c.parse(t.Paid); ok && !(hasTrial && c.date(paid).Before(c.date(trial))) {
		lc.PaidDate = registry.DateOn(paid)
	}

	if hasNext && next.After(now) {
		lc.NextPay = registry.DateOn(next)
	} else {
		lc.NextPay = registry.ClearedDate()
	}
	return lc
}

type candidate struct {
	t  time.Time
	ok bool
}

// expiration returns the first candidate plus grace that falls after today.
func (c *Calculator) expiration(today time.Time, candidates ...candidate) registry.DateValue {
	for _, cand := range candidates {
		if !cand.ok {
			continue
		}
		d := c.grace.AddTo(c.date(cand.t))
		if d.After(today) {
			return registry.DateOn(d)
		}
	}
	return registry.DateValue{}
}

func (c *Calculator) date(t time.Time) time.Time {
	return registry.DateOn(t).Date
}

// parse reads a UTC source timestamp and converts it to the registry time zone.
func (c *Calculator) parse(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range sourceLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC().In(c.location), true
		}
	}
	return time.Time{}, false
}
