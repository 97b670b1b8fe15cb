package woocommerce

import (
	"regexp"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Rule maps SKUs matching Pattern to one or more registry products.
type Rule struct {
	Pattern string
	Targets []string
	re      *regexp.Regexp
}

// NewRule compiles pattern as a case-insensitive full-string match.
func NewRule(pattern string, targets []string) (Rule, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")$")
	if err != nil {
		return Rule{}, err
	}
	return Rule{Pattern: pattern, Targets: targets, re: re}, nil
}

// Matches reports whether sku satisfies the rule.
func (r Rule) Matches(sku string) bool {
	return r.re != nil && r.re.MatchString(sku)
}

// ParseRules reads one "pattern=target[,target...]" rule per line.
// A line without "=" maps the SKU to itself. Lines that do not compile are skipped.
func ParseRules(text string, logger registry.Logger) []Rule {
	if logger == nil {
		logger = &registry.NoopLogger{}
	}
	var rules []Rule
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pattern, targetText, found := strings.Cut(line, "=")
		pattern = strings.TrimSpace(pattern)
		if !found {
			targetText = pattern
		}
		targets := splitTargets(targetText)
		if pattern == "" || len(targets) == 0 {
			logger.Warn("skipping empty item mapping rule", registry.Field{Key: "line", Value: n + 1})
			continue
		}
		rule, err := NewRule(pattern, targets)
		if err != nil {
			logger.Warn("skipping invalid item mapping rule",
				registry.Field{Key: "line", Value: n + 1},
				registry.Field{Key: "pattern", Value: pattern},
				registry.Field{Key: "error", Value: err},
			)
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

func splitTargets(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '|' || r == ';' || r == '\n'
	})
	targets := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			targets = append(targets, p)
		}
	}
	return targets
}

// Terms are the raw dates and status an item inherits from its order or subscription.
type Terms struct {
	Status      registry.Status
	Start       string
	End         string
	TrialEnd    string
	Paid        string
	NextPayment string
}

// Item is a line item resolved to a single registry product.
type Item struct {
	Target   string
	LineItem LineItem
	// Subscription is the subscription the item belongs to, nil for plain orders.
	Subscription *Subscription
	Terms        Terms
	// Meta is the line item metadata followed by the metadata of its product.
	Meta MetaList
}

// product is a candidate product with its merged metadata.
type product struct {
	sku  string
	meta MetaList
}

type association struct {
	sub  *Subscription
	meta MetaList
}

// Mapper resolves line items to registry products.
type Mapper struct {
	rules []Rule
}

// NewMapper creates a mapper over the configured rules.
func NewMapper(rules []Rule) *Mapper {
	return &Mapper{rules: rules}
}

// Match maps every line item of order and returns one Item per distinct target,
// in line item order. Items for a target seen earlier replace it in place.
func (m *Mapper) Match(order *Order) []Item {
	associations := make(map[string]association)
	var overrides []Rule
	overrideIndex := make(map[string]int)

	addSource := func(products []product, sub *Subscription) {
		for _, p := range products {
			if p.sku == "" {
				continue
			}
			associations[strings.ToLower(p.sku)] = association{sub: sub, meta: p.meta}

			value, ok := p.meta.Get(registry.FieldProduct)
			if !ok {
				continue
			}
			targets := splitTargets(value)
			if len(targets) == 0 {
				continue
			}
			rule, err := NewRule(regexp.QuoteMeta(p.sku), targets)
			if err != nil {
				continue
			}
			key := strings.ToLower(p.sku)
			if i, seen := overrideIndex[key]; seen {
				overrides[i] = rule
				continue
			}
			overrideIndex[key] = len(overrides)
			overrides = append(overrides, rule)
		}
	}

	addSource(orderProducts(order.ProductMeta, order.LineItems), nil)
	for i := range order.Subscriptions {
		sub := &order.Subscriptions[i]
		addSource(orderProducts(sub.ProductMeta, sub.LineItems), sub)
	}

	rules := make([]Rule, 0, len(overrides)+len(m.rules))
	rules = append(rules, overrides...)
	rules = append(rules, m.rules...)

	var items []Item
	position := make(map[string]int)
	for _, li := range order.LineItems {
		sku := strings.TrimSpace(li.SKU)
		if sku == "" {
			continue
		}
		rule, ok := firstMatch(rules, sku)
		if !ok {
			continue
		}

		assoc := associations[strings.ToLower(sku)]
		for _, target := range rule.Targets {
			item := Item{
				Target:       target,
				LineItem:     li,
				Subscription: assoc.sub,
				Meta:         carryMeta(li.MetaData, assoc.meta),
			}
			if assoc.sub != nil {
				item.Terms = subscriptionTerms(assoc.sub)
			} else {
				item.Terms = orderTerms(order)
			}

			key := strings.ToLower(target)
			if i, seen := position[key]; seen {
				items[i] = item
				continue
			}
			position[key] = len(items)
			items = append(items, item)
		}
	}
	return items
}

func firstMatch(rules []Rule, sku string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(sku) {
			return r, true
		}
	}
	return Rule{}, false
}

func orderTerms(order *Order) Terms {
	return Terms{
		Status: OrderStatus(order.Status),
		Start:  order.DateCompletedGMT,
		Paid:   order.DatePaidGMT,
	}
}

func subscriptionTerms(sub *Subscription) Terms {
	return Terms{
		Status:      SubscriptionStatus(sub.Status),
		Start:       sub.ScheduleStart,
		End:         sub.ScheduleEnd,
		TrialEnd:    sub.ScheduleTrialEnd,
		Paid:        sub.DatePaid,
		NextPayment: sub.ScheduleNextPayment,
	}
}

// orderProducts returns supplied product metadata, or products derived from line items.
func orderProducts(meta []ProductMeta, lineItems []LineItem) []product {
	if len(meta) > 0 {
		products := make([]product, 0, len(meta))
		for _, pm := range meta {
			merged := append(MetaList(nil), pm.MetaData...)
			for _, a := range pm.Attributes {
				merged.Set(a.Key, a.Value)
			}
			products = append(products, product{sku: pm.SKU, meta: merged})
		}
		return products
	}

	products := make([]product, 0, len(lineItems))
	for _, li := range lineItems {
		var merged MetaList
		for _, e := range li.MetaData {
			if strings.HasPrefix(e.Key, "_") {
				continue
			}
			merged.Set(strings.TrimPrefix(e.Key, "pa_"), e.Value)
		}
		for _, a := range li.Attributes {
			merged.Set(strings.TrimPrefix(a.Key, "pa_"), a.Value)
		}
		products = append(products, product{sku: li.SKU, meta: merged})
	}
	return products
}

var metaValueReplacer = strings.NewReplacer("-", " ", "_", " ", ".", " ")

// carryMeta appends product metadata to line item metadata. Display values are
// normalized; registry fields pass through unchanged.
func carryMeta(lineMeta, productMeta MetaList) MetaList {
	out := append(MetaList(nil), lineMeta...)
	for _, e := range productMeta {
		value := e.Value
		if !strings.HasPrefix(e.Key, registry.FieldPrefix) {
			value = metaValueReplacer.Replace(value)
		}
		out = append(out, MetaEntry{Key: e.Key, Value: value})
	}
	return out
}
