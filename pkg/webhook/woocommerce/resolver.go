package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/pkg/webhook"
)

const (
	createdViaSubscription = "subscription"
	relationRenewal        = "renewal"
)

// SubscriptionPolicy controls orders that carry embedded subscriptions.
type SubscriptionPolicy string

const (
	// IgnoreOrdersWithSubscriptions leaves such orders to the subscription webhook.
	IgnoreOrdersWithSubscriptions SubscriptionPolicy = "ignore"
	// MergeOrdersWithSubscriptions registers such orders under the subscription's parent order.
	MergeOrdersWithSubscriptions SubscriptionPolicy = "merge"
)

// ParseSubscriptionPolicy validates the option. Empty means IgnoreOrdersWithSubscriptions.
func ParseSubscriptionPolicy(value string) (SubscriptionPolicy, error) {
	switch p := SubscriptionPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return IgnoreOrdersWithSubscriptions, nil
	case IgnoreOrdersWithSubscriptions, MergeOrdersWithSubscriptions:
		return p, nil
	default:
		return "", fmt.Errorf("unknown orders with subscriptions policy %q", value)
	}
}

// resolver decides and applies registry actions for a delivery.
type resolver struct {
	registry Registry
	mapper   *Mapper
	builder  *builder
	policy   SubscriptionPolicy
	metrics  webhook.Metrics
	logger   registry.Logger
}

// processOrder handles the order topics.
func (r *resolver) processOrder(ctx context.Context, d *Delivery, order *Order) (*webhook.Response, error) {
	resource := strconv.FormatInt(order.ID, 10)
	orderID := order.ID

	if d.Topic == TopicOrderDeleted {
		existing, err := lookupExisting(ctx, r.registry, TransactionID(orderID, d.Host))
		if err != nil {
			return nil, err
		}
		resp := &webhook.Response{Action: string(d.Topic), Resource: resource, Status: webhook.StatusIgnored}
		return r.deleteOrder(ctx, d, order, existing, resp), nil
	}

	if len(order.Subscriptions) > 0 {
		if r.policy != MergeOrdersWithSubscriptions {
			return webhook.NewIgnored(string(d.Topic), resource, webhook.ErrOrderHasSubscriptions), nil
		}
		orderID = order.Subscriptions[0].OrderID()
	} else if order.CreatedVia == createdViaSubscription {
		return webhook.NewIgnored(string(d.Topic), resource, webhook.ErrAmbiguousRenewal), nil
	}

	if d.Topic == TopicOrderUpdated && order.Status == "refunded" {
		return webhook.NewIgnored(string(d.Topic), resource, fmt.Errorf("refunded orders are not registered")), nil
	}

	existing, err := lookupExisting(ctx, r.registry, TransactionID(orderID, d.Host))
	if err != nil {
		return nil, err
	}

	resp := &webhook.Response{Action: string(d.Topic), Resource: resource, Status: webhook.StatusIgnored}

	items := r.mapper.Match(order)
	if len(items) == 0 {
		return webhook.NewIgnored(string(d.Topic), resource, webhook.ErrNoMatchedItems), nil
	}
	regs := r.builder.build(d, order, orderID, items, existing)

	switch d.Topic {
	case TopicOrderCreated:
		for _, reg := range regs {
			switch {
			case !existing.Has(reg.TransactionID):
				reg.Notify = true
				r.apply(ctx, d, resp, registry.ActionCreate, reg)
			case order.CreatedVia == createdViaSubscription:
				r.apply(ctx, d, resp, registry.ActionRenew, reg)
			default:
				r.apply(ctx, d, resp, registry.ActionRevise, reg)
			}
		}

	case TopicOrderUpdated:
		for _, reg := range regs {
			r.apply(ctx, d, resp, updateAction(order.Status, reg, existing), reg)
		}

	case TopicOrderRestored:
		if len(existing) == 0 {
			return webhook.NewIgnored(string(d.Topic), resource, webhook.ErrNothingToRestore), nil
		}
		for _, reg := range regs {
			r.restore(ctx, d, resp, reg, existing)
		}
	}

	if len(resp.Result) == 0 {
		resp.Message = webhook.ErrNoMatchedItems.Error()
	}
	return resp, nil
}

// updateAction resolves order.updated for one registration. A cancellation of a
// pending-cancel registration is revised and stays pending-cancel.
func updateAction(orderStatus string, reg *registry.Registration, existing ExistingKeys) registry.Action {
	stored, ok := existing.Get(reg.TransactionID)
	switch orderStatus {
	case "cancelled":
		if reg.Status == registry.StatusPendingCancel || (ok && stored.Status == registry.StatusPendingCancel) {
			reg.Status = registry.StatusPendingCancel
			if !ok {
				return registry.ActionCreate
			}
			return registry.ActionRevise
		}
		return registry.ActionDeactivate
	case "trash", "failed":
		return registry.ActionDeactivate
	}
	if !ok {
		return registry.ActionCreate
	}
	return registry.ActionRevise
}

func (r *resolver) deleteOrder(ctx context.Context, d *Delivery, order *Order, existing ExistingKeys, resp *webhook.Response) *webhook.Response {
	if len(existing) == 0 {
		return webhook.NewIgnored(resp.Action, resp.Resource, webhook.ErrNoRegistrations)
	}
	status := OrderStatus(order.Status)
	for _, e := range existing {
		r.apply(ctx, d, resp, registry.ActionDeactivate, &registry.Registration{
			Key:           e.Key,
			RecordID:      e.RecordID,
			TransactionID: e.TransactionID,
			Status:        status,
		})
	}
	return resp
}

func (r *resolver) restore(ctx context.Context, d *Delivery, resp *webhook.Response, reg *registry.Registration, existing ExistingKeys) {
	stored, ok := existing.Get(reg.TransactionID)
	if !ok {
		resp.Add(reg.TransactionID, webhook.Outcome{
			Action:  string(registry.ActionActivate),
			Status:  webhook.StatusIgnored,
			Message: webhook.ErrNothingToRestore.Error(),
		})
		return
	}
	if stored.Trashed {
		if _, err := r.registry.Restore(ctx, stored.Key); err != nil {
			r.fail(d, resp, registry.ActionActivate, reg, err)
			return
		}
	}
	r.apply(ctx, d, resp, registry.ActionActivate, reg)
}

// processSubscription handles the subscription topic.
func (r *resolver) processSubscription(ctx context.Context, d *Delivery, sub *Subscription) (*webhook.Response, error) {
	resource := strconv.FormatInt(sub.ID, 10)
	orderID := sub.OrderID()
	prefix := TransactionID(orderID, d.Host)

	lookupPrefix := prefix
	if sub.SwitchedOrderID > 0 && sub.SwitchedOrderID != orderID {
		lookupPrefix = TransactionID(sub.SwitchedOrderID, d.Host)
	}
	existing, err := lookupExisting(ctx, r.registry, lookupPrefix)
	if err != nil {
		return nil, err
	}
	if lookupPrefix != prefix {
		existing = existing.Rekey(lookupPrefix, prefix)
	}

	order := sub.asOrder()
	items := r.mapper.Match(order)
	if len(items) == 0 {
		return webhook.NewIgnored(string(d.Topic), resource, webhook.ErrNoMatchedItems), nil
	}

	resp := &webhook.Response{Action: string(d.Topic), Resource: resource, Status: webhook.StatusIgnored}
	for _, reg := range r.builder.build(d, order, orderID, items, existing) {
		reg.Notify = true
		switch {
		case !existing.Has(reg.TransactionID):
			r.apply(ctx, d, resp, registry.ActionCreate, reg)
		case reg.Status == registry.StatusActive && sub.LatestRelation() == relationRenewal:
			r.apply(ctx, d, resp, registry.ActionRenew, reg)
		default:
			r.apply(ctx, d, resp, registry.ActionRevise, reg)
		}
	}
	return resp, nil
}

// apply runs one registry action and records its outcome.
func (r *resolver) apply(ctx context.Context, d *Delivery, resp *webhook.Response, action registry.Action, reg *registry.Registration) {
	var call func(context.Context, *registry.Registration) (*registry.Result, error)
	switch action {
	case registry.ActionCreate:
		call = r.registry.Create
	case registry.ActionRenew:
		call = r.registry.Renew
	case registry.ActionActivate:
		call = r.registry.Activate
	case registry.ActionDeactivate:
		call = r.registry.Deactivate
	default:
		call = r.registry.Revise
	}

	res, err := call(ctx, reg)
	if err != nil {
		r.fail(d, resp, action, reg, err)
		return
	}

	r.metrics.RecordRegistryAction(providerName, string(res.Action), webhook.StatusSuccess)
	resp.Add(reg.TransactionID, webhook.Outcome{
		Action: string(res.Action),
		Status: webhook.StatusSuccess,
		Key:    res.Record.Key,
	})
}

// fail records a failed action. A deactivation of a registration that is gone is ignored.
func (r *resolver) fail(d *Delivery, resp *webhook.Response, action registry.Action, reg *registry.Registration, err error) {
	apiErr := registry.NewAPIError(err)

	outcome := webhook.Outcome{
		Action:  string(action),
		Status:  webhook.StatusError,
		Key:     reg.Key,
		Code:    apiErr.Code,
		Message: apiErr.Message,
	}
	if action == registry.ActionDeactivate && apiErr.Code == http.StatusNotFound {
		outcome.Status = webhook.StatusIgnored
	}

	r.metrics.RecordRegistryAction(providerName, string(action), outcome.Status)
	if outcome.Status == webhook.StatusError {
		r.metrics.RecordWebhookError(providerName, "registry_error")
		r.logger.Error("registry action failed",
			registry.Field{Key: "topic", Value: string(d.Topic)},
			registry.Field{Key: "source", Value: d.Host},
			registry.Field{Key: "resource", Value: resp.Resource},
			registry.Field{Key: "transaction_id", Value: reg.TransactionID},
			registry.Field{Key: "action", Value: string(action)},
			registry.Field{Key: "code", Value: apiErr.Code},
			registry.Field{Key: "message", Value: apiErr.Message},
		)
	}
	resp.Add(reg.TransactionID, outcome)
}
