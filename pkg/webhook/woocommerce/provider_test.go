package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/pkg/webhook"
	"github.com/mihaimyh/goregistry/storage/memory"
)

const testSource = "https://shop.example.com/"

// countingRegistry counts registry calls made by the provider.
type countingRegistry struct {
	*registry.Manager
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func (c *countingRegistry) record(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
	return c.fail[name]
}

func (c *countingRegistry) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingRegistry) mutations() int {
	return c.count("create") + c.count("revise") + c.count("renew") + c.count("activate") + c.count("deactivate")
}

func (c *countingRegistry) FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error) {
	if err := c.record("find"); err != nil {
		return nil, err
	}
	return c.Manager.FindByTransactionPrefix(ctx, prefix)
}

func (c *countingRegistry) Create(ctx context.Context, reg *registry.Registration) (*registry.Result, error) {
	if err := c.record("create"); err != nil {
		return nil, err
	}
	return c.Manager.Create(ctx, reg)
}

func (c *countingRegistry) Revise(ctx context.Context, reg *registry.Registration) (*registry.Result, error) {
	if err := c.record("revise"); err != nil {
		return nil, err
	}
	return c.Manager.Revise(ctx, reg)
}

func (c *countingRegistry) Renew(ctx context.Context, reg *registry.Registration) (*registry.Result, error) {
	if err := c.record("renew"); err != nil {
		return nil, err
	}
	return c.Manager.Renew(ctx, reg)
}

func (c *countingRegistry) Activate(ctx context.Context, reg *registry.Registration) (*registry.Result, error) {
	if err := c.record("activate"); err != nil {
		return nil, err
	}
	return c.Manager.Activate(ctx, reg)
}

func (c *countingRegistry) Deactivate(ctx context.Context, reg *registry.Registration) (*registry.Result, error) {
	if err := c.record("deactivate"); err != nil {
		return nil, err
	}
	return c.Manager.Deactivate(ctx, reg)
}

func (c *countingRegistry) Restore(ctx context.Context, key string) (*registry.Record, error) {
	if err := c.record("restore"); err != nil {
		return nil, err
	}
	return c.Manager.Restore(ctx, key)
}

type harness struct {
	handler  http.Handler
	registry *countingRegistry
	manager  *registry.Manager
	events   []webhook.Event
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	keys := 0
	manager, err := registry.NewManager(memory.New(), registry.Config{
		Now: clock,
		KeyGenerator: func() string {
			keys++
			return fmt.Sprintf("KEY-%d", keys)
		},
	})
	require.NoError(t, err)

	h := &harness{
		manager:  manager,
		registry: &countingRegistry{Manager: manager, calls: map[string]int{}, fail: map[string]error{}},
	}
	cfg := Config{
		Config: webhook.Config{
			WebhookSecret:     testSecret,
			RateLimitRequests: -1,
			OnEvent: func(_ context.Context, e webhook.Event) {
				h.events = append(h.events, e)
			},
		},
		Registry:    h.registry,
		Endpoints:   []Endpoint{EndpointCreate, EndpointRevise, EndpointDeactivate, EndpointActivate, EndpointSubscription},
		ItemMapping: "PRO-.*=pro\nBUNDLE=pkgA,pkgB\nADDON=addon",
		Now:         clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	h.handler = p.WebhookHandler()
	return h
}

func (h *harness) post(t *testing.T, path string, topic Topic, body string) (*httptest.ResponseRecorder, webhook.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(HeaderSignature, Sign([]byte(testSecret), []byte(body)))
	req.Header.Set(HeaderTopic, string(topic))
	req.Header.Set(HeaderSource, testSource)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var resp webhook.Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (h *harness) stored(t *testing.T, prefix string) []*registry.Record {
	t.Helper()
	recs, err := h.manager.FindByTransactionPrefix(context.Background(), prefix)
	require.NoError(t, err)
	return recs
}

func orderJSON(id int64, status string, skus ...string) string {
	items := make([]string, 0, len(skus))
	for i, sku := range skus {
		items = append(items, fmt.Sprintf(`{"id": %d, "name": "Item %s", "sku": %q, "subtotal": "10.00"}`, i+1, sku, sku))
	}
	return fmt.Sprintf(`{
		"id": %d, "status": %q, "transaction_id": "pay_%d",
		"date_completed_gmt": "2024-03-01T10:00:00", "date_paid_gmt": "2024-03-01T10:00:00",
		"billing": {"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
		"line_items": [%s]
	}`, id, status, id, strings.Join(items, ","))
}

func TestProvider_Name(t *testing.T) {
	p, err := NewProvider(Config{Registry: &countingRegistry{}})
	require.NoError(t, err)
	assert.Equal(t, "woocommerce", p.Name())
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.ErrorIs(t, err, webhook.ErrProviderNotConfigured)

	reg := &countingRegistry{}
	_, err = NewProvider(Config{Registry: reg, RegistrationType: "bundle"})
	assert.Error(t, err)
	_, err = NewProvider(Config{Registry: reg, OrdersWithSubscriptions: "drop"})
	assert.Error(t, err)
	_, err = NewProvider(Config{Registry: reg, GracePeriod: "3 eons"})
	assert.Error(t, err)
	_, err = NewProvider(Config{Registry: reg, Endpoints: []Endpoint{"refund"}})
	assert.Error(t, err)
}

func TestProvider_Ping(t *testing.T) {
	h := newHarness(t, nil)
	req := httptest.NewRequest(http.MethodPost, OrderPath, strings.NewReader("webhook_id=12"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, h.registry.count("find"))
}

func TestProvider_Unauthorized(t *testing.T) {
	h := newHarness(t, nil)
	body := orderJSON(1, "completed", "PRO-1")

	req := httptest.NewRequest(http.MethodPost, OrderPath, strings.NewReader(body))
	req.Header.Set(HeaderSignature, Sign([]byte(testSecret), []byte(body+" ")))
	req.Header.Set(HeaderTopic, string(TopicOrderCreated))
	req.Header.Set(HeaderSource, testSource)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, OrderPath, strings.NewReader(body))
	req.Header.Set(HeaderTopic, string(TopicOrderCreated))
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned non-ping")

	assert.Zero(t, h.registry.count("find"))
	assert.Zero(t, h.registry.mutations())
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProvider_DisabledTopic(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Endpoints = []Endpoint{EndpointCreate} })

	rec, _ := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(1, "completed", "PRO-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, h.registry.mutations())
}

func TestProvider_NotConfigured(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.WebhookSecret = "" })
	rec, _ := h.post(t, OrderPath, TopicOrderCreated, orderJSON(1, "completed", "PRO-1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProvider_BodyLimits(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxBodyBytes = 16 })
	rec, _ := h.post(t, OrderPath, TopicOrderCreated, orderJSON(1, "completed", "PRO-1"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	h = newHarness(t, nil)
	rec, _ = h.post(t, OrderPath, TopicOrderCreated, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "signed empty body")

	req := httptest.NewRequest(http.MethodPost, OrderPath, http.NoBody)
	req.Header.Set(HeaderTopic, string(TopicOrderCreated))
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned empty body")
	assert.Zero(t, h.registry.count("find"))
}

func TestProvider_MethodNotAllowed(t *testing.T) {
	h := newHarness(t, nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, OrderPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProvider_MalformedPayload(t *testing.T) {
	h := newHarness(t, nil)
	rec, resp := h.post(t, OrderPath, TopicOrderCreated, `{"status": "completed"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, webhook.StatusError, resp.Status)
	assert.Contains(t, resp.Message, "malformed webhook payload")
	assert.Zero(t, h.registry.mutations())
}

func TestProvider_OrderCreated(t *testing.T) {
	h := newHarness(t, nil)
	rec, resp := h.post(t, OrderPath, TopicOrderCreated, orderJSON(100, "completed", "PRO-1", "BUNDLE", "UNKNOWN"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	assert.Equal(t, "order.created", resp.Action)
	assert.Equal(t, "100", resp.Resource)
	assert.Equal(t, webhook.StatusSuccess, resp.Status)
	require.Len(t, resp.Result, 3)
	for _, id := range []string{"100|shop.example.com|pro", "100|shop.example.com|pkga", "100|shop.example.com|pkgb"} {
		o, ok := resp.Result[id]
		require.True(t, ok, id)
		assert.Equal(t, "create", o.Action)
		assert.Equal(t, webhook.StatusSuccess, o.Status)
		assert.NotEmpty(t, o.Key)
	}
	assert.Equal(t, 3, h.registry.count("create"))

	recs := h.stored(t, "100|shop.example.com")
	require.Len(t, recs, 3)
	assert.Equal(t, registry.StatusActive, recs[0].Status)
	assert.Equal(t, "Ada Lovelace", recs[0].Name)

	require.Len(t, h.events, 1)
	assert.Equal(t, "shop.example.com", h.events[0].Source)
	assert.Equal(t, "order.created", h.events[0].Topic)
}

func TestProvider_RedeliveryRevisesSameRecord(t *testing.T) {
	h := newHarness(t, nil)
	body := orderJSON(101, "completed", "PRO-1")

	_, first := h.post(t, OrderPath, TopicOrderCreated, body)
	_, second := h.post(t, OrderPath, TopicOrderCreated, body)

	id := "101|shop.example.com|pro"
	require.Contains(t, first.Result, id)
	require.Contains(t, second.Result, id)
	assert.Equal(t, "create", first.Result[id].Action)
	assert.Equal(t, "revise", second.Result[id].Action)
	assert.Equal(t, first.Result[id].Key, second.Result[id].Key)
	assert.Len(t, h.stored(t, "101|"), 1)
}

func TestProvider_OrderModeVariations(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.RegistrationType = RegisterByOrder })
	_, resp := h.post(t, OrderPath, TopicOrderCreated, orderJSON(102, "completed", "PRO-1", "ADDON"))

	require.Len(t, resp.Result, 1)
	require.Contains(t, resp.Result, "102|shop.example.com")

	recs := h.stored(t, "102|shop.example.com")
	require.Len(t, recs, 1)
	assert.Equal(t, "pro", recs[0].Product)
	assert.Equal(t, []registry.Variation{{SKU: "addon", Name: "Item ADDON"}}, recs[0].Variations)
	assert.Equal(t, 20.0, recs[0].AmountDue)
}

func TestProvider_NoMatchedItems(t *testing.T) {
	h := newHarness(t, nil)
	rec, resp := h.post(t, OrderPath, TopicOrderCreated, orderJSON(103, "completed", "NOPE"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, webhook.ErrNoMatchedItems.Error(), resp.Message)
	assert.Zero(t, h.registry.mutations())
}

func TestProvider_RefundedIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, OrderPath, TopicOrderCreated, orderJSON(104, "completed", "PRO-1"))
	before := h.registry.mutations()

	rec, resp := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(104, "refunded", "PRO-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, before, h.registry.mutations())
	assert.Zero(t, h.registry.count("revise"))
	assert.Zero(t, h.registry.count("deactivate"))
}

func TestProvider_CancelledDeactivates(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, OrderPath, TopicOrderCreated, orderJSON(105, "completed", "PRO-1"))

	_, resp := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(105, "cancelled", "PRO-1"))
	o := resp.Result["105|shop.example.com|pro"]
	assert.Equal(t, "deactivate", o.Action)
	assert.Equal(t, 1, h.registry.count("deactivate"))

	recs := h.stored(t, "105|")
	require.Len(t, recs, 1)
	assert.Equal(t, registry.StatusTerminated, recs[0].Status)
}

func TestProvider_CancelledPendingCancelRevises(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.manager.Create(context.Background(), &registry.Registration{
		TransactionID: "106|shop.example.com|pro",
		Product:       "pro",
		Status:        registry.StatusPendingCancel,
	})
	require.NoError(t, err)

	_, resp := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(106, "cancelled", "PRO-1"))
	o := resp.Result["106|shop.example.com|pro"]
	assert.Equal(t, "revise", o.Action)
	assert.Equal(t, webhook.StatusSuccess, o.Status)
	assert.Zero(t, h.registry.count("deactivate"))

	recs := h.stored(t, "106|")
	require.Len(t, recs, 1)
	assert.Equal(t, registry.StatusPendingCancel, recs[0].Status)
}

func TestProvider_UpdatedWithoutRecordCreates(t *testing.T) {
	h := newHarness(t, nil)
	_, resp := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(107, "processing", "PRO-1"))

	o := resp.Result["107|shop.example.com|pro"]
	assert.Equal(t, "create", o.Action)
	recs := h.stored(t, "107|")
	require.Len(t, recs, 1)
	assert.Equal(t, registry.StatusPending, recs[0].Status)
}

func TestProvider_DeactivateMissingIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	rec, resp := h.post(t, OrderPath, TopicOrderUpdated, orderJSON(108, "failed", "PRO-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	o := resp.Result["108|shop.example.com|pro"]
	assert.Equal(t, webhook.StatusIgnored, o.Status)
	assert.Equal(t, http.StatusNotFound, o.Code)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
}

func TestProvider_DeletedDeactivatesEveryRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, OrderPath, TopicOrderCreated, orderJSON(109, "completed", "PRO-1", "BUNDLE"))
	require.Len(t, h.stored(t, "109|"), 3)

	_, resp := h.post(t, OrderPath, TopicOrderDeleted, `{"id": 109, "status": "trash"}`)
	assert.Equal(t, 3, h.registry.count("deactivate"))
	assert.Len(t, resp.Result, 3)
	for _, rec := range h.stored(t, "109|") {
		assert.Equal(t, registry.StatusTerminated, rec.Status)
	}

	_, resp = h.post(t, OrderPath, TopicOrderDeleted, `{"id": 999}`)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, 3, h.registry.count("deactivate"))
}

func TestProvider_DeletedRenewalAndSubscriptionOrders(t *testing.T) {
	h := newHarness(t, nil)
	h.post(t, OrderPath, TopicOrderCreated, orderJSON(300, "completed", "PRO-1"))
	require.Len(t, h.stored(t, "300|"), 1)

	_, resp := h.post(t, OrderPath, TopicOrderDeleted, `{"id": 300, "created_via": "subscription"}`)
	assert.Equal(t, webhook.StatusSuccess, resp.Status)
	assert.Equal(t, 1, h.registry.count("deactivate"))

	h.post(t, OrderPath, TopicOrderCreated, orderJSON(301, "completed", "PRO-1"))
	_, resp = h.post(t, OrderPath, TopicOrderDeleted, `{"id": 301, "subscriptions": [{"id": 9, "parent_id": 301}]}`)
	assert.Equal(t, webhook.StatusSuccess, resp.Status)
	assert.Equal(t, 2, h.registry.count("deactivate"))
}

func TestProvider_DeletedIgnoresOtherStorefronts(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.manager.Create(context.Background(), &registry.Registration{
		TransactionID: "110|shop.example.com.evil|pro",
		Product:       "pro",
	})
	require.NoError(t, err)

	_, resp := h.post(t, OrderPath, TopicOrderDeleted, `{"id": 110}`)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Zero(t, h.registry.count("deactivate"))
}

func TestProvider_Restored(t *testing.T) {
	h := newHarness(t, nil)
	_, created := h.post(t, OrderPath, TopicOrderCreated, orderJSON(111, "completed", "PRO-1"))
	key := created.Result["111|shop.example.com|pro"].Key
	_, err := h.manager.Trash(context.Background(), key)
	require.NoError(t, err)

	_, resp := h.post(t, OrderPath, TopicOrderRestored, orderJSON(111, "completed", "PRO-1"))
	o := resp.Result["111|shop.example.com|pro"]
	assert.Equal(t, "activate", o.Action)
	assert.Equal(t, webhook.StatusSuccess, o.Status)
	assert.Equal(t, 1, h.registry.count("restore"))

	rec, err := h.manager.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, rec.Trashed)

	_, resp = h.post(t, OrderPath, TopicOrderRestored, orderJSON(112, "completed", "PRO-1"))
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, webhook.ErrNothingToRestore.Error(), resp.Message)
}

func TestProvider_RegistryFailureIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.registry.fail["create"] = registry.NewAPIError(fmt.Errorf("%w: down", registry.ErrStorageUnavailable))

	rec, resp := h.post(t, OrderPath, TopicOrderCreated, orderJSON(113, "completed", "PRO-1", "ADDON"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, webhook.StatusError, resp.Status)
	require.Len(t, resp.Result, 2, "one failure does not stop sibling records")
	for _, o := range resp.Result {
		assert.Equal(t, webhook.StatusError, o.Status)
		assert.Equal(t, http.StatusServiceUnavailable, o.Code)
	}
	assert.Equal(t, 2, h.registry.count("create"))
}

func TestProvider_LookupFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.registry.fail["find"] = errors.New("connection reset")

	rec, resp := h.post(t, OrderPath, TopicOrderCreated, orderJSON(114, "completed", "PRO-1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, webhook.StatusError, resp.Status)
	assert.Zero(t, h.registry.mutations())
}

func TestProvider_OrdersWithSubscriptions(t *testing.T) {
	body := `{
		"id": 120, "status": "completed", "created_via": "checkout",
		"line_items": [{"sku": "PRO-1", "subtotal": "10"}],
		"subscriptions": [{"id": 121, "parent_id": 120, "status": "active",
			"schedule_next_payment": "2024-04-10T00:00:00",
			"line_items": [{"sku": "PRO-1"}]}]
	}`

	h := newHarness(t, nil)
	_, resp := h.post(t, OrderPath, TopicOrderCreated, body)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, webhook.ErrOrderHasSubscriptions.Error(), resp.Message)
	assert.Zero(t, h.registry.mutations())

	h = newHarness(t, func(c *Config) { c.OrdersWithSubscriptions = MergeOrdersWithSubscriptions })
	_, resp = h.post(t, OrderPath, TopicOrderCreated, body)
	require.Contains(t, resp.Result, "120|shop.example.com|pro")

	recs := h.stored(t, "120|")
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].NextPay)
	assert.Equal(t, "2024-04-10", recs[0].NextPay.Format(registry.DateLayout))
	require.NotNil(t, recs[0].Expires)
	assert.Equal(t, "2024-04-10", recs[0].Expires.Format(registry.DateLayout))
}

func TestProvider_RenewalOrder(t *testing.T) {
	renewal := `{
		"id": 131, "status": "completed", "created_via": "subscription",
		"line_items": [{"sku": "PRO-1", "subtotal": "10"}],
		"subscriptions": [{"id": 130, "parent_id": 129, "status": "active",
			"schedule_next_payment": "2024-05-10T00:00:00",
			"line_items": [{"sku": "PRO-1"}]}]
	}`

	h := newHarness(t, func(c *Config) { c.OrdersWithSubscriptions = MergeOrdersWithSubscriptions })
	_, err := h.manager.Create(context.Background(), &registry.Registration{
		TransactionID: "129|shop.example.com|pro",
		Product:       "pro",
	})
	require.NoError(t, err)

	_, resp := h.post(t, OrderPath, TopicOrderCreated, renewal)
	o := resp.Result["129|shop.example.com|pro"]
	assert.Equal(t, "renew", o.Action)
	assert.Equal(t, webhook.StatusSuccess, o.Status)

	_, resp = h.post(t, OrderPath, TopicOrderCreated, `{"id": 132, "created_via": "subscription", "line_items": [{"sku": "PRO-1"}]}`)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, webhook.ErrAmbiguousRenewal.Error(), resp.Message)
}

func subscriptionJSON(id, parent int64, status, relation string, extra string) string {
	return fmt.Sprintf(`{
		"id": %d, "parent_id": %d, "status": %q,
		"schedule_start": "2024-01-10T00:00:00",
		"schedule_next_payment": "2024-04-10T00:00:00",
		"date_paid": "2024-03-10T00:00:00",
		"related_orders": {"%d": %q}%s,
		"billing": {"first_name": "Grace", "last_name": "Hopper"},
		"line_items": [{"id": 1, "name": "Pro", "sku": "PRO-1", "subtotal": "9.00"}]
	}`, id, parent, status, parent, relation, extra)
}

func TestProvider_Subscription(t *testing.T) {
	h := newHarness(t, nil)

	_, resp := h.post(t, SubscriptionPath, TopicSubscription, subscriptionJSON(201, 200, "active", "parent", ""))
	id := "200|shop.example.com|pro"
	require.Contains(t, resp.Result, id)
	assert.Equal(t, "create", resp.Result[id].Action)
	assert.Equal(t, "201", resp.Resource)

	_, resp = h.post(t, SubscriptionPath, TopicSubscription, subscriptionJSON(201, 200, "on-hold", "parent", ""))
	assert.Equal(t, "revise", resp.Result[id].Action)

	_, resp = h.post(t, SubscriptionPath, TopicSubscription, subscriptionJSON(201, 200, "active", "renewal", ""))
	assert.Equal(t, "renew", resp.Result[id].Action)

	recs := h.stored(t, "200|")
	require.Len(t, recs, 1)
	assert.Equal(t, registry.StatusActive, recs[0].Status)
	assert.Equal(t, "Grace Hopper", recs[0].Name)
	assert.Equal(t, "2024-01-10", recs[0].Effective.Format(registry.DateLayout))
}

func TestProvider_SubscriptionAlias(t *testing.T) {
	h := newHarness(t, nil)
	_, resp := h.post(t, SubscriptionPath, Topic("action.wc_eacsoftwareregistry_subscription"), subscriptionJSON(211, 210, "active", "parent", ""))
	assert.Equal(t, string(TopicSubscription), resp.Action)
	assert.Equal(t, webhook.StatusSuccess, resp.Status)
}

func TestProvider_SwitchedSubscription(t *testing.T) {
	h := newHarness(t, nil)
	_, created := h.post(t, SubscriptionPath, TopicSubscription, subscriptionJSON(221, 220, "active", "parent", ""))
	key := created.Result["220|shop.example.com|pro"].Key

	_, resp := h.post(t, SubscriptionPath, TopicSubscription,
		subscriptionJSON(221, 225, "active", "switch", `, "switched_order_id": 220`))
	o := resp.Result["225|shop.example.com|pro"]
	assert.Equal(t, "revise", o.Action)
	assert.Equal(t, key, o.Key)

	assert.Empty(t, h.stored(t, "220|"))
	recs := h.stored(t, "225|")
	require.Len(t, recs, 1)
	assert.Equal(t, key, recs[0].Key)
}

func TestProvider_TopicNotRouted(t *testing.T) {
	h := newHarness(t, nil)
	rec, resp := h.post(t, SubscriptionPath, TopicOrderCreated, orderJSON(1, "completed", "PRO-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Equal(t, webhook.ErrTopicNotRouted.Error(), resp.Message)

	_, resp = h.post(t, OrderPath, TopicSubscription, subscriptionJSON(1, 2, "active", "parent", ""))
	assert.Equal(t, webhook.StatusIgnored, resp.Status)
	assert.Zero(t, h.registry.mutations())
}

func TestProvider_RateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.RateLimitRequests = 1
		c.RateLimitWindow = time.Minute
	})
	rec, _ := h.post(t, OrderPath, TopicOrderCreated, orderJSON(1, "completed", "NOPE"))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.post(t, OrderPath, TopicOrderCreated, orderJSON(1, "completed", "NOPE"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestProvider_SingleEndpointHandlers(t *testing.T) {
	h := newHarness(t, nil)
	p, err := NewProvider(Config{
		Config:      webhook.Config{WebhookSecret: testSecret, RateLimitRequests: -1},
		Registry:    h.registry,
		ItemMapping: "PRO-.*=pro",
		Now:         clock,
	})
	require.NoError(t, err)
	h.handler = p.OrderHandler()

	_, resp := h.post(t, "/anything", TopicOrderCreated, orderJSON(140, "completed", "PRO-1"))
	assert.Equal(t, webhook.StatusSuccess, resp.Status)

	h.handler = p.SubscriptionHandler()
	rec, _ := h.post(t, "/anything", TopicSubscription, subscriptionJSON(141, 140, "active", "parent", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "subscription toggle is off by default")
}
