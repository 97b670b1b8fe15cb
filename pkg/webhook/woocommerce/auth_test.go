package woocommerce

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goregistry/pkg/webhook"
)

const testSecret = "wc-secret"

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":1,"status":"completed"}`)
	sig := Sign([]byte(testSecret), body)

	assert.True(t, VerifySignature([]byte(testSecret), body, sig))
	assert.False(t, VerifySignature([]byte(testSecret), []byte(`{"id":1,"status":"refunded"}`), sig), "altered body")
	assert.False(t, VerifySignature([]byte("other"), body, sig), "other secret")
	assert.False(t, VerifySignature(nil, body, sig), "no secret")
	assert.False(t, VerifySignature([]byte(testSecret), body, ""), "no signature")
	assert.False(t, VerifySignature([]byte(testSecret), body, "%%%"), "not base64")
}

func TestAuthenticate(t *testing.T) {
	endpoints, err := NewEndpointSet(nil)
	require.NoError(t, err)
	a := &authenticator{secret: []byte(testSecret), endpoints: endpoints}
	body := []byte(`{"id":1}`)

	req := httptest.NewRequest("POST", "/wc-order", strings.NewReader(string(body)))
	req.Header.Set(HeaderSignature, Sign([]byte(testSecret), body))
	req.Header.Set(HeaderTopic, "order.created")
	req.Header.Set(HeaderSource, "https://Shop.Example.com/")

	d, err := a.authenticate(req, body)
	require.NoError(t, err)
	assert.Equal(t, TopicOrderCreated, d.Topic)
	assert.Equal(t, "shop.example.com", d.Host)
	assert.Equal(t, "https://Shop.Example.com", d.Origin)

	req.Header.Set(HeaderTopic, "action.wc_eacswregistry_subscription")
	_, err = a.authenticate(req, body)
	assert.ErrorIs(t, err, webhook.ErrTopicDisabled, "subscription toggle is off by default")

	req.Header.Set(HeaderTopic, "coupon.created")
	_, err = a.authenticate(req, body)
	assert.ErrorIs(t, err, webhook.ErrTopicDisabled)

	req.Header.Set(HeaderTopic, "order.created")
	req.Header.Del(HeaderSource)
	_, err = a.authenticate(req, body)
	assert.ErrorIs(t, err, webhook.ErrAuthenticationFailed)

	req.Header.Set(HeaderSource, "https://shop.example.com")
	req.Header.Set(HeaderSignature, Sign([]byte("wrong"), body))
	_, err = a.authenticate(req, body)
	assert.ErrorIs(t, err, webhook.ErrAuthenticationFailed)

	req.Header.Del(HeaderSignature)
	_, err = a.authenticate(req, body)
	assert.ErrorIs(t, err, webhook.ErrAuthenticationFailed)
}

func TestIsPing(t *testing.T) {
	form := httptest.NewRequest("POST", "/wc-order", nil)
	assert.True(t, isPing(form, []byte("webhook_id=17")))
	assert.True(t, isPing(form, []byte(`{"webhook_id": 17}`)))
	assert.False(t, isPing(form, []byte(`{"id": 17}`)))
	assert.False(t, isPing(form, []byte("id=17")))

	signed := httptest.NewRequest("POST", "/wc-order", nil)
	signed.Header.Set(HeaderSignature, "abc")
	assert.False(t, isPing(signed, []byte("webhook_id=17")))
}
