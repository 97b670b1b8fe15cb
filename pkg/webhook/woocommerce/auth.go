package woocommerce

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/webhook"
)

// Delivery headers set by the storefront.
const (
	HeaderSignature = "X-Wc-Webhook-Signature"
	HeaderTopic     = "X-Wc-Webhook-Topic"
	HeaderSource    = "X-Wc-Webhook-Source"
)

// Delivery is the request-scoped state of one authenticated webhook delivery.
// It is threaded through lookup, building and resolution.
type Delivery struct {
	Topic  Topic
	Source string
	// Host is the lower-cased source host used in transaction ids.
	Host string
	// Origin is the source origin allowed to read the response.
	Origin string
}

// Sign returns the base64 HMAC-SHA256 of body, the value expected in HeaderSignature.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the base64 HMAC-SHA256 of body under secret.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	given, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}

// isPing reports whether an unsigned body is the storefront's connectivity test.
func isPing(r *http.Request, body []byte) bool {
	if strings.TrimSpace(r.Header.Get(HeaderSignature)) != "" {
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return false
		}
		_, ok := fields["webhook_id"]
		return ok
	}
	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return false
	}
	return values.Get("webhook_id") != ""
}

// authenticator verifies deliveries against the shared secret and the enabled topics.
type authenticator struct {
	secret    []byte
	endpoints EndpointSet
}

// authenticate verifies the signature and classifies the topic.
// Disabled topics fail authentication even when correctly signed.
func (a *authenticator) authenticate(r *http.Request, body []byte) (*Delivery, error) {
	signature := r.Header.Get(HeaderSignature)
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing signature", webhook.ErrAuthenticationFailed)
	}
	if !VerifySignature(a.secret, body, signature) {
		return nil, fmt.Errorf("%w: signature mismatch", webhook.ErrAuthenticationFailed)
	}

	rawTopic := r.Header.Get(HeaderTopic)
	topic, ok := ParseTopic(rawTopic)
	if !ok {
		return nil, fmt.Errorf("%w: %q", webhook.ErrTopicDisabled, rawTopic)
	}
	if !a.endpoints.Enabled(topic.Endpoint()) {
		return nil, fmt.Errorf("%w: %s", webhook.ErrTopicDisabled, topic)
	}

	source := strings.TrimSpace(r.Header.Get(HeaderSource))
	host := SourceHost(source)
	if host == "" {
		return nil, fmt.Errorf("%w: missing webhook source", webhook.ErrAuthenticationFailed)
	}

	return &Delivery{
		Topic:  topic,
		Source: source,
		Host:   host,
		Origin: SourceOrigin(source),
	}, nil
}
