package woocommerce

import (
	"fmt"
	"strings"
)

// Topic is a recognized x-wc-webhook-topic value.
type Topic string

const (
	TopicOrderCreated  Topic = "order.created"
	TopicOrderUpdated  Topic = "order.updated"
	TopicOrderDeleted  Topic = "order.deleted"
	TopicOrderRestored Topic = "order.restored"
	// TopicSubscription is the action topic registered by the storefront companion plugin.
	TopicSubscription Topic = "action.wc_eacswregistry_subscription"
)

// subscriptionAliases are earlier spellings of TopicSubscription.
var subscriptionAliases = []string{
	"action.wc_eacsoftwareregistry_subscription",
}

// Endpoint is a per-topic toggle.
type Endpoint string

const (
	EndpointCreate       Endpoint = "create"
	EndpointRevise       Endpoint = "revise"
	EndpointDeactivate   Endpoint = "deactivate"
	EndpointActivate     Endpoint = "activate"
	EndpointSubscription Endpoint = "subscription"
)

// DefaultEndpoints are enabled when no toggles are configured.
var DefaultEndpoints = []Endpoint{EndpointCreate, EndpointRevise, EndpointDeactivate, EndpointActivate}

var topicEndpoints = map[Topic]Endpoint{
	TopicOrderCreated:  EndpointCreate,
	TopicOrderUpdated:  EndpointRevise,
	TopicOrderDeleted:  EndpointDeactivate,
	TopicOrderRestored: EndpointActivate,
	TopicSubscription:  EndpointSubscription,
}

// ParseTopic classifies a topic header value.
func ParseTopic(value string) (Topic, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, alias := range subscriptionAliases {
		if v == alias {
			return TopicSubscription, true
		}
	}
	t := Topic(v)
	_, ok := topicEndpoints[t]
	return t, ok
}

// Endpoint returns the toggle controlling the topic.
func (t Topic) Endpoint() Endpoint {
	return topicEndpoints[t]
}

// IsOrder reports whether the topic is delivered to the order endpoint.
func (t Topic) IsOrder() bool {
	return t != TopicSubscription && t.Endpoint() != ""
}

// EndpointSet is the set of enabled toggles.
type EndpointSet map[Endpoint]struct{}

// NewEndpointSet validates names and builds a set. A nil slice yields DefaultEndpoints.
func NewEndpointSet(endpoints []Endpoint) (EndpointSet, error) {
	if endpoints == nil {
		endpoints = DefaultEndpoints
	}
	set := make(EndpointSet, len(endpoints))
	for _, e := range endpoints {
		e = Endpoint(strings.ToLower(strings.TrimSpace(string(e))))
		switch e {
		case EndpointCreate, EndpointRevise, EndpointDeactivate, EndpointActivate, EndpointSubscription:
			set[e] = struct{}{}
		default:
			return nil, fmt.Errorf("unknown webhook endpoint %q", e)
		}
	}
	return set, nil
}

// Enabled reports whether the toggle is on.
func (s EndpointSet) Enabled(e Endpoint) bool {
	_, ok := s[e]
	return ok
}
