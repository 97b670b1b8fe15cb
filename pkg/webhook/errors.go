package webhook

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is missing required configuration
	ErrProviderNotConfigured = errors.New("webhook provider not configured")

	// ErrAuthenticationFailed is returned when the signature is missing or does not match
	ErrAuthenticationFailed = errors.New("webhook authentication failed")

	// ErrTopicDisabled is returned for topics that are unknown or switched off
	ErrTopicDisabled = errors.New("webhook topic not enabled")

	// ErrMalformedPayload is returned when the body cannot be parsed or fails validation
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNoMatchedItems is returned when no line item maps to a registry product
	ErrNoMatchedItems = errors.New("no line items matched a registry product")

	// ErrAmbiguousRenewal is returned for renewal orders delivered without their subscription
	ErrAmbiguousRenewal = errors.New("renewal order without subscription data")

	// ErrOrderHasSubscriptions is returned for orders whose subscriptions are handled separately
	ErrOrderHasSubscriptions = errors.New("order carries subscriptions handled by the subscription webhook")

	// ErrTopicNotRouted is returned when a topic is delivered to an endpoint that does not serve it
	ErrTopicNotRouted = errors.New("topic not handled by this endpoint")

	// ErrNothingToRestore is returned when a restored order has no stored registration
	ErrNothingToRestore = errors.New("no stored registration to restore")

	// ErrNoRegistrations is returned when a deleted order has no stored registration
	ErrNoRegistrations = errors.New("no stored registrations for order")
)
