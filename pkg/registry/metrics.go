package registry

import "time"

// Metrics defines the interface for tracking registry operations.
type Metrics interface {
	// RecordOperation records a registry operation and its outcome ("success" or "error").
	RecordOperation(action Action, status string, duration time.Duration)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordOperation(_ Action, _ string, _ time.Duration)       {}
func (n *NoopMetrics) RecordStorageOperation(_ string, _ time.Duration, _ error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(_ string)                  {}
