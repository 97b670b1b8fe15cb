package registry

import "time"

// Config holds registry Manager configuration
type Config struct {
	// DefaultTerm is added to the current date when a new registration carries
	// no expiration, and to the later of today and the stored expiration on renew.
	// Default: 1 year
	DefaultTerm Period

	// Location is the registry timezone used for calendar dates (default: UTC)
	Location *time.Location

	// MaxUpdateAttempts bounds re-reads after a version conflict (default: 3)
	MaxUpdateAttempts int

	// KeyGenerator produces new registry keys (default: upper-case UUID)
	KeyGenerator func() string

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// Logger is an optional structured logger (default: no-op)
	Logger Logger

	// Metrics is an optional metrics collector (default: no-op)
	Metrics Metrics

	// Notifier is called for registrations flagged with Notify (default: no-op)
	Notifier Notifier
}
