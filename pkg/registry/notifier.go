package registry

import "context"

// Notifier delivers client notifications for registrations flagged with Notify.
type Notifier interface {
	NotifyClient(ctx context.Context, rec *Record, action Action) error
}

// NoopNotifier discards notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyClient(_ context.Context, _ *Record, _ Action) error { return nil }
