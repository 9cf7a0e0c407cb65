package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates session lifecycle events
type ActivityEventType string

const (
	ActivityEventRegister        ActivityEventType = "auth.register"
	ActivityEventLoginSuccess    ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventRefresh         ActivityEventType = "auth.refresh"
	ActivityEventRefreshRejected ActivityEventType = "auth.refresh.rejected"
	ActivityEventLogout          ActivityEventType = "auth.logout"
	ActivityEventFederatedLogin  ActivityEventType = "auth.federated.login"
	ActivityEventIdentityLinked  ActivityEventType = "auth.identity.linked"
)

// ActorRef identifies who triggered an event
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Recording is best effort: errors
// are logged and never fail the operation that produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
