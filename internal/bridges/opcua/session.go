package opcua

import (
	"context"
	"time"
)

// Session is one connection to the server.
type Session interface {
	// Read returns the current value of a node.
	Read(ctx context.Context, node NodeID) (any, error)

	// Write sets the value of a node.
	Write(ctx context.Context, node NodeID, value any) error

	// Subscribe creates a monitored item on node sampled at interval.
	Subscribe(ctx context.Context, node NodeID, interval time.Duration) (Subscription, error)

	// Close ends the session.
	Close(ctx context.Context) error
}

// Subscription is one server-side monitored item.
type Subscription interface {
	// Values delivers each data change. It is closed when the stream ends.
	Values() <-chan any

	// Cancel deletes the monitored item.
	Cancel(ctx context.Context) error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Session, error)

// Dial calls f(ctx, endpoint).
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Session, error) {
	return f(ctx, endpoint)
}

// Update is one value delivered to a subscriber.
type Update struct {
	Node  NodeID
	Value any
	At    time.Time
}
