package conveyor

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/conveyor-core/internal/bridges/opcua"
)

// resubscribeDelay is the pause before re-subscribing after a stream ends.
const resubscribeDelay = time.Second

// Subscriber is the fan-out side of the session manager.
type Subscriber interface {
	Subscribe(node opcua.NodeID) *opcua.Subscriber
}

// Watch calls fn for every boolean change on node until ctx is cancelled.
// When the subscription ends, for example while the session is down, it
// subscribes again after a short pause.
func Watch(ctx context.Context, sub Subscriber, node opcua.NodeID, logger Logger, fn func(bool)) {
	if logger == nil {
		logger = noopLogger{}
	}
	for {
		s := sub.Subscribe(node)
		drain(ctx, s, node, logger, fn)
		s.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func drain(ctx context.Context, s *opcua.Subscriber, node opcua.NodeID, logger Logger, fn func(bool)) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-s.C:
			if !ok {
				return
			}
			b, isBool := u.Value.(bool)
			if !isBool {
				logger.Debug("ignoring non-boolean update", "node", node, "type", fmt.Sprintf("%T", u.Value))
				continue
			}
			fn(b)
		}
	}
}
