package scan

import "time"

// EventKind names a workflow step.
type EventKind string

// Event kinds.
const (
	EventScanned   EventKind = "scanned"
	EventCompleted EventKind = "completed"
	EventRouted    EventKind = "routed"
)

// Event is emitted after a workflow step commits.
type Event struct {
	Kind   EventKind `json:"kind"`
	Result Result    `json:"result"`
	// Hung is set on EventRouted when the hanger was detected.
	Hung bool      `json:"hung,omitempty"`
	At   time.Time `json:"at"`
}

// Hook receives workflow events. Hooks run synchronously on the caller's
// goroutine and must not block.
type Hook func(Event)

// OnEvent registers h.
func (c *Controller) OnEvent(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

func (c *Controller) emit(ev Event) {
	ev.At = time.Now().UTC()
	c.mu.RLock()
	hooks := c.hooks
	c.mu.RUnlock()
	for _, h := range hooks {
		h(ev)
	}
}
