package slots

import (
	"time"

	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// Transition describes one committed slot state change. Slot 0 means
// every slot, as after ClearConveyor.
type Transition struct {
	Slot   int              `json:"slot"`
	State  ledger.SlotState `json:"state"`
	Ticket string           `json:"ticket,omitempty"`
	At     time.Time        `json:"at"`
}

// Observer is notified after a slot transition commits.
// Implementations must not block.
type Observer interface {
	SlotChanged(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// SlotChanged calls f(t).
func (f ObserverFunc) SlotChanged(t Transition) { f(t) }

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
