package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/conveyor-core/internal/audit"
	"github.com/nerrad567/conveyor-core/internal/infrastructure/mqtt"
)

// Remote command names, the last segment of conveyor/command/{name}.
const (
	CommandRun   = "run"
	CommandJog   = "jog"
	CommandClear = "clear"
)

// DefaultCommandTimeout bounds one remote command.
const DefaultCommandTimeout = 30 * time.Second

var (
	// ErrUnknownCommand is returned for a command name with no handler.
	ErrUnknownCommand = errors.New("events: unknown command")

	// ErrBadCommand is returned for an unreadable command payload.
	ErrBadCommand = errors.New("events: malformed command")

	// ErrBusy is returned while another remote command is moving the conveyor.
	ErrBusy = errors.New("events: conveyor busy")
)

// Router moves the conveyor to a slot. *scan.Controller satisfies it.
type Router interface {
	Route(ctx context.Context, slot int) (bool, error)
}

// Jogger nudges the conveyor forward. *conveyor.Commands satisfies it.
type Jogger interface {
	JogForward(ctx context.Context) error
}

// SlotClearer empties a slot. *slots.Engine satisfies it.
type SlotClearer interface {
	Clear(ctx context.Context, slot int) error
}

// Auditor records completed commands. *audit.Repository satisfies it.
type Auditor interface {
	Create(ctx context.Context, log *audit.AuditLog) error
}

// Subscriber registers MQTT handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

type commandPayload struct {
	Slot int `json:"slot"`
}

// CommandListener executes remote conveyor commands one at a time.
type CommandListener struct {
	router  Router
	jogger  Jogger
	clearer SlotClearer
	logger  Logger
	auditor Auditor
	timeout time.Duration

	busy atomic.Bool
	// async runs command bodies; tests replace it to run inline.
	async func(func())
}

// NewCommandListener creates a listener. Any target may be nil, in which
// case its command is rejected as unknown.
func NewCommandListener(router Router, jogger Jogger, clearer SlotClearer, logger Logger) *CommandListener {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandListener{
		router:  router,
		jogger:  jogger,
		clearer: clearer,
		logger:  logger,
		timeout: DefaultCommandTimeout,
		async:   func(f func()) { go f() },
	}
}

// SetAuditor records every completed command through a.
func (l *CommandListener) SetAuditor(a Auditor) {
	l.auditor = a
}

// Listen subscribes to every command topic. Commands run under ctx.
func (l *CommandListener) Listen(ctx context.Context, sub Subscriber) error {
	topic := mqtt.Topics{}.AllCommands()
	if err := sub.Subscribe(topic, 1, func(topic string, payload []byte) error {
		return l.Handle(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	l.logger.Info("listening for remote commands", "topic", topic)
	return nil
}

// Handle validates one command message and starts it. Only one command
// runs at a time; others are rejected with ErrBusy.
func (l *CommandListener) Handle(ctx context.Context, topic string, payload []byte) error {
	name := path.Base(topic)

	var p commandPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %w", ErrBadCommand, err)
		}
	}

	run, err := l.command(name, p)
	if err != nil {
		return err
	}
	if !l.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	l.async(func() {
		defer l.busy.Store(false)
		cctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		if err := run(cctx); err != nil {
			l.logger.Error("remote command failed", "command", name, "slot", p.Slot, "error", err)
			return
		}
		l.logger.Info("remote command done", "command", name, "slot", p.Slot)
		l.record(ctx, name, p)
	})
	return nil
}

func (l *CommandListener) record(ctx context.Context, name string, p commandPayload) {
	if l.auditor == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:     audit.ActionCommand,
		EntityType: audit.EntityConveyor,
		Source:     audit.SourceMQTT,
		Details:    map[string]any{"op": name},
	}
	if p.Slot > 0 {
		entry.EntityType = audit.EntitySlot
		entry.EntityID = strconv.Itoa(p.Slot)
	}
	if err := l.auditor.Create(ctx, entry); err != nil {
		l.logger.Warn("recording remote command failed", "command", name, "error", err)
	}
}

func (l *CommandListener) command(name string, p commandPayload) (func(context.Context) error, error) {
	switch {
	case name == CommandRun && l.router != nil:
		if p.Slot <= 0 {
			return nil, fmt.Errorf("%w: run needs a positive slot", ErrBadCommand)
		}
		return func(ctx context.Context) error {
			_, err := l.router.Route(ctx, p.Slot)
			return err
		}, nil
	case name == CommandJog && l.jogger != nil:
		return l.jogger.JogForward, nil
	case name == CommandClear && l.clearer != nil:
		if p.Slot <= 0 {
			return nil, fmt.Errorf("%w: clear needs a positive slot", ErrBadCommand)
		}
		return func(ctx context.Context) error {
			return l.clearer.Clear(ctx, p.Slot)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
