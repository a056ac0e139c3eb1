package opcua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Manager defaults.
const (
	// DefaultReconnectInterval is how often the supervisor checks for a
	// missing session.
	DefaultReconnectInterval = 3 * time.Second

	// DefaultSubscriptionInterval is the publishing interval requested for
	// monitored items.
	DefaultSubscriptionInterval = 50 * time.Millisecond

	// dialTimeout bounds one connect attempt from the reconnect loop.
	dialTimeout = 5 * time.Second

	// closeTimeout bounds session and subscription teardown.
	closeTimeout = 2 * time.Second

	// subscriberBuffer is the per-subscriber channel depth.
	subscriberBuffer = 64
)

// Logger is the logging interface used by the manager.
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

// Config configures a Manager.
type Config struct {
	Endpoint             string
	ReconnectInterval    time.Duration
	SubscriptionInterval time.Duration
}

// Manager owns the single device session.
//
// Thread Safety: all methods are safe for concurrent use. The mutex covers
// taking and replacing the session handle; I/O on the handle runs outside
// it so unrelated reads and writes do not queue behind each other.
type Manager struct {
	cfg    Config
	dialer Dialer
	logger Logger

	mu      sync.Mutex
	session Session

	connected atomic.Bool

	subsMu     sync.Mutex
	broadcasts map[NodeID]*broadcast
	wg         sync.WaitGroup
}

// NewManager creates a manager. No connection is made until Connect or
// RunReconnectLoop.
func NewManager(cfg Config, dialer Dialer, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.SubscriptionInterval <= 0 {
		cfg.SubscriptionInterval = DefaultSubscriptionInterval
	}
	return &Manager{
		cfg:        cfg,
		dialer:     dialer,
		logger:     logger,
		broadcasts: make(map[NodeID]*broadcast),
	}
}

// Endpoint returns the configured server URL.
func (m *Manager) Endpoint() string {
	return m.cfg.Endpoint
}

// Connect establishes a session, replacing any session already held.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: connecting to %s: %w", ErrDevice, m.cfg.Endpoint, err)
	}

	if old := m.session; old != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		old.Close(closeCtx) //nolint:errcheck // Replaced handle, close is best effort
		cancel()
	}
	m.session = s
	m.connected.Store(true)
	m.logger.Info("device session established", "endpoint", m.cfg.Endpoint)
	return nil
}

// IsConnected reports whether the last connect succeeded and no failure has
// been seen since. It does not contact the server.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

func (m *Manager) current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// dropSession forgets s if it is still the held session.
func (m *Manager) dropSession(s Session, cause error) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.connected.Store(false)
	m.mu.Unlock()

	m.logger.Warn("device session lost", "endpoint", m.cfg.Endpoint, "error", cause)
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	s.Close(closeCtx) //nolint:errcheck // Session already failed
}

// deviceError wraps err as ErrDevice and drops the session unless the
// server merely rejected the request.
func (m *Manager) deviceError(s Session, op string, node NodeID, err error) error {
	if !errors.Is(err, ErrBadStatus) {
		m.dropSession(s, err)
	}
	return fmt.Errorf("%w: %s %s: %w", ErrDevice, op, node, err)
}

// Read returns the current value of node.
func (m *Manager) Read(ctx context.Context, node NodeID) (any, error) {
	s := m.current()
	if s == nil {
		return nil, ErrNotConnected
	}
	v, err := s.Read(ctx, node)
	if err != nil {
		return nil, m.deviceError(s, "read", node, err)
	}
	return v, nil
}

// Write sets node to value.
func (m *Manager) Write(ctx context.Context, node NodeID, value any) error {
	s := m.current()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.Write(ctx, node, value); err != nil {
		return m.deviceError(s, "write", node, err)
	}
	return nil
}

// RunReconnectLoop connects immediately if no session is held, then checks
// again every ReconnectInterval until ctx is cancelled. Failures are logged
// and retried on the next tick.
func (m *Manager) RunReconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		if m.current() == nil {
			dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			if err := m.Connect(dialCtx); err != nil && ctx.Err() == nil {
				m.logger.Debug("device connect failed", "endpoint", m.cfg.Endpoint, "error", err)
			}
			cancel()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close cancels every subscription and ends the session.
func (m *Manager) Close(ctx context.Context) error {
	m.subsMu.Lock()
	for node, b := range m.broadcasts {
		b.cancel()
		delete(m.broadcasts, node)
	}
	m.subsMu.Unlock()
	m.wg.Wait()

	m.mu.Lock()
	s := m.session
	m.session = nil
	m.connected.Store(false)
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Close(ctx); err != nil {
		return fmt.Errorf("%w: closing session: %w", ErrDevice, err)
	}
	return nil
}
