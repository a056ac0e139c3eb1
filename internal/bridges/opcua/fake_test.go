package opcua

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errTransport = errors.New("connection reset")

type fakeSession struct {
	mu      sync.Mutex
	values  map[NodeID]any
	readErr error
	subErr  error
	subs    []*fakeSubscription
	closed  atomic.Bool
	subCall atomic.Int32
}

func newFakeSession() *fakeSession {
	return &fakeSession{values: make(map[NodeID]any)}
}

func (s *fakeSession) Read(_ context.Context, node NodeID) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.values[node], nil
}

func (s *fakeSession) Write(_ context.Context, node NodeID, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	s.values[node] = value
	return nil
}

func (s *fakeSession) Subscribe(_ context.Context, _ NodeID, _ time.Duration) (Subscription, error) {
	s.subCall.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	sub := &fakeSubscription{values: make(chan any, 8)}
	s.subs = append(s.subs, sub)
	return sub, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}

// emit pushes v into every live physical subscription.
func (s *fakeSession) emit(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if !sub.cancelled.Load() {
			sub.values <- v
		}
	}
}

func (s *fakeSession) liveSubs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if !sub.cancelled.Load() {
			n++
		}
	}
	return n
}

type fakeSubscription struct {
	values    chan any
	cancelled atomic.Bool
}

func (f *fakeSubscription) Values() <-chan any { return f.values }

func (f *fakeSubscription) Cancel(context.Context) error {
	f.cancelled.Store(true)
	return nil
}

// fakeDialer hands out sessions in order and fails while failing is set.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failing  bool
	dials    int
}

func (d *fakeDialer) Dial(context.Context, string) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failing {
		return nil, errTransport
	}
	s := newFakeSession()
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) setFailing(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = v
}

func (d *fakeDialer) last() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
