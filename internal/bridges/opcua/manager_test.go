package opcua

import (
	"context"
	"errors"
	"testing"
	"time"
)

var sensor = NodeID{Namespace: 1, ID: 26}

func newTestManager(d *fakeDialer) *Manager {
	return NewManager(Config{
		Endpoint:          "opc.tcp://plc:4840",
		ReconnectInterval: 10 * time.Millisecond,
	}, d, nil)
}

func TestManager_NotConnected(t *testing.T) {
	m := newTestManager(&fakeDialer{})
	ctx := context.Background()

	if m.IsConnected() {
		t.Error("IsConnected() = true before Connect()")
	}
	if _, err := m.Read(ctx, sensor); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read() error = %v, want ErrNotConnected", err)
	}
	if err := m.Write(ctx, sensor, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write() error = %v, want ErrNotConnected", err)
	}
}

func TestManager_ReadWrite(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}

	if err := m.Write(ctx, sensor, true); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	v, err := m.Read(ctx, sensor)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v != true {
		t.Errorf("Read() = %v, want true", v)
	}
}

func TestManager_ConnectReplacesSession(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()

	m.Connect(ctx) //nolint:errcheck // Setup
	first := d.last()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if !first.closed.Load() {
		t.Error("replaced session was not closed")
	}
	if d.last() == first {
		t.Error("Connect() did not dial a new session")
	}
}

func TestManager_ConnectFailure(t *testing.T) {
	d := &fakeDialer{failing: true}
	m := newTestManager(d)

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrDevice) || !errors.Is(err, errTransport) {
		t.Errorf("Connect() error = %v, want ErrDevice wrapping transport error", err)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after failed Connect()")
	}
}

func TestManager_TransportErrorDropsSession(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()

	m.Connect(ctx) //nolint:errcheck // Setup
	s := d.last()
	s.readErr = errTransport

	if _, err := m.Read(ctx, sensor); !errors.Is(err, ErrDevice) {
		t.Fatalf("Read() error = %v, want ErrDevice", err)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after transport error")
	}
	if !s.closed.Load() {
		t.Error("failed session was not closed")
	}
	if _, err := m.Read(ctx, sensor); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Read() after drop error = %v, want ErrNotConnected", err)
	}
}

func TestManager_BadStatusKeepsSession(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()

	m.Connect(ctx) //nolint:errcheck // Setup
	d.last().readErr = ErrBadStatus

	if _, err := m.Read(ctx, sensor); !errors.Is(err, ErrDevice) {
		t.Fatalf("Read() error = %v, want ErrDevice", err)
	}
	if !m.IsConnected() {
		t.Error("bad status dropped the session")
	}
}

func TestManager_ReconnectLoop(t *testing.T) {
	d := &fakeDialer{failing: true}
	m := newTestManager(d)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.RunReconnectLoop(ctx)
		close(done)
	}()

	if !waitFor(func() bool { return d.dialCount() >= 2 }) {
		t.Fatal("reconnect loop did not retry")
	}
	if m.IsConnected() {
		t.Fatal("connected while dialer failing")
	}

	d.setFailing(false)
	if !waitFor(m.IsConnected) {
		t.Fatal("reconnect loop did not establish session")
	}

	// Lose the session; the loop must bring it back.
	d.last().readErr = errTransport
	m.Read(ctx, sensor) //nolint:errcheck // Forces a drop
	if !waitFor(func() bool { return m.IsConnected() && d.last().readErr == nil }) {
		t.Fatal("reconnect loop did not replace lost session")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunReconnectLoop() did not return after cancel")
	}
}

func TestManager_Close(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()

	m.Connect(ctx) //nolint:errcheck // Setup
	sub := m.Subscribe(sensor)
	if !waitFor(func() bool { return d.last().liveSubs() == 1 }) {
		t.Fatal("subscription not established")
	}

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if m.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if _, ok := <-sub.C; ok {
		t.Error("subscriber channel still open after Close()")
	}
	if d.last().liveSubs() != 0 {
		t.Error("physical subscription not cancelled")
	}
}
