package opcua

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, s *Subscriber) Update {
	t.Helper()
	select {
	case u, ok := <-s.C:
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func TestSubscribe_SharedPhysicalSubscription(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	ctx := context.Background()
	m.Connect(ctx) //nolint:errcheck // Setup
	s := d.last()

	a := m.Subscribe(sensor)
	b := m.Subscribe(sensor)
	defer a.Close()
	defer b.Close()

	if !waitFor(func() bool { return s.liveSubs() == 1 }) {
		t.Fatalf("live physical subscriptions = %d, want 1", s.liveSubs())
	}
	if got := s.subCall.Load(); got != 1 {
		t.Errorf("Subscribe calls = %d, want 1", got)
	}

	s.emit(true)
	for _, sub := range []*Subscriber{a, b} {
		u := receive(t, sub)
		if u.Value != true || u.Node != sensor {
			t.Errorf("update = %+v", u)
		}
	}
}

func TestSubscribe_LastSubscriberCancels(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	m.Connect(context.Background()) //nolint:errcheck // Setup
	s := d.last()

	a := m.Subscribe(sensor)
	b := m.Subscribe(sensor)
	if !waitFor(func() bool { return s.liveSubs() == 1 }) {
		t.Fatal("subscription not established")
	}

	a.Close()
	a.Close()
	if _, ok := <-a.C; ok {
		t.Error("closed subscriber still open")
	}
	if s.liveSubs() != 1 {
		t.Error("physical subscription cancelled while a subscriber remains")
	}

	b.Close()
	if !waitFor(func() bool { return s.liveSubs() == 0 }) {
		t.Error("physical subscription not cancelled after last subscriber left")
	}
}

func TestSubscribe_NotConnectedClosesAndRetries(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)

	early := m.Subscribe(sensor)
	select {
	case _, ok := <-early.C:
		if ok {
			t.Fatal("received update while disconnected")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed while disconnected")
	}

	m.Connect(context.Background()) //nolint:errcheck // Setup
	later := m.Subscribe(sensor)
	defer later.Close()
	if !waitFor(func() bool { return d.last().liveSubs() == 1 }) {
		t.Fatal("later Subscribe() did not establish a physical subscription")
	}
	d.last().emit(false)
	if u := receive(t, later); u.Value != false {
		t.Errorf("update = %+v", u)
	}
}

func TestSubscribe_EstablishFailure(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	m.Connect(context.Background()) //nolint:errcheck // Setup
	d.last().subErr = errors.New("too many monitored items")

	sub := m.Subscribe(sensor)
	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("unexpected update")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed after establish failure")
	}
	sub.Close()
}

func TestSubscribe_StreamEndClosesSubscribers(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d)
	m.Connect(context.Background()) //nolint:errcheck // Setup
	s := d.last()

	sub := m.Subscribe(sensor)
	if !waitFor(func() bool { return s.liveSubs() == 1 }) {
		t.Fatal("subscription not established")
	}

	s.mu.Lock()
	close(s.subs[0].values)
	s.subs[0].cancelled.Store(true)
	s.mu.Unlock()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("unexpected update")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not closed after stream ended")
	}
	sub.Close()
}
