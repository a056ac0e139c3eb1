package opcua

import (
	"context"
	"sync"
	"time"
)

// Subscriber receives updates for one node until Close is called or the
// underlying stream ends, at which point C is closed.
type Subscriber struct {
	C <-chan Update

	ch   chan Update
	b    *broadcast
	m    *Manager
	once sync.Once
}

// Close unsubscribes. When the last subscriber of a node leaves, the
// server-side monitored item is cancelled.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.m.unsubscribe(s)
	})
}

// broadcast fans one physical subscription out to many subscribers.
type broadcast struct {
	node   NodeID
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func (b *broadcast) add(s *Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.subs[s] = struct{}{}
	return true
}

// remove detaches s and returns how many subscribers remain.
func (b *broadcast) remove(s *Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	return len(b.subs)
}

// publish delivers u to every subscriber without blocking. A subscriber
// whose buffer is full misses the update.
func (b *broadcast) publish(u Update) (dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- u:
		default:
			dropped++
		}
	}
	return dropped
}

// finish closes every subscriber channel and refuses new subscribers.
func (b *broadcast) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Subscribe registers for value changes on node. Subscribers of the same
// node share one server-side monitored item, created lazily here.
//
// If the item cannot be created (for example while disconnected) the
// subscriber's channel is closed and a later Subscribe retries.
func (m *Manager) Subscribe(node NodeID) *Subscriber {
	ch := make(chan Update, subscriberBuffer)
	sub := &Subscriber{C: ch, ch: ch, m: m}

	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for {
		b := m.broadcasts[node]
		if b == nil {
			b = m.startBroadcast(node)
		}
		if b.add(sub) {
			sub.b = b
			return sub
		}
		delete(m.broadcasts, node)
	}
}

// startBroadcast must be called with subsMu held.
func (m *Manager) startBroadcast(node NodeID) *broadcast {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcast{
		node:   node,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[*Subscriber]struct{}),
	}
	m.broadcasts[node] = b

	m.wg.Add(1)
	go m.forward(b)
	return b
}

func (m *Manager) unsubscribe(s *Subscriber) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if s.b.remove(s) > 0 {
		return
	}
	if m.broadcasts[s.b.node] == s.b {
		delete(m.broadcasts, s.b.node)
	}
	s.b.cancel()
}

// retire removes b from the registry and closes its subscribers.
func (m *Manager) retire(b *broadcast) {
	m.subsMu.Lock()
	if m.broadcasts[b.node] == b {
		delete(m.broadcasts, b.node)
	}
	m.subsMu.Unlock()
	b.cancel()
	b.finish()
}

// forward owns the physical subscription for b.
func (m *Manager) forward(b *broadcast) {
	defer m.wg.Done()
	defer m.retire(b)

	s := m.current()
	if s == nil {
		m.logger.Debug("subscription deferred, not connected", "node", b.node)
		return
	}

	phys, err := s.Subscribe(b.ctx, b.node, m.cfg.SubscriptionInterval)
	if err != nil {
		if b.ctx.Err() == nil {
			m.logger.Debug("subscription failed", "node", b.node, "error", err)
		}
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := phys.Cancel(ctx); err != nil {
			m.logger.Debug("cancelling subscription", "node", b.node, "error", err)
		}
	}()

	m.logger.Debug("subscription started", "node", b.node)
	for {
		select {
		case <-b.ctx.Done():
			return
		case v, ok := <-phys.Values():
			if !ok {
				m.logger.Debug("subscription stream ended", "node", b.node)
				return
			}
			if n := b.publish(Update{Node: b.node, Value: v, At: time.Now()}); n > 0 {
				m.logger.Warn("slow subscribers missed update", "node", b.node, "dropped", n)
			}
		}
	}
}
