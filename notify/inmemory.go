package notify

import (
	"context"
	"slices"
	"sync"
)

// InMemory is an in-process broker. Changes are not persisted and are lost
// if no subscribers are active.
type InMemory struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*listener
	nextID uint64
	closed bool
}

var _ Broker = (*InMemory)(nil)

type listener struct {
	ctx     context.Context
	cancel  context.CancelFunc
	handler func(Change)
}

// NewInMemory creates a new in-memory broker.
func NewInMemory() *InMemory {
	return &InMemory{topics: make(map[string]map[uint64]*listener)}
}

// Publish sends c to all subscribers of topic. Each handler runs in its own
// goroutine and receives its own copy of the key list. A change that names
// no key and is not a clear is dropped.
func (m *InMemory) Publish(ctx context.Context, topic string, c Change) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.empty() {
		return nil
	}

	for _, l := range m.topics[topic] {
		if l.ctx.Err() != nil {
			continue
		}
		cp := c
		cp.Keys = slices.Clone(c.Keys)
		go l.handler(cp)
	}
	return nil
}

// Subscribe registers a handler for topic until ctx is canceled or Close is
// called.
func (m *InMemory) Subscribe(ctx context.Context, topic string, handler func(Change)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	id := m.nextID
	m.nextID++

	if m.topics[topic] == nil {
		m.topics[topic] = make(map[uint64]*listener)
	}
	m.topics[topic][id] = &listener{ctx: ctx, cancel: cancel, handler: handler}

	context.AfterFunc(ctx, func() { m.forget(topic, id) })
	return nil
}

func (m *InMemory) forget(topic string, id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.topics[topic], id)
	if len(m.topics[topic]) == 0 {
		delete(m.topics, topic)
	}
}

// Close stops all subscriptions and prevents new ones.
func (m *InMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	for _, listeners := range m.topics {
		for _, l := range listeners {
			l.cancel()
		}
	}
	m.topics = make(map[string]map[uint64]*listener)
	return nil
}
