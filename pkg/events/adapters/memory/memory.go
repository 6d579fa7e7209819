package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brpandey/basic-paxos/pkg/events"
	"github.com/brpandey/basic-paxos/pkg/logger"
)

type Event = events.Event

// MemoryBus is an in-process events.Bus. Unlike a fire-and-forget
// goroutine-per-publish bus, each subscriber owns a worker draining a
// buffered queue, so a subscriber observes events for one topic in
// publish order. Membership consumers rely on that ordering.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	closed bool
}

type subscriber struct {
	handler events.Handler
	queue   chan events.Event
	done    chan struct{}
}

const queueDepth = 128

func New() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string][]*subscriber),
	}
}

func (m *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil
	}
	for _, sub := range m.subs[topic] {
		select {
		case sub.queue <- event:
		default:
			// A stalled subscriber does not block the publisher.
			logger.L().Warn("event dropped, subscriber queue full",
				"topic", topic, "type", event.Type)
		}
	}
	return nil
}

func (m *MemoryBus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	sub := &subscriber{
		handler: handler,
		queue:   make(chan events.Event, queueDepth),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.subs[topic] = append(m.subs[topic], sub)
	m.mu.Unlock()

	go sub.run()
	return nil
}

func (s *subscriber) run() {
	for {
		select {
		case evt := <-s.queue:
			if err := s.handler(context.Background(), evt); err != nil {
				logger.L().Warn("event handler failed", "type", evt.Type, "error", err)
			}
		case <-s.done:
			return
		}
	}
}

func (m *MemoryBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, subs := range m.subs {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	m.subs = make(map[string][]*subscriber)
	return nil
}
