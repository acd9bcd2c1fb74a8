package realtime

import (
	"context"
	"errors"
	"log"
	"sync"
)

const subscriptionBuffer = 16

var ErrChannelClosed = errors.New("event channel closed")

// MemoryChannel fans events out inside one process. Used when a single instance serves every
// websocket, and in tests.
type MemoryChannel struct {
	mu     sync.Mutex
	topics map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{topics: make(map[string]map[*memorySubscription]struct{})}
}

// Publish never blocks. A subscriber with a full buffer already has an invalidation pending,
// so the extra event is dropped.
func (m *MemoryChannel) Publish(_ context.Context, topic string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	for sub := range m.topics[topic] {
		select {
		case sub.events <- event:
		default:
			log.Printf("dropping %s event on %s: subscriber is behind", event.Reason, topic)
		}
	}
	return nil
}

func (m *MemoryChannel) Subscribe(_ context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrChannelClosed
	}
	sub := &memorySubscription{
		channel: m,
		topic:   topic,
		events:  make(chan Event, subscriptionBuffer),
	}
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[*memorySubscription]struct{})
	}
	m.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports how many live subscriptions a topic has.
func (m *MemoryChannel) Subscribers(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.topics[topic])
}

func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for topic, subs := range m.topics {
		for sub := range subs {
			sub.release()
		}
		delete(m.topics, topic)
	}
	return nil
}

func (m *MemoryChannel) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.topics, sub.topic)
		}
	}
	sub.release()
}

type memorySubscription struct {
	channel *MemoryChannel
	topic   string
	events  chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.channel.remove(s)
	return nil
}

// release must run with the channel lock held so no publisher sends on a closed chan.
func (s *memorySubscription) release() {
	s.once.Do(func() {
		close(s.events)
	})
}
