package pubsub

import (
	"context"
	"errors"
	"sync"
)

// DefaultBuffer is the per-subscription channel capacity
const DefaultBuffer = 64

// ErrShutdown is returned when subscribing to a PubSub that has been shut down
var ErrShutdown = errors.New("pubsub is shut down")

// PubSub fans out typed events to topic subscribers.
// Slow subscribers drop events rather than block the publisher.
type PubSub[T any] struct {
	subscribers map[string]map[*Subscription[T]]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
	buffer      int
}

// Subscription represents a subscription to a topic
type Subscription[T any] struct {
	topic   string
	channel chan T
	ps      *PubSub[T]
	cancel  context.CancelFunc

	// guards channel against send-after-close
	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewPubSub creates a new PubSub with the default buffer size
func NewPubSub[T any]() *PubSub[T] {
	return NewPubSubWithBuffer[T](DefaultBuffer)
}

// NewPubSubWithBuffer creates a PubSub whose subscriptions buffer n events
func NewPubSubWithBuffer[T any](n int) *PubSub[T] {
	if n < 1 {
		n = 1
	}
	return &PubSub[T]{
		subscribers: make(map[string]map[*Subscription[T]]struct{}),
		shutdown:    make(chan struct{}),
		buffer:      n,
	}
}

// Subscribe creates a new subscription to a topic. The subscription is
// removed when ctx is done.
func (ps *PubSub[T]) Subscribe(ctx context.Context, topic string) (*Subscription[T], error) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return nil, ErrShutdown
	}
	ps.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		topic:   topic,
		channel: make(chan T, ps.buffer),
		ps:      ps,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription[T]]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// Publish delivers event to every subscriber of topic without blocking.
// It returns the number of subscribers that received the event.
func (ps *PubSub[T]) Publish(topic string, event T) int {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return 0
	}
	ps.shutdownMu.Unlock()

	// Snapshot so sends happen outside the lock
	ps.mu.RLock()
	topicSubs := ps.subscribers[topic]
	if len(topicSubs) == 0 {
		ps.mu.RUnlock()
		return 0
	}
	subs := make([]*Subscription[T], 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if sub.offer(event) {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount returns the number of subscribers for a topic
func (ps *PubSub[T]) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes all subscriptions and shuts down the PubSub
func (ps *PubSub[T]) Shutdown() {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.isShutdown = true
	ps.shutdownMu.Unlock()

	close(ps.shutdown)

	ps.mu.Lock()
	for topic, subs := range ps.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
	ps.mu.Unlock()
}

// Channel returns the subscription's event channel. It is closed on
// Unsubscribe or Shutdown.
func (s *Subscription[T]) Channel() <-chan T {
	return s.channel
}

// Topic returns the subscribed topic
func (s *Subscription[T]) Topic() string {
	return s.topic
}

// Dropped returns how many events were discarded because the buffer was full
func (s *Subscription[T]) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe removes the subscription
func (s *Subscription[T]) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	if subs := s.ps.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.ps.mu.Unlock()

	s.close()
}

func (s *Subscription[T]) offer(event T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.channel <- event:
		return true
	default:
		s.dropped++
		return false
	}
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.channel)
}
