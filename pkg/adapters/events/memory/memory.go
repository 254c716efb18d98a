package memory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/aescanero/stepchain/pkg/domain"
	"github.com/aescanero/stepchain/pkg/ports"
)

const defaultBuffer = 256

// ErrClosed is returned by Subscribe after Close
var ErrClosed = errors.New("event bus is closed")

// EventBus implements ports.EventBus using in-memory queues. Each
// subscription has its own buffered queue drained by one goroutine, so a
// slow handler only delays itself. Events for a full queue are dropped.
type EventBus struct {
	logger *zap.Logger
	buffer int

	mu          sync.RWMutex
	subscribers map[string][]*subscription
	closed      bool
}

type subscription struct {
	topic   string
	handler ports.EventHandler
	queue   chan domain.Event
	cancel  context.CancelFunc
}

// NewEventBus creates a new in-memory event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		logger:      logger,
		buffer:      defaultBuffer,
		subscribers: make(map[string][]*subscription),
	}
}

// Publish enqueues an event for every subscriber of a topic
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.queue <- event:
		default:
			e.logger.Warn("subscriber queue full, dropping event",
				zap.String("topic", topic),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
	}
	return nil
}

// Subscribe registers a handler for a topic until ctx is cancelled
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		topic:   topic,
		handler: handler,
		queue:   make(chan domain.Event, e.buffer),
		cancel:  cancel,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return ErrClosed
	}
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(subCtx, sub)
	return nil
}

func (e *EventBus) deliver(ctx context.Context, sub *subscription) {
	defer e.remove(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.queue:
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", sub.topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *EventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	subs := e.subscribers[topic]
	delete(e.subscribers, topic)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	return nil
}

// Close cancels every subscription. Later subscriptions are refused.
func (e *EventBus) Close() error {
	e.mu.Lock()
	subs := e.subscribers
	e.subscribers = make(map[string][]*subscription)
	e.closed = true
	e.mu.Unlock()

	for _, list := range subs {
		for _, sub := range list {
			sub.cancel()
		}
	}
	return nil
}

// remove drops a single subscription from its topic
func (e *EventBus) remove(sub *subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[sub.topic]
	for i, s := range subs {
		if s == sub {
			e.subscribers[sub.topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subscribers[sub.topic]) == 0 {
		delete(e.subscribers, sub.topic)
	}
}
