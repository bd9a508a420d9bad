// Package memory provides an in-process implementation of events.Bus.
//
// It is the bus used to notify interested listeners (primarily logging
// and metrics hooks) about reactor lifecycle transitions and per-message
// failures, without requiring a broker round trip for purely local
// concerns.
package memory

import (
	"context"
	"sync"

	"github.com/venicegeo/fusion/pkg/concurrency"
	"github.com/venicegeo/fusion/pkg/events"
)

// Bus is an in-process, in-memory events.Bus.
type Bus struct {
	mu       *concurrency.SmartRWMutex
	handlers map[string][]events.Handler
	closed   bool
}

// New creates a new in-process event bus.
func New() *Bus {
	return &Bus{
		mu:       concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "EventBus"}),
		handlers: make(map[string][]events.Handler),
	}
}

// Publish runs every handler subscribed to topic concurrently, each in its
// own goroutine, and returns once all of them have finished. A handler
// error does not stop the other handlers; the first non-nil error in
// subscription order is returned.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	handlers := append([]events.Handler(nil), b.handlers[topic]...)
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h events.Handler) {
			defer wg.Done()
			errs[i] = h(ctx, event)
		}(i, h)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler to be invoked on every future Publish to topic.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close releases the bus. Subsequent Publish calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
