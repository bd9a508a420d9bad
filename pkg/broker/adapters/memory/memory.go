// Package memory provides an in-memory broker implementation for testing
// and for the ephemeral rendezvous path in environments without Kafka.
//
// This adapter uses Go channels to simulate a message broker, making it
// ideal for unit tests and local development without external dependencies.
//
// # Usage
//
//	b := memory.New(memory.Config{BufferSize: 100})
//	defer b.Close()
//
//	producer, _ := b.Producer("my-topic")
//	consumer, _ := b.Consumer("my-topic", "my-group")
package memory

import (
	"context"
	"time"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/concurrency"
	"github.com/google/uuid"
)

// Config holds configuration for the memory broker.
type Config struct {
	// BufferSize is the channel buffer size for each topic subscription.
	BufferSize int `env:"MEMORY_BUFFER_SIZE" env-default:"1000"`
}

// Broker is an in-memory broker implementation. It also implements
// broker.TopicAdmin: topics are created lazily on first use and explicit
// CreateTopic/DeleteTopic calls manage that lifecycle directly, which is
// what lets the rendezvous package run against this adapter in tests.
type Broker struct {
	config Config
	mu     *concurrency.SmartRWMutex
	topics map[string]*topic
	closed bool
}

type topic struct {
	mu          *concurrency.SmartRWMutex
	name        string
	subscribers map[string]chan *broker.Message
	nextOffset  int64
}

// New creates a new in-memory broker.
func New(cfg Config) *Broker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	return &Broker{
		config: cfg,
		topics: make(map[string]*topic),
		mu:     concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "MemoryBroker"}),
	}
}

func (b *Broker) getOrCreateTopic(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[name]; ok {
		return t
	}

	t := &topic{
		name:        name,
		subscribers: make(map[string]chan *broker.Message),
		mu:          concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "MemoryTopic-" + name}),
	}
	b.topics[name] = t
	return t
}

// Producer creates a new producer for the specified topic.
func (b *Broker) Producer(topicName string) (broker.Producer, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, broker.ErrClosed(nil)
	}
	b.mu.RUnlock()

	t := b.getOrCreateTopic(topicName)
	return &producer{
		broker: b,
		topic:  t,
	}, nil
}

// Consumer creates a new consumer for the specified topic and group.
func (b *Broker) Consumer(topicName string, group string) (broker.Consumer, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, broker.ErrClosed(nil)
	}
	b.mu.RUnlock()

	if group == "" {
		group = uuid.New().String()
	}

	t := b.getOrCreateTopic(topicName)

	t.mu.Lock()
	ch := make(chan *broker.Message, b.config.BufferSize)
	t.subscribers[group] = ch
	t.mu.Unlock()

	return &consumer{
		broker: b,
		topic:  t,
		group:  group,
		ch:     ch,
		mu:     concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "MemoryConsumer-" + group}),
	}, nil
}

// Close shuts down the broker and all topics.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, t := range b.topics {
		t.mu.Lock()
		for _, ch := range t.subscribers {
			close(ch)
		}
		t.mu.Unlock()
	}

	return nil
}

// Healthy returns true if the broker is operational.
func (b *Broker) Healthy(ctx context.Context) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// CreateTopic creates the named topic if it does not already exist.
// Idempotent: calling it again for an existing topic is a no-op.
func (b *Broker) CreateTopic(ctx context.Context, name string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return broker.ErrClosed(nil)
	}
	b.mu.RUnlock()

	b.getOrCreateTopic(name)
	return nil
}

// DeleteTopic removes the named topic and disconnects its subscribers.
// Deleting a topic that does not exist is not an error.
func (b *Broker) DeleteTopic(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok {
		return nil
	}

	t.mu.Lock()
	for _, ch := range t.subscribers {
		close(ch)
	}
	t.mu.Unlock()

	delete(b.topics, name)
	return nil
}

// TopicExists reports whether the named topic currently exists.
func (b *Broker) TopicExists(ctx context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.topics[name]
	return ok, nil
}

// Topics returns the names of all topics currently tracked by the broker.
// Intended for tests that need to assert on ephemeral topic cleanup.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

// producer is an in-memory message producer.
type producer struct {
	broker *Broker
	topic  *topic
}

func (p *producer) Publish(ctx context.Context, msg *broker.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	t := p.topic
	if msg.Topic == "" {
		msg.Topic = t.name
	} else if msg.Topic != t.name {
		t = p.broker.getOrCreateTopic(msg.Topic)
	}

	t.mu.Lock()
	msg.Metadata.Offset = t.nextOffset
	t.nextOffset++
	subscribers := make([]chan *broker.Message, 0, len(t.subscribers))
	for _, ch := range t.subscribers {
		subscribers = append(subscribers, ch)
	}
	t.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return broker.ErrTimeout("publish", ctx.Err())
		default:
			// Subscriber channel is full; drop for that subscriber rather
			// than block the whole publish.
		}
	}

	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*broker.Message) error {
	for _, msg := range msgs {
		if err := p.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error {
	return nil
}

// consumer is an in-memory message consumer.
type consumer struct {
	broker *Broker
	topic  *topic
	group  string
	ch     chan *broker.Message
	closed bool
	mu     *concurrency.SmartMutex
}

func (c *consumer) Consume(ctx context.Context, handler broker.MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-c.ch:
			if !ok {
				return nil
			}
			// Handler errors are the handler's problem to surface (e.g. by
			// publishing a failure to a return topic); the consume loop
			// keeps running so one bad message can't wedge the topic.
			_ = handler(ctx, msg)
		}
	}
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.topic.mu.Lock()
	delete(c.topic.subscribers, c.group)
	c.topic.mu.Unlock()

	return nil
}
