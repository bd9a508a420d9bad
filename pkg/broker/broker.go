// Package broker provides a unified abstraction over fire-and-forget
// publish/subscribe message brokers.
//
// This package defines the core interfaces for producing and consuming
// messages across different broker backends. It also defines TopicAdmin,
// a capability used by the rendezvous package to create and tear down
// ephemeral, per-call response topics.
//
// # Architecture
//
// The package follows the adapter pattern with decoupled dependencies:
//   - Core interfaces are defined here, alongside the resilient and
//     instrumented (OpenTelemetry) wrappers
//   - Each adapter lives in its own sub-package (pkg/broker/adapters/{driver})
//   - Users import only the adapter they need, pulling only that SDK
//
// # Usage
//
//	import (
//	    "github.com/venicegeo/fusion/pkg/broker"
//	    "github.com/venicegeo/fusion/pkg/broker/adapters/kafka"
//	)
//
//	b, err := kafka.New(kafka.Config{Brokers: []string{"localhost:9092"}})
//
//	producer, err := b.Producer("my-topic")
//	defer producer.Close()
//
//	err = producer.Publish(ctx, &broker.Message{
//	    ID:      uuid.New().String(),
//	    Topic:   "my-topic",
//	    Payload: []byte(`{"event": "user.created"}`),
//	})
package broker

import (
	"context"
	"time"
)

// Message represents a message to be sent or received from a message broker.
// It provides a unified structure across all broker backends.
type Message struct {
	// ID is a unique identifier for the message.
	// If not provided, adapters should generate one.
	ID string `json:"id"`

	// Topic is the destination topic name.
	Topic string `json:"topic"`

	// Key is used for partitioning in systems that support it (e.g., Kafka).
	// Messages with the same key are guaranteed to go to the same partition.
	Key []byte `json:"key,omitempty"`

	// Payload is the message body.
	Payload []byte `json:"payload"`

	// Headers are optional key-value pairs for metadata. The reply address
	// of a dispatched call travels in the payload envelope's
	// "response-topic" field, not in a header.
	Headers map[string]string `json:"headers,omitempty"`

	// Timestamp is when the message was created.
	// If not set, adapters should use the current time.
	Timestamp time.Time `json:"timestamp"`

	// Metadata contains broker-specific information (e.g., partition, offset for Kafka).
	// This is populated by the consumer and should be treated as read-only.
	Metadata MessageMetadata `json:"metadata,omitempty"`
}

// ResponseTopicHeader is the header key name for an ephemeral reply
// address. The rendezvous package sets no such header; it puts the
// address in the payload envelope instead.
const ResponseTopicHeader = "response-topic"

// MessageMetadata contains broker-specific information about a message.
type MessageMetadata struct {
	// Partition is the partition number (Kafka, etc.)
	Partition int32 `json:"partition,omitempty"`

	// Offset is the message offset within the partition (Kafka, etc.)
	Offset int64 `json:"offset,omitempty"`

	// DeliveryCount is how many times this message has been delivered.
	DeliveryCount int `json:"delivery_count,omitempty"`

	// Raw contains the original broker-specific message if needed.
	Raw interface{} `json:"-"`
}

// MessageHandler processes incoming messages.
// Return nil to acknowledge the message, or an error to signal failure.
type MessageHandler func(ctx context.Context, msg *Message) error

// Producer sends messages to a topic.
type Producer interface {
	// Publish sends a single message.
	Publish(ctx context.Context, msg *Message) error

	// PublishBatch sends multiple messages in a single operation.
	PublishBatch(ctx context.Context, msgs []*Message) error

	// Close releases resources associated with the producer.
	Close() error
}

// Consumer receives messages from a topic.
type Consumer interface {
	// Consume starts consuming messages and calls the handler for each one.
	// This method blocks until the context is canceled or an error occurs.
	Consume(ctx context.Context, handler MessageHandler) error

	// Close stops consuming and releases resources.
	Close() error
}

// Broker manages connections and creates producers/consumers.
// Each adapter implements this interface to provide backend-specific
// functionality.
type Broker interface {
	// Producer creates a new producer for the specified topic.
	Producer(topic string) (Producer, error)

	// Consumer creates a new consumer for the specified topic and consumer
	// group. The adapters in this module do not balance load across
	// consumers of one group: the memory adapter keeps one subscription
	// channel per group (a new consumer replaces the old one) and the kafka
	// adapter gives every consumer its own partition-0 reader. Use an empty
	// string for broadcast/fanout behavior if supported.
	Consumer(topic string, group string) (Consumer, error)

	// Close shuts down the broker connection and all associated producers
	// and consumers.
	Close() error

	// Healthy returns true if the broker connection is healthy.
	Healthy(ctx context.Context) bool
}

// TopicAdmin manages topic lifecycle. Brokers that support ephemeral
// rendezvous topics implement this in addition to Broker.
type TopicAdmin interface {
	// CreateTopic creates a topic if it does not already exist. It must be
	// safe to call concurrently and idempotent: calling it twice for the
	// same topic name is not an error.
	CreateTopic(ctx context.Context, topic string) error

	// DeleteTopic removes a topic. Deleting a topic that does not exist is
	// not an error.
	DeleteTopic(ctx context.Context, topic string) error

	// TopicExists reports whether the topic currently exists.
	TopicExists(ctx context.Context, topic string) (bool, error)
}

// PublishOption configures a publish operation.
type PublishOption func(*publishOptions)

type publishOptions struct {
	// OrderingKey ensures messages with the same key are delivered in order.
	OrderingKey string
}

// WithOrderingKey sets the ordering key for message ordering.
func WithOrderingKey(key string) PublishOption {
	return func(o *publishOptions) {
		o.OrderingKey = key
	}
}

// ConsumeOption configures a consume operation.
type ConsumeOption func(*consumeOptions)

type consumeOptions struct {
	// WaitTime sets how long to wait for messages (long polling).
	WaitTime time.Duration
}

// WithWaitTime sets the wait time for long polling.
func WithWaitTime(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) {
		o.WaitTime = d
	}
}
