package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/venicegeo/fusion/pkg/broker"
)

// consumer reads a single partition of a single topic. It is used both for
// the reactor's main input topic and for one-shot ephemeral rendezvous
// topics.
type consumer struct {
	topic             string
	group             string
	partitionConsumer sarama.PartitionConsumer
}

func fromKafkaMessage(topic string, m *sarama.ConsumerMessage) *broker.Message {
	msg := &broker.Message{
		Topic:     topic,
		Key:       m.Key,
		Payload:   m.Value,
		Timestamp: m.Timestamp,
		Metadata: broker.MessageMetadata{
			Partition: m.Partition,
			Offset:    m.Offset,
			Raw:       m,
		},
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			if string(h.Key) == "message-id" {
				msg.ID = string(h.Value)
				continue
			}
			msg.Headers[string(h.Key)] = string(h.Value)
		}
	}
	return msg
}

// Consume reads messages until ctx is canceled, the partition consumer is
// closed, or the handler returns an error. Handler errors are not treated
// as fatal for the loop itself; like the memory adapter, one bad message
// does not stop the consumer.
func (c *consumer) Consume(ctx context.Context, handler broker.MessageHandler) error {
	messages := c.partitionConsumer.Messages()
	errs := c.partitionConsumer.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			_ = handler(ctx, fromKafkaMessage(c.topic, m))
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			if err != nil {
				return broker.ErrConsumeFailed(err.Err)
			}
		}
	}
}

func (c *consumer) Close() error {
	return c.partitionConsumer.Close()
}
