package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/google/uuid"
)

// producer is a Kafka sync producer implementation.
type producer struct {
	broker   *Broker
	topic    string
	producer sarama.SyncProducer
}

func toKafkaMessage(topic string, msg *broker.Message) *sarama.ProducerMessage {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(msg.Payload),
		Timestamp: msg.Timestamp,
	}

	if len(msg.Key) > 0 {
		kafkaMsg.Key = sarama.ByteEncoder(msg.Key)
	}

	for k, v := range msg.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{
		Key:   []byte("message-id"),
		Value: []byte(msg.ID),
	})

	return kafkaMsg
}

func (p *producer) Publish(ctx context.Context, msg *broker.Message) error {
	topic := p.topic
	if msg.Topic != "" {
		topic = msg.Topic
	}
	kafkaMsg := toKafkaMessage(topic, msg)

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		return broker.ErrPublishFailed(err)
	}

	msg.Metadata.Partition = partition
	msg.Metadata.Offset = offset

	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*broker.Message) error {
	kafkaMsgs := make([]*sarama.ProducerMessage, len(msgs))
	for i, msg := range msgs {
		topic := p.topic
		if msg.Topic != "" {
			topic = msg.Topic
		}
		kafkaMsgs[i] = toKafkaMessage(topic, msg)
	}

	if err := p.producer.SendMessages(kafkaMsgs); err != nil {
		return broker.ErrPublishFailed(err)
	}

	for i, kafkaMsg := range kafkaMsgs {
		msgs[i].Metadata.Partition = kafkaMsg.Partition
		msgs[i].Metadata.Offset = kafkaMsg.Offset
	}

	return nil
}

func (p *producer) Close() error {
	// The underlying sarama.SyncProducer is owned by the Broker and shared
	// across all producers created from it.
	return nil
}
