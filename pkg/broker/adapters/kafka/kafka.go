// Package kafka provides a Kafka-backed implementation of pkg/broker built
// on IBM/sarama. Beyond Producer/Consumer it implements broker.TopicAdmin,
// which the rendezvous package uses to create and delete the ephemeral,
// per-call response topics.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/venicegeo/fusion/pkg/broker"
)

// Config holds Kafka connection settings.
type Config struct {
	// Brokers is the list of seed broker addresses.
	Brokers []string `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`

	// ClientID identifies this client to the Kafka cluster.
	ClientID string `env:"KAFKA_CLIENT_ID" env-default:"fusion-reactor"`

	// TopicPartitions is the partition count used when creating new topics,
	// including ephemeral rendezvous topics.
	TopicPartitions int32 `env:"KAFKA_TOPIC_PARTITIONS" env-default:"1"`

	// TopicReplicationFactor is the replication factor used when creating
	// new topics.
	TopicReplicationFactor int16 `env:"KAFKA_TOPIC_REPLICATION" env-default:"1"`

	// AdminTimeout bounds topic admin operations.
	AdminTimeout time.Duration `env:"KAFKA_ADMIN_TIMEOUT" env-default:"10s"`
}

// Broker is a Kafka-backed broker.Broker and broker.TopicAdmin.
type Broker struct {
	config   Config
	client   sarama.Client
	producer sarama.SyncProducer
	consumer sarama.Consumer
	admin    sarama.ClusterAdmin
}

// New connects to the configured Kafka cluster and returns a ready Broker.
func New(cfg Config) (*Broker, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Admin.Timeout = cfg.AdminTimeout

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, broker.ErrConnectionFailed(err)
	}

	syncProducer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, broker.ErrConnectionFailed(err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		syncProducer.Close()
		client.Close()
		return nil, broker.ErrConnectionFailed(err)
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		consumer.Close()
		syncProducer.Close()
		client.Close()
		return nil, broker.ErrConnectionFailed(err)
	}

	if cfg.TopicPartitions <= 0 {
		cfg.TopicPartitions = 1
	}
	if cfg.TopicReplicationFactor <= 0 {
		cfg.TopicReplicationFactor = 1
	}

	return &Broker{
		config:   cfg,
		client:   client,
		producer: syncProducer,
		consumer: consumer,
		admin:    admin,
	}, nil
}

// Producer creates a new producer for the specified topic.
func (b *Broker) Producer(topic string) (broker.Producer, error) {
	return &producer{
		broker:   b,
		topic:    topic,
		producer: b.producer,
	}, nil
}

// Consumer creates a new consumer for the specified topic and group.
//
// Kafka's real consumer-group protocol requires coordination this adapter
// does not implement; instead every group gets its own independent
// partition-0 reader, which matches the fan-out semantics the rest of the
// module relies on (ephemeral rendezvous topics always have exactly one
// reader, and the reactor's main topic is read by one long-running loop).
func (b *Broker) Consumer(topic string, group string) (broker.Consumer, error) {
	partitionConsumer, err := b.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return nil, broker.ErrConsumeFailed(err)
	}
	return &consumer{
		topic:             topic,
		group:             group,
		partitionConsumer: partitionConsumer,
	}, nil
}

// Close shuts down all underlying Kafka clients.
func (b *Broker) Close() error {
	var firstErr error
	if err := b.admin.Close(); err != nil {
		firstErr = err
	}
	if err := b.consumer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.producer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Healthy reports whether the client still believes the cluster is reachable.
func (b *Broker) Healthy(ctx context.Context) bool {
	return !b.client.Closed()
}
