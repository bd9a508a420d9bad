package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"github.com/venicegeo/fusion/pkg/broker"
)

// CreateTopic creates the named topic if it does not already exist. The
// existence check followed by create is not atomic, but sarama's
// ErrTopicAlreadyExists is treated as success, so concurrent callers racing
// to create the same ephemeral topic both succeed.
func (b *Broker) CreateTopic(ctx context.Context, topic string) error {
	exists, err := b.TopicExists(ctx, topic)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = b.admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     b.config.TopicPartitions,
		ReplicationFactor: b.config.TopicReplicationFactor,
	}, false)
	if err != nil {
		if isTopicExistsErr(err) {
			return nil
		}
		return broker.ErrTopicCreateFailed(topic, err)
	}
	return nil
}

// DeleteTopic removes the named topic. Deleting a topic that does not
// exist is not an error.
func (b *Broker) DeleteTopic(ctx context.Context, topic string) error {
	err := b.admin.DeleteTopic(topic)
	if err != nil {
		if isUnknownTopicErr(err) {
			return nil
		}
		return broker.ErrTopicDeleteFailed(topic, err)
	}
	return nil
}

// TopicExists reports whether the topic currently exists on the cluster.
func (b *Broker) TopicExists(ctx context.Context, topic string) (bool, error) {
	topics, err := b.admin.ListTopics()
	if err != nil {
		return false, broker.ErrTopicNotFound(topic, err)
	}
	_, ok := topics[topic]
	return ok, nil
}

func isTopicExistsErr(err error) bool {
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}

func isUnknownTopicErr(err error) bool {
	return errors.Is(err, sarama.ErrUnknownTopicOrPartition)
}
