package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/broker/adapters/memory"
	"github.com/venicegeo/fusion/pkg/test"
)

type MemoryBrokerSuite struct {
	test.Suite
	broker *memory.Broker
}

func (s *MemoryBrokerSuite) SetupTest() {
	s.Suite.SetupTest()
	s.broker = memory.New(memory.Config{BufferSize: 100})
}

func (s *MemoryBrokerSuite) TearDownTest() {
	s.broker.Close()
}

func (s *MemoryBrokerSuite) TestPublishConsume() {
	consumer, err := s.broker.Consumer("topic-a", "group-1")
	s.Require().NoError(err)
	defer consumer.Close()

	producer, err := s.broker.Producer("topic-a")
	s.Require().NoError(err)
	defer producer.Close()

	received := make(chan *broker.Message, 1)
	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	go consumer.Consume(ctx, func(ctx context.Context, msg *broker.Message) error {
		received <- msg
		return nil
	})

	s.Require().NoError(producer.Publish(s.Ctx, &broker.Message{Payload: []byte("hello")}))

	select {
	case msg := <-received:
		s.Equal([]byte("hello"), msg.Payload)
		s.NotEmpty(msg.ID)
	case <-time.After(time.Second):
		s.Fail("timed out waiting for message")
	}
}

func (s *MemoryBrokerSuite) TestFanOutToMultipleGroups() {
	consumerA, err := s.broker.Consumer("topic-b", "group-a")
	s.Require().NoError(err)
	defer consumerA.Close()

	consumerB, err := s.broker.Consumer("topic-b", "group-b")
	s.Require().NoError(err)
	defer consumerB.Close()

	producer, err := s.broker.Producer("topic-b")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	wg.Add(2)
	ctx, cancel := context.WithTimeout(s.Ctx, time.Second)
	defer cancel()

	go consumerA.Consume(ctx, func(ctx context.Context, msg *broker.Message) error {
		wg.Done()
		return nil
	})
	go consumerB.Consume(ctx, func(ctx context.Context, msg *broker.Message) error {
		wg.Done()
		return nil
	})

	s.Require().NoError(producer.Publish(s.Ctx, &broker.Message{Payload: []byte("broadcast")}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("not all groups received the broadcast message")
	}
}

func (s *MemoryBrokerSuite) TestTopicAdminLifecycle() {
	exists, err := s.broker.TopicExists(s.Ctx, "ephemeral-1")
	s.Require().NoError(err)
	s.False(exists)

	s.Require().NoError(s.broker.CreateTopic(s.Ctx, "ephemeral-1"))
	s.Require().NoError(s.broker.CreateTopic(s.Ctx, "ephemeral-1"))

	exists, err = s.broker.TopicExists(s.Ctx, "ephemeral-1")
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.broker.DeleteTopic(s.Ctx, "ephemeral-1"))
	s.Require().NoError(s.broker.DeleteTopic(s.Ctx, "ephemeral-1"))

	exists, err = s.broker.TopicExists(s.Ctx, "ephemeral-1")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *MemoryBrokerSuite) TestPublishAfterClose() {
	s.Require().NoError(s.broker.Close())
	_, err := s.broker.Producer("topic-c")
	s.Error(err)
}

func TestMemoryBrokerSuite(t *testing.T) {
	test.Run(t, new(MemoryBrokerSuite))
}
