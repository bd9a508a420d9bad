package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"github.com/venicegeo/fusion/pkg/broker"
)

func TestProducerPublishSetsMessageID(t *testing.T) {
	sp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	sp.ExpectSendMessageAndSucceed()

	p := &producer{topic: "orders", producer: sp}
	msg := &broker.Message{Payload: []byte(`{"hello":"world"}`)}

	err := p.Publish(context.Background(), msg)
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
}

func TestProducerPublishWrapsFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	boom := errors.New("boom")
	sp.ExpectSendMessageAndFail(boom)

	p := &producer{topic: "orders", producer: sp}
	err := p.Publish(context.Background(), &broker.Message{Payload: []byte("x")})

	require.Error(t, err)
}

func TestConsumerConsumeDeliversMessage(t *testing.T) {
	mc := mocks.NewConsumer(t, mocks.NewTestConfig())
	pc := mc.ExpectConsumePartition("orders", 0, sarama.OffsetNewest)
	pc.YieldMessage(&sarama.ConsumerMessage{Topic: "orders", Value: []byte(`{"x":1}`)})
	pc.ExpectMessagesDrainedOnClose()

	partitionConsumer, err := mc.ConsumePartition("orders", 0, sarama.OffsetNewest)
	require.NoError(t, err)

	c := &consumer{topic: "orders", partitionConsumer: partitionConsumer}

	received := make(chan *broker.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = c.Consume(ctx, func(_ context.Context, msg *broker.Message) error {
			received <- msg
			cancel()
			return nil
		})
	}()

	select {
	case msg := <-received:
		require.Equal(t, "orders", msg.Topic)
		require.Equal(t, []byte(`{"x":1}`), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.NoError(t, c.Close())
}

func TestConsumerConsumeReturnsOnErrorChannelClose(t *testing.T) {
	mc := mocks.NewConsumer(t, mocks.NewTestConfig())
	pc := mc.ExpectConsumePartition("orders", 0, sarama.OffsetNewest)
	pc.ExpectMessagesDrainedOnClose()

	partitionConsumer, err := mc.ConsumePartition("orders", 0, sarama.OffsetNewest)
	require.NoError(t, err)

	c := &consumer{topic: "orders", partitionConsumer: partitionConsumer}

	done := make(chan error, 1)
	go func() {
		done <- c.Consume(context.Background(), func(context.Context, *broker.Message) error { return nil })
	}()

	require.NoError(t, c.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after partition consumer was closed")
	}
}
