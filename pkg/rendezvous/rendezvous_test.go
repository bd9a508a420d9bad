package rendezvous_test

import (
	"context"
	"testing"
	"time"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/broker/adapters/memory"
	"github.com/venicegeo/fusion/pkg/codec"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/venicegeo/fusion/pkg/rendezvous"
	"github.com/venicegeo/fusion/pkg/test"
)

type RendezvousSuite struct {
	test.Suite
	broker *memory.Broker
}

func (s *RendezvousSuite) SetupTest() {
	s.Suite.SetupTest()
	s.broker = memory.New(memory.Config{BufferSize: 10})
}

func (s *RendezvousSuite) TearDownTest() {
	s.broker.Close()
}

func (s *RendezvousSuite) newCaller(cfg rendezvous.Config) *rendezvous.Rendezvous {
	producer, err := s.broker.Producer("add")
	s.Require().NoError(err)
	return rendezvous.New(producer, s.broker, func(topic string) (broker.Consumer, error) {
		return s.broker.Consumer(topic, "")
	}, cfg)
}

// respond starts a goroutine that waits for the next request on `topic`,
// decodes its response-topic, and replies with `value`.
func (s *RendezvousSuite) respond(topic string, value any) {
	consumer, err := s.broker.Consumer(topic, "responder")
	s.Require().NoError(err)

	go func() {
		defer consumer.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		consumer.Consume(ctx, func(ctx context.Context, msg *broker.Message) error {
			decoded, err := codec.Decode(msg.Payload)
			if err != nil {
				return err
			}
			env, err := codec.EnvelopeFromValue(decoded)
			if err != nil {
				return err
			}
			responseTopic, _ := env.ResponseTopic()

			replyProducer, err := s.broker.Producer(responseTopic)
			if err != nil {
				return err
			}
			defer replyProducer.Close()

			payload, err := codec.Encode(value)
			if err != nil {
				return err
			}
			err = replyProducer.Publish(ctx, &broker.Message{Topic: responseTopic, Payload: payload})
			cancel()
			return err
		})
	}()
}

func (s *RendezvousSuite) TestSuccessfulRoundTrip() {
	s.respond("add", float64(6))

	caller := s.newCaller(rendezvous.Config{Timeout: time.Second})
	reply, err := caller.Call(s.Ctx, rendezvous.RequestSpec{Topic: "add", Args: []any{float64(1), float64(2), float64(3)}})

	s.Require().NoError(err)
	s.Equal(float64(6), reply)
}

func (s *RendezvousSuite) TestEphemeralTopicDeletedAfterSuccess() {
	s.respond("add", float64(6))

	caller := s.newCaller(rendezvous.Config{Timeout: time.Second})

	before := len(s.broker.Topics())
	_, err := caller.Call(s.Ctx, rendezvous.RequestSpec{Topic: "add", Args: []any{float64(1)}})
	s.Require().NoError(err)

	// The ephemeral response topic is created and torn down during the
	// call; once it returns, the topic count must be back where it started.
	s.Len(s.broker.Topics(), before)
}

func (s *RendezvousSuite) TestTimeoutWhenNoResponder() {
	caller := s.newCaller(rendezvous.Config{Timeout: 50 * time.Millisecond})

	_, err := caller.Call(s.Ctx, rendezvous.RequestSpec{Topic: "sub", Args: []any{float64(2)}})
	s.Require().Error(err)
	s.Equal(rendezvous.CodeRendezvousTimeout, errors.CodeOf(err))
}

func TestRendezvousSuite(t *testing.T) {
	test.Run(t, new(RendezvousSuite))
}
