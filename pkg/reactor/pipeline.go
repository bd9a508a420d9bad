package reactor

import (
	"context"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/codec"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/venicegeo/fusion/pkg/rendezvous"
)

// Pipeline is the producer-side convenience for sending a message to a
// reactor-fed topic and optionally waiting for its reply. When wait is
// false it is a plain fire-and-forget publish; when true it performs a
// full rendezvous round trip and returns the decoded reply.
func Pipeline(ctx context.Context, b broker.Broker, admin broker.TopicAdmin, cfg rendezvous.Config, topic string, args []any, wait bool) (any, error) {
	producer, err := b.Producer(topic)
	if err != nil {
		return nil, errors.New(CodeProduceFailed, "failed to create producer", err)
	}
	defer producer.Close()

	if !wait {
		env := codec.NewEnvelope()
		env.SetData(args)
		payload, err := codec.Encode(env.Value())
		if err != nil {
			return nil, errors.New(CodeProduceFailed, "failed to encode message", err)
		}
		if err := producer.Publish(ctx, &broker.Message{
			Topic:   topic,
			Key:     []byte(topic),
			Payload: payload,
		}); err != nil {
			return nil, errors.New(CodeProduceFailed, "failed to publish message", err)
		}
		return nil, nil
	}

	rz := rendezvous.New(producer, admin, func(responseTopic string) (broker.Consumer, error) {
		return b.Consumer(responseTopic, "")
	}, cfg)

	return rz.Call(ctx, rendezvous.RequestSpec{Topic: topic, Args: args})
}
