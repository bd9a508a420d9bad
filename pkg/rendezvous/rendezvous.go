// Package rendezvous implements a request/response call over a
// fire-and-forget broker by synthesizing a per-call ephemeral response
// topic: create it, send the request naming it as the reply address,
// block for exactly one message, then tear the topic down.
package rendezvous

import (
	"context"
	"time"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/codec"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/venicegeo/fusion/pkg/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error codes for rendezvous failures, matching the error kinds named in
// the reactor's error handling design.
const (
	CodeRendezvousSetupFailed    = "RENDEZVOUS_SETUP_FAILED"
	CodeRendezvousDispatchFailed = "RENDEZVOUS_DISPATCH_FAILED"
	CodeRendezvousTimeout        = "RENDEZVOUS_TIMEOUT"
)

// Config controls rendezvous behavior.
type Config struct {
	// Timeout bounds how long a single rendezvous call waits for its reply.
	Timeout time.Duration `env:"RENDEZVOUS_TIMEOUT" env-default:"30s"`
}

// DefaultConfig returns a Config with the spec-mandated default timeout.
func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

// RequestSpec describes an outbound call: the topic to invoke and the
// argument list to carry under the request envelope's "data" field.
type RequestSpec struct {
	Topic string
	Args  []any
}

// Rendezvous performs the create-topic -> send-request -> await-reply ->
// delete-topic sequence and returns the decoded reply value.
type Rendezvous struct {
	producer broker.Producer
	admin    broker.TopicAdmin
	consume  func(topic string) (broker.Consumer, error)
	cfg      Config
	tracer   trace.Tracer
}

// New builds a Rendezvous caller. consume creates a fresh, scoped consumer
// bound to the given ephemeral topic; it is typically
// `func(topic string) (broker.Consumer, error) { return b.Consumer(topic, "") }`.
func New(producer broker.Producer, admin broker.TopicAdmin, consume func(topic string) (broker.Consumer, error), cfg Config) *Rendezvous {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Rendezvous{
		producer: producer,
		admin:    admin,
		consume:  consume,
		cfg:      cfg,
		tracer:   otel.Tracer("pkg/rendezvous"),
	}
}

// Call executes one full rendezvous round trip for spec.
func (r *Rendezvous) Call(ctx context.Context, spec RequestSpec) (any, error) {
	ctx, span := r.tracer.Start(ctx, "rendezvous.Call", trace.WithAttributes(
		attribute.String("rendezvous.topic", spec.Topic),
	))
	defer span.End()

	topic := uuid.New().String()
	span.SetAttributes(attribute.String("rendezvous.response_topic", topic))

	if err := r.admin.CreateTopic(ctx, topic); err != nil {
		err = errors.New(CodeRendezvousSetupFailed, "failed to create ephemeral response topic", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reply, err := r.dispatchAndAwait(ctx, spec, topic)

	if delErr := r.admin.DeleteTopic(context.WithoutCancel(ctx), topic); delErr != nil {
		logger.L().WarnContext(ctx, "failed to delete ephemeral response topic", "topic", topic, "error", delErr)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "rendezvous completed")
	return reply, nil
}

func (r *Rendezvous) dispatchAndAwait(ctx context.Context, spec RequestSpec, responseTopic string) (any, error) {
	env := codec.NewEnvelope()
	env.SetResponseTopic(responseTopic)
	env.SetData(spec.Args)

	payload, err := codec.Encode(env.Value())
	if err != nil {
		return nil, errors.New(CodeRendezvousDispatchFailed, "failed to encode request envelope", err)
	}

	if err := r.producer.Publish(ctx, &broker.Message{
		Topic:   spec.Topic,
		Key:     []byte(spec.Topic),
		Payload: payload,
	}); err != nil {
		return nil, errors.New(CodeRendezvousDispatchFailed, "failed to dispatch rendezvous request", err)
	}

	return r.awaitReply(ctx, responseTopic)
}

func (r *Rendezvous) awaitReply(ctx context.Context, responseTopic string) (any, error) {
	consumer, err := r.consume(responseTopic)
	if err != nil {
		return nil, errors.New(CodeRendezvousSetupFailed, "failed to create response consumer", err)
	}
	defer consumer.Close()

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		err := consumer.Consume(waitCtx, func(ctx context.Context, msg *broker.Message) error {
			v, err := codec.Decode(msg.Payload)
			select {
			case resultCh <- result{value: v, err: err}:
			default:
			}
			cancel()
			return nil
		})
		if err != nil {
			select {
			case resultCh <- result{err: err}:
			default:
			}
		}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, errors.New(CodeRendezvousDispatchFailed, "failed to decode rendezvous reply", res.err)
		}
		return res.value, nil
	case <-waitCtx.Done():
		select {
		case res := <-resultCh:
			if res.err == nil {
				return res.value, nil
			}
		default:
		}
		return nil, errors.New(CodeRendezvousTimeout, "timed out waiting for rendezvous reply", waitCtx.Err())
	}
}
