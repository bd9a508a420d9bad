package broker

import (
	"context"

	"github.com/venicegeo/fusion/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedBroker wraps a Broker with logging and tracing.
type InstrumentedBroker struct {
	next   Broker
	admin  TopicAdmin
	tracer trace.Tracer
}

// NewInstrumentedBroker creates a new InstrumentedBroker wrapping the given broker.
func NewInstrumentedBroker(next Broker) *InstrumentedBroker {
	ib := &InstrumentedBroker{
		next:   next,
		tracer: otel.Tracer("pkg/broker"),
	}
	if admin, ok := next.(TopicAdmin); ok {
		ib.admin = admin
	}
	return ib
}

func (b *InstrumentedBroker) Producer(topic string) (Producer, error) {
	producer, err := b.next.Producer(topic)
	if err != nil {
		logger.L().Error("failed to create producer", "topic", topic, "error", err)
		return nil, err
	}
	return &InstrumentedProducer{
		next:   producer,
		topic:  topic,
		tracer: b.tracer,
	}, nil
}

func (b *InstrumentedBroker) Consumer(topic string, group string) (Consumer, error) {
	consumer, err := b.next.Consumer(topic, group)
	if err != nil {
		logger.L().Error("failed to create consumer", "topic", topic, "group", group, "error", err)
		return nil, err
	}
	return &InstrumentedConsumer{
		next:   consumer,
		topic:  topic,
		group:  group,
		tracer: b.tracer,
	}, nil
}

func (b *InstrumentedBroker) Close() error {
	logger.L().Info("closing broker")
	return b.next.Close()
}

func (b *InstrumentedBroker) Healthy(ctx context.Context) bool {
	return b.next.Healthy(ctx)
}

func (b *InstrumentedBroker) CreateTopic(ctx context.Context, topic string) error {
	ctx, span := b.tracer.Start(ctx, "broker.CreateTopic", trace.WithAttributes(attribute.String("broker.topic", topic)))
	defer span.End()

	if b.admin == nil {
		err := ErrTopicCreateFailed(topic, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := b.admin.CreateTopic(ctx, topic); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.L().DebugContext(ctx, "topic created", "topic", topic)
	return nil
}

func (b *InstrumentedBroker) DeleteTopic(ctx context.Context, topic string) error {
	ctx, span := b.tracer.Start(ctx, "broker.DeleteTopic", trace.WithAttributes(attribute.String("broker.topic", topic)))
	defer span.End()

	if b.admin == nil {
		err := ErrTopicDeleteFailed(topic, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := b.admin.DeleteTopic(ctx, topic); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	logger.L().DebugContext(ctx, "topic deleted", "topic", topic)
	return nil
}

func (b *InstrumentedBroker) TopicExists(ctx context.Context, topic string) (bool, error) {
	if b.admin == nil {
		return false, ErrTopicNotFound(topic, nil)
	}
	return b.admin.TopicExists(ctx, topic)
}

// InstrumentedProducer wraps a Producer with logging and tracing.
type InstrumentedProducer struct {
	next   Producer
	topic  string
	tracer trace.Tracer
}

func (p *InstrumentedProducer) Publish(ctx context.Context, msg *Message) error {
	ctx, span := p.tracer.Start(ctx, "broker.Publish", trace.WithAttributes(
		attribute.String("broker.topic", p.topic),
		attribute.String("broker.message_id", msg.ID),
	))
	defer span.End()

	logger.L().DebugContext(ctx, "publishing message", "topic", p.topic, "message_id", msg.ID)

	err := p.next.Publish(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to publish message", "topic", p.topic, "error", err)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	return nil
}

func (p *InstrumentedProducer) PublishBatch(ctx context.Context, msgs []*Message) error {
	ctx, span := p.tracer.Start(ctx, "broker.PublishBatch", trace.WithAttributes(
		attribute.String("broker.topic", p.topic),
		attribute.Int("broker.batch_size", len(msgs)),
	))
	defer span.End()

	err := p.next.PublishBatch(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to publish batch", "topic", p.topic, "error", err)
		return err
	}

	span.SetStatus(codes.Ok, "batch published")
	return nil
}

func (p *InstrumentedProducer) Close() error {
	return p.next.Close()
}

// InstrumentedConsumer wraps a Consumer with logging and tracing.
type InstrumentedConsumer struct {
	next   Consumer
	topic  string
	group  string
	tracer trace.Tracer
}

func (c *InstrumentedConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	logger.L().InfoContext(ctx, "starting consumer", "topic", c.topic, "group", c.group)

	instrumentedHandler := func(ctx context.Context, msg *Message) error {
		ctx, span := c.tracer.Start(ctx, "broker.HandleMessage", trace.WithAttributes(
			attribute.String("broker.topic", c.topic),
			attribute.String("broker.group", c.group),
			attribute.String("broker.message_id", msg.ID),
		))
		defer span.End()

		err := handler(ctx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.L().ErrorContext(ctx, "failed to process message", "topic", c.topic, "message_id", msg.ID, "error", err)
			return err
		}

		span.SetStatus(codes.Ok, "message processed")
		return nil
	}

	return c.next.Consume(ctx, instrumentedHandler)
}

func (c *InstrumentedConsumer) Close() error {
	return c.next.Close()
}
