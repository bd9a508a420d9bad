package broker

import (
	"context"
	"time"

	"github.com/venicegeo/fusion/pkg/resilience"
)

// ResilientBrokerConfig configures the resilient broker wrapper.
type ResilientBrokerConfig struct {
	// Circuit breaker settings
	CircuitBreakerEnabled   bool          `env:"BROKER_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"BROKER_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"BROKER_CB_TIMEOUT" env-default:"30s"`

	// Retry settings
	RetryEnabled     bool          `env:"BROKER_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"BROKER_RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"BROKER_RETRY_BACKOFF" env-default:"100ms"`
}

// ResilientBroker wraps a Broker with circuit breaker and retry support.
// When the wrapped broker also implements TopicAdmin, the returned value
// implements TopicAdmin too, so it can be used transparently by the
// rendezvous package.
type ResilientBroker struct {
	broker   Broker
	admin    TopicAdmin
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewResilientBroker wraps a broker with resilience features.
func NewResilientBroker(b Broker, cfg ResilientBrokerConfig) *ResilientBroker {
	rb := &ResilientBroker{
		broker: b,
	}
	if admin, ok := b.(TopicAdmin); ok {
		rb.admin = admin
	}

	if cfg.CircuitBreakerEnabled {
		rb.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "broker",
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		rb.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
		}
	}

	return rb
}

func (rb *ResilientBroker) Producer(topic string) (Producer, error) {
	var producer Producer
	err := rb.execute(context.Background(), func(ctx context.Context) error {
		var err error
		producer, err = rb.broker.Producer(topic)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &resilientProducer{
		producer: producer,
		broker:   rb,
	}, nil
}

func (rb *ResilientBroker) Consumer(topic string, group string) (Consumer, error) {
	return rb.broker.Consumer(topic, group)
}

func (rb *ResilientBroker) Close() error {
	return rb.broker.Close()
}

func (rb *ResilientBroker) Healthy(ctx context.Context) bool {
	return rb.broker.Healthy(ctx)
}

func (rb *ResilientBroker) CreateTopic(ctx context.Context, topic string) error {
	if rb.admin == nil {
		return ErrTopicCreateFailed(topic, nil)
	}
	return rb.execute(ctx, func(ctx context.Context) error {
		return rb.admin.CreateTopic(ctx, topic)
	})
}

func (rb *ResilientBroker) DeleteTopic(ctx context.Context, topic string) error {
	if rb.admin == nil {
		return ErrTopicDeleteFailed(topic, nil)
	}
	return rb.execute(ctx, func(ctx context.Context) error {
		return rb.admin.DeleteTopic(ctx, topic)
	})
}

func (rb *ResilientBroker) TopicExists(ctx context.Context, topic string) (bool, error) {
	if rb.admin == nil {
		return false, ErrTopicNotFound(topic, nil)
	}
	var exists bool
	err := rb.execute(ctx, func(ctx context.Context) error {
		var err error
		exists, err = rb.admin.TopicExists(ctx, topic)
		return err
	})
	return exists, err
}

func (rb *ResilientBroker) execute(ctx context.Context, fn resilience.Executor) error {
	operation := fn

	if rb.cb != nil {
		cbFn := operation
		operation = func(ctx context.Context) error {
			return rb.cb.Execute(ctx, cbFn)
		}
	}

	if rb.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, rb.retryCfg, operation)
	}

	return operation(ctx)
}

// resilientProducer wraps a producer with resilience.
type resilientProducer struct {
	producer Producer
	broker   *ResilientBroker
}

func (rp *resilientProducer) Publish(ctx context.Context, msg *Message) error {
	return rp.broker.execute(ctx, func(ctx context.Context) error {
		return rp.producer.Publish(ctx, msg)
	})
}

func (rp *resilientProducer) PublishBatch(ctx context.Context, msgs []*Message) error {
	return rp.broker.execute(ctx, func(ctx context.Context) error {
		return rp.producer.PublishBatch(ctx, msgs)
	})
}

func (rp *resilientProducer) Close() error {
	return rp.producer.Close()
}
