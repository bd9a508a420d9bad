// Package reactor implements the long-running primary-topic consumer: for
// each received message it runs the user-supplied deps-fn and proc-fn,
// uses the DAG evaluator to resolve subtask dependencies, and dispatches
// the final result to a reply topic, an output channel, or both.
package reactor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/venicegeo/fusion/pkg/broker"
	"github.com/venicegeo/fusion/pkg/codec"
	"github.com/venicegeo/fusion/pkg/concurrency"
	"github.com/venicegeo/fusion/pkg/dag"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/venicegeo/fusion/pkg/events"
	"github.com/venicegeo/fusion/pkg/logger"
	"github.com/venicegeo/fusion/pkg/rendezvous"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Error codes surfaced by the reactor itself (beyond the rendezvous and
// dag package codes, which propagate unchanged).
const (
	CodeProduceFailed = "PRODUCE_FAILED"
	CodeBrokerClosed  = "BROKER_CLOSED"
)

// State is a reactor's lifecycle state.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Lifecycle event types published on the reactor's event bus.
const (
	EventStateChanged  = "reactor.state_changed"
	EventMessageFailed = "reactor.message_failed"
)

// Elements is the reactor's resource bundle: a bound consumer on the
// primary topic, a shared producer, the broker handle (used to create
// ephemeral consumers for each rendezvous call and to administer their
// topics), and an optional output channel for results.
type Elements struct {
	Consumer broker.Consumer
	Producer broker.Producer
	Broker   broker.Broker
	Admin    broker.TopicAdmin
	Output   chan<- any
}

// DepsFunc computes a message's dependency map. A nil or empty result is
// treated as no dependencies.
type DepsFunc func(msg *broker.Message) *dag.DependencyMap

// ProcFunc computes the final result for a message given its resolved
// dependency results.
type ProcFunc func(msg *broker.Message, results *dag.ResultMap) (any, error)

// Config controls reactor construction.
type Config struct {
	// MaxInFlight bounds concurrent in-flight message tasks. Zero means
	// unbounded, matching the spec's default stance.
	MaxInFlight int64

	RendezvousConfig rendezvous.Config
	Combinators      *dag.CombinatorRegistry
}

// Reactor drives per-message DAG evaluation over a primary topic.
type Reactor struct {
	depsFn DepsFunc
	procFn ProcFunc
	cfg    Config
	bus    events.Bus

	state State

	elements *Elements
	sem      *concurrency.Semaphore
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	tracer trace.Tracer
}

// New creates a reactor that will call depsFn and procFn for every message
// pulled from the primary topic once Start is called. bus may be nil, in
// which case lifecycle and failure events are not published.
func New(depsFn DepsFunc, procFn ProcFunc, cfg Config, bus events.Bus) *Reactor {
	var sem *concurrency.Semaphore
	if cfg.MaxInFlight > 0 {
		sem = concurrency.NewSemaphore(cfg.MaxInFlight)
	}
	return &Reactor{
		depsFn: depsFn,
		procFn: procFn,
		cfg:    cfg,
		bus:    bus,
		state:  StateNew,
		sem:    sem,
		tracer: otel.Tracer("pkg/reactor"),
	}
}

// State returns the reactor's current lifecycle state.
func (r *Reactor) State() State {
	return State(atomic.LoadInt32((*int32)(&r.state)))
}

func (r *Reactor) setState(ctx context.Context, s State) {
	from := State(atomic.SwapInt32((*int32)(&r.state), int32(s)))
	if r.bus != nil {
		r.bus.Publish(ctx, EventStateChanged, events.Event{
			Type:    EventStateChanged,
			Source:  "reactor",
			Payload: map[string]any{"from": from.String(), "to": s.String()},
		})
	}
}

// Start binds the reactor to elements and begins consuming the primary
// topic. It blocks until the consumer's Consume call returns (normally
// only after Stop is called, or the broker connection fails).
func (r *Reactor) Start(ctx context.Context, elements *Elements) error {
	r.elements = elements

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.setState(ctx, StateRunning)

	err := elements.Consumer.Consume(runCtx, func(msgCtx context.Context, msg *broker.Message) error {
		r.dispatch(runCtx, msg)
		return nil
	})

	r.wg.Wait()

	if elements.Output != nil {
		close(elements.Output)
	}

	r.setState(ctx, StateStopped)

	if err != nil {
		return errors.New(CodeBrokerClosed, "primary consumer terminated", err)
	}
	return nil
}

// dispatch spawns the per-message task. A slow rendezvous for one message
// never blocks another, per the concurrency model.
func (r *Reactor) dispatch(ctx context.Context, msg *broker.Message) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return
		}
	}

	r.wg.Add(1)
	concurrency.SafeGo(ctx, func() {
		defer r.wg.Done()
		if r.sem != nil {
			defer r.sem.Release(1)
		}
		r.processMessage(ctx, msg)
	})
}

func (r *Reactor) processMessage(ctx context.Context, msg *broker.Message) {
	ctx, span := r.tracer.Start(ctx, "reactor.processMessage", trace.WithAttributes(
		attribute.String("reactor.topic", msg.Topic),
	))
	defer span.End()

	decoded, err := codec.Decode(msg.Payload)
	if err != nil {
		r.handleFailure(ctx, msg, err)
		return
	}

	env, err := codec.EnvelopeFromValue(decoded)
	if err != nil {
		r.handleFailure(ctx, msg, err)
		return
	}

	deps := r.depsFn(msg)
	if deps == nil {
		deps = dag.NewDependencyMap()
	}

	rz := rendezvous.New(r.elements.Producer, r.elements.Admin, func(topic string) (broker.Consumer, error) {
		return r.elements.Broker.Consumer(topic, "")
	}, r.cfg.RendezvousConfig)

	evaluator := dag.NewEvaluator(func(ctx context.Context, topic string, args []any) (any, error) {
		return rz.Call(ctx, rendezvous.RequestSpec{Topic: topic, Args: args})
	}, r.cfg.Combinators)

	results, err := evaluator.Evaluate(ctx, deps)
	if err != nil {
		r.handleFailure(ctx, msg, err)
		return
	}

	final, err := r.procFn(msg, results)
	if err != nil {
		r.handleFailure(ctx, msg, err)
		return
	}

	r.dispatchResult(ctx, msg, env, final)
}

// dispatchResult delivers final to the reply topic (if present) and the
// output channel (if configured), in that order, matching the ordering
// guarantee that return-topic delivery happens before or concurrently
// with the channel send, never after.
func (r *Reactor) dispatchResult(ctx context.Context, msg *broker.Message, env *codec.Envelope, final any) {
	if returnTopic, ok := env.ReturnTopic(); ok && returnTopic != "" {
		payload, err := codec.Encode(final)
		if err != nil {
			r.handleFailure(ctx, msg, err)
			return
		}
		err = r.elements.Producer.Publish(ctx, &broker.Message{
			Topic:   returnTopic,
			Key:     []byte(msg.Topic),
			Payload: payload,
		})
		if err != nil {
			r.handleFailure(ctx, msg, errors.New(CodeProduceFailed, "failed to publish reply", err))
			return
		}
	}

	if r.elements.Output != nil {
		select {
		case r.elements.Output <- final:
		case <-ctx.Done():
		}
	}
}

func (r *Reactor) handleFailure(ctx context.Context, msg *broker.Message, err error) {
	logger.L().ErrorContext(ctx, "message processing failed", "topic", msg.Topic, "error", err)

	if r.bus != nil {
		r.bus.Publish(ctx, EventMessageFailed, events.Event{
			Type:    EventMessageFailed,
			Source:  "reactor",
			Payload: map[string]any{"topic": msg.Topic, "error": err.Error()},
		})
	}

	if r.elements.Output != nil {
		select {
		case r.elements.Output <- err:
		case <-ctx.Done():
		}
	}
}

// Stop transitions the reactor through Stopping and closes its consumer,
// which causes Start's blocking Consume call to return and the message
// stream to terminate. The shared producer is closed once all in-flight
// message tasks have drained.
func (r *Reactor) Stop(ctx context.Context) error {
	r.setState(ctx, StateStopping)

	if r.cancel != nil {
		r.cancel()
	}

	var err error
	if r.elements != nil {
		if cerr := r.elements.Consumer.Close(); cerr != nil {
			err = cerr
		}
	}

	r.wg.Wait()

	if r.elements != nil {
		if perr := r.elements.Producer.Close(); perr != nil && err == nil {
			err = perr
		}
	}

	return err
}
