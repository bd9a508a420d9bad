// Command reactor runs a standalone reactor process: it loads a cell
// topology from a YAML config file, wires a broker and an optional
// OpenTelemetry exporter, and drives the reactor loop until signaled to
// stop.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venicegeo/fusion/pkg/broker"
	kafkabroker "github.com/venicegeo/fusion/pkg/broker/adapters/kafka"
	memorybroker "github.com/venicegeo/fusion/pkg/broker/adapters/memory"
	"github.com/venicegeo/fusion/pkg/config"
	"github.com/venicegeo/fusion/pkg/dag"
	eventsmemory "github.com/venicegeo/fusion/pkg/events/adapters/memory"
	"github.com/venicegeo/fusion/pkg/logger"
	"github.com/venicegeo/fusion/pkg/reactor"
	"github.com/venicegeo/fusion/pkg/rendezvous"
	"github.com/venicegeo/fusion/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// envConfig is the process-level configuration sourced from .env/environment
// variables via pkg/config. It governs how the reactor wires its broker and
// observability stack; the message topology itself comes from the cell file
// (see cellConfig below), since that varies per deployment in a way env vars
// don't fit well.
type envConfig struct {
	LogLevel  string `env:"REACTOR_LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"REACTOR_LOG_FORMAT" env-default:"JSON"`

	BrokerDriver       string `env:"REACTOR_BROKER_DRIVER" env-default:"memory" validate:"oneof=memory kafka"`
	BrokerResilient    bool   `env:"REACTOR_BROKER_RESILIENT" env-default:"false"`
	BrokerInstrumented bool   `env:"REACTOR_BROKER_INSTRUMENTED" env-default:"false"`

	TelemetryServiceName string `env:"REACTOR_TELEMETRY_SERVICE" env-default:"reactor"`
	TelemetryEndpoint    string `env:"REACTOR_TELEMETRY_ENDPOINT" env-default:"localhost:4317"`

	Memory     memorybroker.Config
	Kafka      kafkabroker.Config
	Resilience broker.ResilientBrokerConfig
}

// cellConfig is the declarative topology for one reactor process: the
// primary topic it consumes and the fixed topic each named dependency
// step in a message's deps-fn resolves to. Real deps-fn logic is
// application-specific; this file only fixes the topic names a cell is
// willing to call.
type cellConfig struct {
	PrimaryTopic string `yaml:"primary_topic"`
	Steps        []struct {
		Name  string   `yaml:"name"`
		Topic string   `yaml:"topic"`
		Deps  []string `yaml:"deps"`
	} `yaml:"steps"`
	RendezvousTimeout time.Duration `yaml:"rendezvous_timeout"`
	MaxInFlight       int64         `yaml:"max_in_flight"`
}

func loadCellConfig(path string) (*cellConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg cellConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// buildBroker constructs the broker.Broker+TopicAdmin pair for the
// configured driver and wraps it with the resilient and/or instrumented
// decorators the operator has opted into.
func buildBroker(envCfg *envConfig) (broker.Broker, broker.TopicAdmin, error) {
	var b broker.Broker
	switch envCfg.BrokerDriver {
	case "kafka":
		kb, err := kafkabroker.New(envCfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		b = kb
	default:
		b = memorybroker.New(envCfg.Memory)
	}

	if envCfg.BrokerResilient {
		b = broker.NewResilientBroker(b, envCfg.Resilience)
	}
	if envCfg.BrokerInstrumented {
		b = broker.NewInstrumentedBroker(b)
	}

	admin, _ := b.(broker.TopicAdmin)
	return b, admin, nil
}

func main() {
	cellPath := flag.String("cell", "cell.yaml", "path to the cell topology config file")
	flag.Parse()

	var envCfg envConfig
	if err := config.Load(&envCfg); err != nil {
		logger.Init(logger.Config{Level: "INFO", Format: "JSON"})
		logger.L().Error("failed to load environment config", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: envCfg.LogLevel, Format: envCfg.LogFormat})

	shutdownTracing, err := telemetry.Init(telemetry.Config{
		ServiceName: envCfg.TelemetryServiceName,
		Endpoint:    envCfg.TelemetryEndpoint,
	})
	if err != nil {
		logger.L().Warn("tracing disabled, continuing without it", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	cell, err := loadCellConfig(*cellPath)
	if err != nil {
		logger.L().Error("failed to load cell config", "path", *cellPath, "error", err)
		os.Exit(1)
	}

	b, admin, err := buildBroker(&envCfg)
	if err != nil {
		logger.L().Error("failed to construct broker", "driver", envCfg.BrokerDriver, "error", err)
		os.Exit(1)
	}
	bus := eventsmemory.New()

	primaryConsumer, err := b.Consumer(cell.PrimaryTopic, "reactor")
	if err != nil {
		logger.L().Error("failed to create primary consumer", "error", err)
		os.Exit(1)
	}
	primaryProducer, err := b.Producer(cell.PrimaryTopic)
	if err != nil {
		logger.L().Error("failed to create primary producer", "error", err)
		os.Exit(1)
	}

	depsFn, procFn := buildTopology(cell)

	rzCfg := rendezvous.DefaultConfig()
	if cell.RendezvousTimeout > 0 {
		rzCfg.Timeout = cell.RendezvousTimeout
	}

	r := reactor.New(depsFn, procFn, reactor.Config{
		MaxInFlight:      cell.MaxInFlight,
		RendezvousConfig: rzCfg,
		Combinators:      nil,
	}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.L().Info("shutdown signal received, stopping reactor")
		if err := r.Stop(context.Background()); err != nil {
			logger.L().Error("error stopping reactor", "error", err)
		}
		cancel()
	}()

	logger.L().Info("reactor starting", "primary_topic", cell.PrimaryTopic, "broker_driver", envCfg.BrokerDriver)
	if err := r.Start(ctx, &reactor.Elements{
		Consumer: primaryConsumer,
		Producer: primaryProducer,
		Broker:   b,
		Admin:    admin,
	}); err != nil {
		logger.L().Error("reactor stopped with error", "error", err)
		os.Exit(1)
	}
}

// buildTopology wires the cell's declared steps into a DepsFunc/ProcFunc
// pair: every incoming message runs the same fixed dependency chain
// described in the config file, and proc-fn returns the last step's
// result unchanged. Domain-specific cells replace this with logic that
// inspects the message to pick a per-message dependency map.
func buildTopology(cell *cellConfig) (reactor.DepsFunc, reactor.ProcFunc) {
	depsFn := func(msg *broker.Message) *dag.DependencyMap {
		d := dag.NewDependencyMap()
		for _, step := range cell.Steps {
			d.Set(step.Name, dag.SubtaskSpec{Topic: step.Topic, Deps: step.Deps})
		}
		return d
	}

	procFn := func(msg *broker.Message, results *dag.ResultMap) (any, error) {
		names := results.Names()
		if len(names) == 0 {
			return nil, nil
		}
		last, _ := results.Get(names[len(names)-1])
		return last.Result, nil
	}

	return depsFn, procFn
}
