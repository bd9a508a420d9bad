package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/venicegeo/fusion/pkg/telemetry"
	"github.com/venicegeo/fusion/pkg/test"
)

type TelemetryTestSuite struct {
	test.Suite
}

func (s *TelemetryTestSuite) TestInit() {
	cfg := telemetry.Config{
		ServiceName: "reactor-test",
		Endpoint:    "localhost:4317", // no listener needed for setup
	}

	shutdown, err := telemetry.Init(cfg)
	s.NoError(err)
	s.NotNil(shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	// Shutdown may error due to connection refused in a test environment,
	// but it must return rather than hang or panic.
	_ = shutdown(ctx)
}

func TestTelemetrySuite(t *testing.T) {
	test.Run(t, new(TelemetryTestSuite))
}
