package memory_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/venicegeo/fusion/pkg/events"
	"github.com/venicegeo/fusion/pkg/events/adapters/memory"
	"github.com/venicegeo/fusion/pkg/test"
)

type EventBusSuite struct {
	test.Suite
	bus *memory.Bus
}

func (s *EventBusSuite) SetupTest() {
	s.Suite.SetupTest()
	s.bus = memory.New()
}

func (s *EventBusSuite) TestPublishInvokesAllSubscribers() {
	var countA, countB int32
	s.Require().NoError(s.bus.Subscribe(s.Ctx, "reactor.started", func(ctx context.Context, e events.Event) error {
		atomic.AddInt32(&countA, 1)
		return nil
	}))
	s.Require().NoError(s.bus.Subscribe(s.Ctx, "reactor.started", func(ctx context.Context, e events.Event) error {
		atomic.AddInt32(&countB, 1)
		return nil
	}))

	s.Require().NoError(s.bus.Publish(s.Ctx, "reactor.started", events.Event{Type: "reactor.started"}))

	s.EqualValues(1, countA)
	s.EqualValues(1, countB)
}

func (s *EventBusSuite) TestPublishSurfacesHandlerError() {
	boom := errors.New("boom")
	s.Require().NoError(s.bus.Subscribe(s.Ctx, "reactor.failed", func(ctx context.Context, e events.Event) error {
		return boom
	}))

	err := s.bus.Publish(s.Ctx, "reactor.failed", events.Event{Type: "reactor.failed"})
	s.ErrorIs(err, boom)
}

func (s *EventBusSuite) TestPublishAfterCloseIsNoop() {
	var called bool
	s.Require().NoError(s.bus.Subscribe(s.Ctx, "x", func(ctx context.Context, e events.Event) error {
		called = true
		return nil
	}))
	s.Require().NoError(s.bus.Close())
	s.Require().NoError(s.bus.Publish(s.Ctx, "x", events.Event{Type: "x"}))
	s.False(called)
}

func TestEventBusSuite(t *testing.T) {
	test.Run(t, new(EventBusSuite))
}
