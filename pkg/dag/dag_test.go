package dag_test

import (
	"context"
	"sync"
	"testing"

	"github.com/venicegeo/fusion/pkg/dag"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingRendezvous returns a RendezvousFunc that replies with values
// keyed by topic and records every call it receives, in call order.
func recordingRendezvous(replies map[string]any) (dag.RendezvousFunc, *[]struct {
	Topic string
	Args  []any
}) {
	var mu sync.Mutex
	calls := &[]struct {
		Topic string
		Args  []any
	}{}

	fn := func(ctx context.Context, topic string, args []any) (any, error) {
		mu.Lock()
		*calls = append(*calls, struct {
			Topic string
			Args  []any
		}{Topic: topic, Args: args})
		mu.Unlock()
		return replies[topic], nil
	}
	return fn, calls
}

func TestEvaluateEmptyMap(t *testing.T) {
	fn, calls := recordingRendezvous(nil)
	ev := dag.NewEvaluator(fn, nil)

	results, err := ev.Evaluate(context.Background(), dag.NewDependencyMap())
	require.NoError(t, err)
	assert.Equal(t, 0, results.Len())
	assert.Empty(t, *calls)
}

func TestEvaluateNoDepsPassesArgsUnchanged(t *testing.T) {
	fn, calls := recordingRendezvous(map[string]any{"add": float64(6)})
	ev := dag.NewEvaluator(fn, nil)

	d := dag.NewDependencyMap()
	d.Set("a", dag.SubtaskSpec{Topic: "add", Args: []any{float64(1), float64(2), float64(3)}})

	results, err := ev.Evaluate(context.Background(), d)
	require.NoError(t, err)

	entry, ok := results.Get("a")
	require.True(t, ok)
	assert.True(t, entry.Resolved)
	assert.Equal(t, float64(6), entry.Result)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, (*calls)[0].Args)
}

func TestEvaluateChainWithCustomCombinator(t *testing.T) {
	fn, calls := recordingRendezvous(map[string]any{"add": float64(6), "sub": float64(4)})
	ev := dag.NewEvaluator(fn, nil)

	d := dag.NewDependencyMap()
	d.Set("one", dag.SubtaskSpec{Topic: "add", Args: []any{float64(1), float64(2), float64(3)}})
	d.Set("two", dag.SubtaskSpec{Topic: "sub", Args: []any{float64(2)}, Deps: []string{"one"}, ArgInFn: dag.CombinatorPrepend})

	results, err := ev.Evaluate(context.Background(), d)
	require.NoError(t, err)

	two, ok := results.Get("two")
	require.True(t, ok)
	assert.Equal(t, float64(4), two.Result)

	require.Len(t, *calls, 2)
	assert.Equal(t, "add", (*calls)[0].Topic)
	assert.Equal(t, "sub", (*calls)[1].Topic)
	assert.Equal(t, []any{float64(6), float64(2)}, (*calls)[1].Args)
}

func TestEvaluateRejectsCycles(t *testing.T) {
	fn, calls := recordingRendezvous(nil)
	ev := dag.NewEvaluator(fn, nil)

	d := dag.NewDependencyMap()
	d.Set("a", dag.SubtaskSpec{Topic: "x", Deps: []string{"b"}})
	d.Set("b", dag.SubtaskSpec{Topic: "y", Deps: []string{"a"}})

	_, err := ev.Evaluate(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, dag.CodeCyclicDependencies, errors.CodeOf(err))
	assert.Empty(t, *calls)
}

func TestEvaluateVisitsEveryNodeExactlyOnceInDependencyOrder(t *testing.T) {
	fn, calls := recordingRendezvous(map[string]any{"t1": "r1", "t2": "r2", "t3": "r3"})
	ev := dag.NewEvaluator(fn, nil)

	d := dag.NewDependencyMap()
	d.Set("c", dag.SubtaskSpec{Topic: "t3", Deps: []string{"a", "b"}})
	d.Set("a", dag.SubtaskSpec{Topic: "t1"})
	d.Set("b", dag.SubtaskSpec{Topic: "t2"})

	results, err := ev.Evaluate(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 3, results.Len())

	require.Len(t, *calls, 3)
	order := []string{(*calls)[0].Topic, (*calls)[1].Topic, (*calls)[2].Topic}
	assert.Equal(t, []string{"t1", "t2", "t3"}, order)
}

func TestEvaluateAbortsOnSubtaskFailure(t *testing.T) {
	boom := errors.Internal("rendezvous failed", nil)
	fn := func(ctx context.Context, topic string, args []any) (any, error) {
		if topic == "fails" {
			return nil, boom
		}
		return "ok", nil
	}
	ev := dag.NewEvaluator(fn, nil)

	d := dag.NewDependencyMap()
	d.Set("a", dag.SubtaskSpec{Topic: "fails"})
	d.Set("b", dag.SubtaskSpec{Topic: "never-reached", Deps: []string{"a"}})

	_, err := ev.Evaluate(context.Background(), d)
	require.ErrorIs(t, err, boom)
}
