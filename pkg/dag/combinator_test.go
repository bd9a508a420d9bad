package dag_test

import (
	"context"
	"testing"

	"github.com/venicegeo/fusion/pkg/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCombinator(t *testing.T) {
	got := dag.Append([]any{float64(1), float64(2)}, float64(3))
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)
}

func TestPrependCombinator(t *testing.T) {
	got := dag.Prepend([]any{float64(2)}, float64(6))
	assert.Equal(t, []any{float64(6), float64(2)}, got)
}

func TestMergeCombinatorFlattensSequences(t *testing.T) {
	got := dag.Merge([]any{float64(1)}, []any{float64(2), float64(3)})
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)
}

func TestMergeCombinatorFallsBackToAppendForScalars(t *testing.T) {
	got := dag.Merge([]any{float64(1)}, float64(2))
	assert.Equal(t, []any{float64(1), float64(2)}, got)
}

func TestUnknownCombinatorNameFallsBackToAppend(t *testing.T) {
	fn, calls := recordingRendezvous(map[string]any{"t1": float64(5), "t2": float64(9)})
	ev := dag.NewEvaluator(fn, dag.DefaultCombinatorRegistry())

	d := dag.NewDependencyMap()
	d.Set("a", dag.SubtaskSpec{Topic: "t1"})
	d.Set("b", dag.SubtaskSpec{Topic: "t2", Args: []any{float64(1)}, Deps: []string{"a"}, ArgInFn: "does-not-exist"})

	results, err := ev.Evaluate(context.Background(), d)
	require.NoError(t, err)

	b, _ := results.Get("b")
	assert.Equal(t, float64(9), b.Result)
	require.Len(t, *calls, 2)
	assert.Equal(t, []any{float64(1), float64(5)}, (*calls)[1].Args)
}

func TestCustomCombinatorRegistration(t *testing.T) {
	registry := dag.DefaultCombinatorRegistry()
	registry.Register("double-append", func(args []any, depResult any) []any {
		return append(append([]any(nil), args...), depResult, depResult)
	})

	replies := map[string]any{"t1": float64(5), "t2": "ok"}

	d := dag.NewDependencyMap()
	d.Set("a", dag.SubtaskSpec{Topic: "t1"})
	d.Set("b", dag.SubtaskSpec{Topic: "t2", Deps: []string{"a"}, ArgInFn: "double-append"})

	var captured []any
	fn2 := func(ctx context.Context, topic string, args []any) (any, error) {
		if topic == "t2" {
			captured = args
		}
		return replies[topic], nil
	}
	ev2 := dag.NewEvaluator(fn2, registry)
	_, err := ev2.Evaluate(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, []any{float64(5), float64(5)}, captured)
}
