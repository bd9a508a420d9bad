// Package dag evaluates a per-message dependency graph of subtasks: it
// computes a deterministic topological order, dispatches each subtask via
// an injected rendezvous function, and threads each subtask's result into
// its dependents' argument lists via a per-edge combinator.
package dag

import (
	"context"

	"github.com/venicegeo/fusion/pkg/errors"
)

// CodeCyclicDependencies is returned when the dependency map is not acyclic.
const CodeCyclicDependencies = "CYCLIC_DEPENDENCIES"

// SubtaskSpec is one node in a DependencyMap: the topic to invoke, the
// base argument list, the upstream nodes it depends on, and the
// combinator used to fold each dependency's result into Args.
type SubtaskSpec struct {
	Topic string
	Args  []any

	// Deps lists the names of subtasks that must complete before this one
	// is dispatched. Order matters: combinators fold results in this
	// declared order, not completion order.
	Deps []string

	// ArgInFn names a combinator registered in a CombinatorRegistry. An
	// empty string means the default "append" combinator.
	ArgInFn string
}

// DependencyMap is an order-preserving map from node name to SubtaskSpec.
// Go's built-in map has no iteration order, but the evaluator's
// topological tie-break is declaration order, so insertion order must be
// tracked explicitly.
type DependencyMap struct {
	order []string
	specs map[string]SubtaskSpec
}

// NewDependencyMap returns an empty DependencyMap.
func NewDependencyMap() *DependencyMap {
	return &DependencyMap{specs: make(map[string]SubtaskSpec)}
}

// Set adds or replaces the spec for name, recording it at the end of the
// declaration order if it is new.
func (d *DependencyMap) Set(name string, spec SubtaskSpec) {
	if _, exists := d.specs[name]; !exists {
		d.order = append(d.order, name)
	}
	d.specs[name] = spec
}

// Get returns the spec for name and whether it exists.
func (d *DependencyMap) Get(name string) (SubtaskSpec, bool) {
	spec, ok := d.specs[name]
	return spec, ok
}

// Names returns node names in declaration order.
func (d *DependencyMap) Names() []string {
	return append([]string(nil), d.order...)
}

// Len returns the number of nodes.
func (d *DependencyMap) Len() int {
	return len(d.order)
}

// ResultEntry is one entry of a ResultMap: the original spec plus the
// resolved value once the subtask's rendezvous call completes.
type ResultEntry struct {
	Spec     SubtaskSpec
	Result   any
	Resolved bool
}

// ResultMap holds one ResultEntry per node in the DependencyMap it was
// built from, keyed the same way.
type ResultMap struct {
	order   []string
	entries map[string]*ResultEntry
}

// Get returns the result entry for name and whether it exists.
func (r *ResultMap) Get(name string) (*ResultEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns node names in the same declaration order as the source
// DependencyMap.
func (r *ResultMap) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of entries.
func (r *ResultMap) Len() int {
	return len(r.order)
}

func newResultMap(d *DependencyMap) *ResultMap {
	r := &ResultMap{
		order:   d.Names(),
		entries: make(map[string]*ResultEntry, d.Len()),
	}
	for _, name := range r.order {
		spec, _ := d.Get(name)
		r.entries[name] = &ResultEntry{Spec: spec}
	}
	return r
}

// RendezvousFunc dispatches a single subtask call and returns its decoded
// reply. It is injected so the evaluator has no direct broker dependency.
type RendezvousFunc func(ctx context.Context, topic string, args []any) (any, error)

// Evaluator computes a dependency map's topological order and drives
// sequential subtask dispatch, folding each dependency's result into its
// dependents' argument list via the registered combinators.
type Evaluator struct {
	rendezvous  RendezvousFunc
	combinators *CombinatorRegistry
}

// NewEvaluator builds an Evaluator that dispatches subtasks via rendezvous
// and folds dependency results using combinators. A nil registry falls
// back to DefaultCombinatorRegistry().
func NewEvaluator(rendezvous RendezvousFunc, combinators *CombinatorRegistry) *Evaluator {
	if combinators == nil {
		combinators = DefaultCombinatorRegistry()
	}
	return &Evaluator{rendezvous: rendezvous, combinators: combinators}
}

// Evaluate computes a topological order for d, validates acyclicity, and
// dispatches each node's subtask in order, folding dependency results into
// each node's argument list before dispatch. A subtask failure aborts the
// whole evaluation immediately; already-completed subtasks are not rolled
// back.
func (e *Evaluator) Evaluate(ctx context.Context, d *DependencyMap) (*ResultMap, error) {
	order, err := topologicalOrder(d)
	if err != nil {
		return nil, err
	}

	results := newResultMap(d)

	for _, name := range order {
		entry := results.entries[name]
		spec := entry.Spec

		args := append([]any(nil), spec.Args...)
		combine := e.combinators.lookup(spec.ArgInFn)
		for _, dep := range spec.Deps {
			depEntry := results.entries[dep]
			args = combine(args, depEntry.Result)
		}

		value, err := e.rendezvous(ctx, spec.Topic, args)
		if err != nil {
			return nil, err
		}

		entry.Result = value
		entry.Resolved = true
	}

	return results, nil
}

// topologicalOrder computes a deterministic topological order over d's
// nodes using Kahn's algorithm. Ties between independent ready nodes are
// broken by declaration order: the lowest-index ready node in d is always
// picked next.
func topologicalOrder(d *DependencyMap) ([]string, error) {
	names := d.Names()
	indexOf := make(map[string]int, len(names))
	for i, name := range names {
		indexOf[name] = i
	}

	inDegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))

	for _, name := range names {
		spec, _ := d.Get(name)
		inDegree[name] = len(spec.Deps)
		for _, dep := range spec.Deps {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(names))
	for _, name := range names {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(ready) > 0 {
		// Pick the lowest declaration-order node among the currently ready set.
		bestIdx := 0
		for i := 1; i < len(ready); i++ {
			if indexOf[ready[i]] < indexOf[ready[bestIdx]] {
				bestIdx = i
			}
		}
		node := ready[bestIdx]
		ready = append(ready[:bestIdx], ready[bestIdx+1:]...)
		order = append(order, node)

		for _, dependent := range dependents[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(names) {
		return nil, errors.New(CodeCyclicDependencies, "dependency map contains a cycle", nil)
	}

	return order, nil
}
