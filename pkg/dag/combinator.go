package dag

// Combinator folds one dependency's resolved value into the
// args-so-far list for a dependent subtask.
type Combinator func(args []any, depResult any) []any

// Names of the built-in combinators.
const (
	CombinatorAppend  = "append"
	CombinatorPrepend = "prepend"
	CombinatorMerge   = "merge"
)

// Append adds depResult to the end of args. This is the default combinator.
func Append(args []any, depResult any) []any {
	return append(append([]any(nil), args...), depResult)
}

// Prepend adds depResult to the front of args.
func Prepend(args []any, depResult any) []any {
	return append([]any{depResult}, args...)
}

// Merge concatenates depResult into args when depResult is itself a
// sequence, otherwise it behaves like Append.
func Merge(args []any, depResult any) []any {
	if seq, ok := depResult.([]any); ok {
		return append(append([]any(nil), args...), seq...)
	}
	return Append(args, depResult)
}

// CombinatorRegistry holds named combinators, keyed by the string used in
// SubtaskSpec.ArgInFn. User code registers custom combinators at reactor
// construction time.
type CombinatorRegistry struct {
	combinators map[string]Combinator
}

// DefaultCombinatorRegistry returns a registry seeded with append, prepend,
// and merge.
func DefaultCombinatorRegistry() *CombinatorRegistry {
	r := &CombinatorRegistry{combinators: make(map[string]Combinator)}
	r.Register(CombinatorAppend, Append)
	r.Register(CombinatorPrepend, Prepend)
	r.Register(CombinatorMerge, Merge)
	return r
}

// Register adds or replaces a named combinator.
func (r *CombinatorRegistry) Register(name string, c Combinator) {
	r.combinators[name] = c
}

// lookup returns the combinator named by name, falling back to Append when
// name is empty or unregistered.
func (r *CombinatorRegistry) lookup(name string) Combinator {
	if name == "" {
		return Append
	}
	if c, ok := r.combinators[name]; ok {
		return c
	}
	return Append
}
