// Package flows defines the staged pipeline engine and the three deal
// flows built on it: qualification, proposal, and monitoring. Each flow is
// a fixed ordered list of stages over a shared state bag; stages degrade
// gracefully on bad input instead of aborting the run.
package flows

// State is the mutable context threaded through one run's stages. Keys are
// the constants in keys.go; values are domain types from internal/model or
// plain scalars. Exactly one run owns a State for its lifetime, so access
// needs no locking. Stages add keys they own and never destructively
// overwrite someone else's, with two exceptions: the current-stage marker
// and the error accumulator, which Merge handles specially.
type State map[string]any

// Merge applies a stage's partial update. The error accumulator is
// append-only; every other key is set directly.
func (s State) Merge(update map[string]any) {
	for k, v := range update {
		if k == KeyErrors {
			if notes, ok := v.([]string); ok {
				s[KeyErrors] = append(s.Errors(), notes...)
			}
			continue
		}
		s[k] = v
	}
}

// Errors returns the accumulated non-fatal issue notes, oldest first.
func (s State) Errors() []string {
	notes, _ := s[KeyErrors].([]string)
	return notes
}

// Get reads a typed value from the bag, returning the zero value when the
// key is absent or holds a different type. Degraded stages lean on this:
// a missing upstream key reads as empty rather than panicking.
func Get[T any](s State, key string) T {
	if v, ok := s[key].(T); ok {
		return v
	}
	var zero T
	return zero
}
