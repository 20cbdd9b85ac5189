package types

// =============================================================================
// STREAM FRAGMENTS
// =============================================================================

// Fragment is one event from the backend generate stream. The set of
// implementations is closed: the backend boundary classifies every
// provider part exactly once, and downstream code switches over these
// five types without re-inspecting provider payloads.
type Fragment interface {
	fragment()
}

// TextFragment is visible answer text.
type TextFragment struct {
	Text string
}

// ThoughtFragment is model reasoning, rendered inside the collapsed
// reasoning span rather than the answer body.
type ThoughtFragment struct {
	Text string
}

// ExecutableCodeFragment is code the model chose to run.
type ExecutableCodeFragment struct {
	Language string // lower-cased, e.g. "python"
	Code     string
}

// ExecutionResultFragment is the outcome of an ExecutableCodeFragment.
type ExecutionResultFragment struct {
	OK     bool
	Output string
}

// CitationsFragment carries the retrieval sources known so far. Each
// occurrence replaces the previous set; the last one observed wins.
type CitationsFragment struct {
	Citations []Citation
}

func (TextFragment) fragment()            {}
func (ThoughtFragment) fragment()         {}
func (ExecutableCodeFragment) fragment()  {}
func (ExecutionResultFragment) fragment() {}
func (CitationsFragment) fragment()       {}
