package bytecode

// Kind distinguishes the implicit top-level script body from an ordinary
// function, so the compiler knows which chunk-completion rules apply
// (e.g. "return" is forbidden at Script kind).
type Kind int

const (
	// KindScript marks the implicit top-level function that wraps an
	// entire compiled program. Unifies the code paths for script body and
	// function body: the top level is just a Function with an empty name,
	// arity 0.
	KindScript Kind = iota
	KindFunction
)

// Function is a named, arity-tagged bundle of a Chunk plus metadata -- the
// unit of compilation. Created at function-declaration start, finalized
// (name fixed, chunk sealed with a trailing Nil+Return) at
// function-declaration end, then embedded as a Constant in the enclosing
// chunk. Immutable once finalized.
type Function struct {
	Name  string // resolved name text; empty for the top-level script
	Arity int
	Chunk *Chunk
	Kind  Kind
}

// NewFunction returns a Function with a fresh, empty Chunk.
func NewFunction(name string, kind Kind) *Function {
	return &Function{
		Name:  name,
		Chunk: NewChunk(),
		Kind:  kind,
	}
}
