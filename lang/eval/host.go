// Package eval implements define substitution and the expression
// evaluator. It has no dependency on lang/assembler; instead it depends on
// the small Host interface below, satisfied by *lang/assembler.Assembler,
// so that the expression grammar and the symbol tables it reads from can
// evolve independently.
package eval

// Mode selects how unresolved identifiers are handled.
type Mode uint8

const (
	// Default is used outside of control-flow predicates: an unresolved
	// constant evaluates to 0 and the lookup is reported as "unresolved" via
	// Host.NoteUnresolved, driving the Query phase's forward-reference
	// fix-point. Division by zero also evaluates to 0.
	Default Mode = iota
	// Strict is used for if/while predicates: unresolved names and division
	// by zero are both errors.
	Strict
)

// Host is everything the evaluator needs from the assembler's symbol
// tables and process state.
type Host interface {
	// FindVariable resolves an active variable by name (frame-scoped).
	FindVariable(name string) (int64, bool)
	// FindConstant resolves a global constant by name (scope-walked).
	FindConstant(name string) (int64, bool)
	// FindDefine resolves a textual define by name (frame-scoped).
	FindDefine(name string) (string, bool)
	// SetVariable assigns a variable in the nearest scope (":=" operator).
	SetVariable(name string, value int64)
	// ResolveAnonLabel resolves an anonymous label reference such as "-",
	// "--", "+", "+++": back is true for "-" tokens, count is the number of
	// repeated characters.
	ResolveAnonLabel(back bool, count int) (int64, bool)
	// PC, Origin and Base back the pc()/origin()/base() builtins.
	PC() int64
	Origin() int64
	Base() int64
	// CallFunction dispatches a user/architecture-table function by name,
	// e.g. used by encoder formulas. ok is false if name is not a known
	// function, distinct from an evaluation error.
	CallFunction(name string, args []int64) (value int64, ok bool, err error)
	// NoteUnresolved is invoked whenever Default-mode evaluation hits an
	// unresolved constant, so the caller can mark the Query pass dirty.
	NoteUnresolved(name string)
	// EnterDefine and ExitDefine bracket evaluating a bare identifier that
	// resolves to a define's value (see Ident.Eval): EnterDefine reports
	// false once MaxDefineDepth nested resolutions are already in flight,
	// so a define that (directly or indirectly) references itself fails
	// instead of recursing forever. Depth is host state, not package
	// state, so concurrent Assembler instances never share a counter.
	EnterDefine() bool
	ExitDefine()
}

// MaxDefineDepth is the recursion bound a Host should enforce in
// EnterDefine, matching Substitute's own depth cap.
const MaxDefineDepth = 256
