package eval_test

import (
	"testing"

	"github.com/retrobass/bass/lang/eval"
	"github.com/stretchr/testify/require"
)

// fakeHost is a minimal eval.Host backed by plain maps, used to test the
// evaluator in isolation from lang/assembler.
type fakeHost struct {
	variables  map[string]int64
	constants  map[string]int64
	defines    map[string]string
	unresolved []string
	origin, base     int64
	defineDepth int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		variables: map[string]int64{},
		constants: map[string]int64{},
		defines:   map[string]string{},
	}
}

func (h *fakeHost) FindVariable(name string) (int64, bool) { v, ok := h.variables[name]; return v, ok }
func (h *fakeHost) FindConstant(name string) (int64, bool) { v, ok := h.constants[name]; return v, ok }
func (h *fakeHost) FindDefine(name string) (string, bool)  { v, ok := h.defines[name]; return v, ok }
func (h *fakeHost) SetVariable(name string, value int64)   { h.variables[name] = value }
func (h *fakeHost) ResolveAnonLabel(back bool, count int) (int64, bool) { return 0, false }
func (h *fakeHost) PC() int64                                           { return h.origin + h.base }
func (h *fakeHost) Origin() int64                                       { return h.origin }
func (h *fakeHost) Base() int64                                         { return h.base }
func (h *fakeHost) CallFunction(name string, args []int64) (int64, bool, error) {
	if name == "double" && len(args) == 1 {
		return args[0] * 2, true, nil
	}
	return 0, false, nil
}
func (h *fakeHost) NoteUnresolved(name string) { h.unresolved = append(h.unresolved, name) }
func (h *fakeHost) EnterDefine() bool {
	if h.defineDepth >= eval.MaxDefineDepth {
		return false
	}
	h.defineDepth++
	return true
}
func (h *fakeHost) ExitDefine() { h.defineDepth-- }

func TestEvaluateArithmeticPrecedence(t *testing.T) {
	h := newFakeHost()
	v, err := eval.Evaluate("2 + 3 * 4", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(14), v)
}

func TestEvaluateParenthesesOverridePrecedence(t *testing.T) {
	h := newFakeHost()
	v, err := eval.Evaluate("(2 + 3) * 4", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(20), v)
}

func TestEvaluateBareIdentifierFallsBackToDefine(t *testing.T) {
	h := newFakeHost()
	h.defines["x"] = "10"
	v, err := eval.Evaluate("x + 1", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(11), v)
}

func TestEvaluateSelfReferentialDefineErrorsInsteadOfLoopingForever(t *testing.T) {
	h := newFakeHost()
	h.defines["x"] = "x + 1"
	_, err := eval.Evaluate("x", h, eval.Default)
	require.Error(t, err)
}

func TestDefineRecursionDepthIsPerHostNotShared(t *testing.T) {
	// Two hosts evaluating self-referential defines concurrently must not
	// share a recursion counter: each should independently hit its own
	// depth limit and error out, rather than one host's in-flight count
	// letting the other either trip early or never trip at all.
	a := newFakeHost()
	a.defines["x"] = "x + 1"
	b := newFakeHost()
	b.defines["y"] = "y + 1"

	_, errA := eval.Evaluate("x", a, eval.Default)
	_, errB := eval.Evaluate("y", b, eval.Default)
	require.Error(t, errA)
	require.Error(t, errB)
	require.Equal(t, 0, a.defineDepth)
	require.Equal(t, 0, b.defineDepth)
}

func TestEvaluateUnresolvedConstantIsZeroInDefaultMode(t *testing.T) {
	h := newFakeHost()
	v, err := eval.Evaluate("missing + 1", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
	require.Contains(t, h.unresolved, "missing")
}

func TestEvaluateUnresolvedConstantIsErrorInStrictMode(t *testing.T) {
	h := newFakeHost()
	_, err := eval.Evaluate("missing + 1", h, eval.Strict)
	require.Error(t, err)
}

func TestEvaluateCallFunction(t *testing.T) {
	h := newFakeHost()
	v, err := eval.Evaluate("double(21)", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
}

func TestEvaluateDefinedBuiltin(t *testing.T) {
	h := newFakeHost()
	h.defines["FEATURE"] = "1"
	v, err := eval.Evaluate("defined(FEATURE)", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	v, err = eval.Evaluate("defined(MISSING)", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(0), v)
}

func TestEvaluateCharacterLiteralEscapes(t *testing.T) {
	h := newFakeHost()
	v, err := eval.Evaluate(`'\n'`, h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64('\n'), v)
}

func TestEvaluateNumericBases(t *testing.T) {
	h := newFakeHost()
	for expr, want := range map[string]int64{
		"$ff":   255,
		"0xff":  255,
		"%1010": 10,
		"0b1010": 10,
		"0o17":  15,
		"17":    17,
	} {
		v, err := eval.Evaluate(expr, h, eval.Default)
		require.NoErrorf(t, err, "expr %q", expr)
		require.Equalf(t, want, v, "expr %q", expr)
	}
}

func TestSubstituteConfluence(t *testing.T) {
	h := newFakeHost()
	h.defines["A"] = "1"
	h.defines["B"] = "2"
	got, err := eval.Substitute("{A}+{B}", h)
	require.NoError(t, err)
	require.Equal(t, "1+2", got)
}

func TestSubstituteDefinedKeyword(t *testing.T) {
	h := newFakeHost()
	h.defines["KNOWN"] = "1"
	got, err := eval.Substitute("{defined KNOWN}-{defined UNKNOWN}", h)
	require.NoError(t, err)
	require.Equal(t, "1-0", got)
}

func TestPCOriginBaseBuiltins(t *testing.T) {
	h := newFakeHost()
	h.origin, h.base = 10, 0x8000
	v, err := eval.Evaluate("pc()", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(0x800a), v)
}

func TestAssignOperatorSetsVariable(t *testing.T) {
	h := newFakeHost()
	_, err := eval.Evaluate("n := 5", h, eval.Default)
	require.NoError(t, err)
	require.Equal(t, int64(5), h.variables["n"])
}
