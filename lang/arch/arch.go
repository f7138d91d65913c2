// Package arch implements an external, per-target architecture table
// loaded at runtime describing instruction mnemonics as patterns with
// operand slots, each followed by one or more encoder lines that emit
// bytes or pack bit fields. The table never ships compiled into the
// assembler binary; a new target is just a new text file.
package arch

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/retrobass/bass/lang/eval"
)

// Pattern is one mnemonic template plus its encoder lines, matched in
// declaration order (first match wins).
type Pattern struct {
	re       *regexp.Regexp
	slots    int
	encoders []string
}

// Function is one user function declared in an architecture table: a named,
// pure expression over its own parameter list, callable from any encoder
// formula (and from other declared functions) by name and arity.
type Function struct {
	params []string
	expr   string
}

// Table is a loaded architecture file: patterns in declaration order plus
// any user functions it contributes to expressions via CallFunction.
type Table struct {
	patterns  []*Pattern
	functions map[string]*Function
}

// reFunction matches a top-level function declaration line:
//
//	function hi(x) = (x >> 8) & $ff
//
// Declarations are keyed by name and parameter count, so "hi(x)" and
// "hi(x, y)" coexist as distinct overloads, matching how the rest of the
// table format already overloads on arity.
var reFunction = regexp.MustCompile(`^function\s+(\w+)\s*\(([^)]*)\)\s*=\s*(.+)$`)

// Load parses an architecture table file. Lines are either a pattern line
// (first token onward, not starting with whitespace or "#"), a top-level
// "function NAME(params) = EXPR" declaration, or an indented encoder line
// belonging to the preceding pattern; "#" starts a comment.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &Table{functions: map[string]*Function{}}
	var cur *Pattern

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if cur == nil {
				continue
			}
			cur.encoders = append(cur.encoders, strings.TrimSpace(line))
			continue
		}
		if m := reFunction.FindStringSubmatch(strings.TrimRight(line, " \t")); m != nil {
			fn := &Function{params: splitParams(m[2]), expr: m[3]}
			t.functions[funcKey(m[1], len(fn.params))] = fn
			cur = nil
			continue
		}
		cur = compilePattern(strings.TrimRight(line, " \t"))
		t.patterns = append(t.patterns, cur)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// splitParams splits a function declaration's parameter list on commas,
// trimming whitespace; an empty list yields a nil (zero-length) slice.
func splitParams(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func funcKey(name string, arity int) string {
	return fmt.Sprintf("%s:%d", name, arity)
}

// compilePattern turns a pattern template into an anchored regexp: literal
// runs match literally (internal whitespace tolerant), and each "*" or "%"
// (together with any slot number written right after it, as in "%1")
// becomes a non-greedy capturing group for the operand substring at that
// position, later re-parsed as an expression by lang/eval.
func compilePattern(line string) *Pattern {
	var b strings.Builder
	b.WriteString(`^\s*`)
	slots := 0
	inSlot := false
	for _, r := range line {
		if inSlot && r >= '0' && r <= '9' {
			continue
		}
		inSlot = false
		switch r {
		case '%', '*':
			b.WriteString(`(.+?)`)
			slots++
			inSlot = true
		case ' ', '\t':
			b.WriteString(`\s*`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\s*$`)
	return &Pattern{re: regexp.MustCompile(b.String()), slots: slots}
}

// Match returns the first pattern (in declaration order) whose template
// matches statement, along with its captured operand slot substrings.
func (t *Table) Match(statement string) (*Pattern, []string, bool) {
	for _, p := range t.patterns {
		if m := p.re.FindStringSubmatch(statement); m != nil {
			return p, m[1:], true
		}
	}
	return nil, nil, false
}

// CallFunction is the architecture table's extension point for functions
// referenced from expressions, dispatching to any "function NAME(params) =
// EXPR" declaration of matching name and arity. ok is false (not an error)
// when no such declaration exists, so lang/eval can fall through to its own
// unknown-function handling.
func (t *Table) CallFunction(name string, args []int64) (int64, bool, error) {
	return t.callFunction(name, args, 0)
}

// callFunction is CallFunction's depth-tracked core: depth counts nested
// function-body evaluations so a function that calls itself (directly or
// through another declared function) fails once eval.MaxDefineDepth calls
// are in flight, instead of recursing the Go stack without bound. depth is
// an explicit parameter rather than Table state so that concurrent
// evaluations (or unrelated top-level calls) never share a counter.
func (t *Table) callFunction(name string, args []int64, depth int) (int64, bool, error) {
	fn, ok := t.functions[funcKey(name, len(args))]
	if !ok {
		return 0, false, nil
	}
	if depth >= eval.MaxDefineDepth {
		return 0, true, fmt.Errorf("arch: function %s exceeded recursion depth", name)
	}
	env := &funcEnv{table: t, depth: depth + 1, args: make(map[string]int64, len(fn.params))}
	for i, p := range fn.params {
		env.args[p] = args[i]
	}
	v, err := eval.Evaluate(fn.expr, env, eval.Strict)
	if err != nil {
		return 0, true, fmt.Errorf("arch: function %s: %w", name, err)
	}
	return v, true, nil
}

// funcEnv is the eval.Host a declared function's body evaluates against: its
// parameters are bound as the only resolvable names. A function body is a
// pure expression over its own parameters — it has no access to pc()/
// origin()/base() (they evaluate to 0), labels, defines, or the caller's
// constants, and an assignment within a function body is silently discarded
// (the grammar still parses "n := expr" but a pure function has nowhere to
// store it). Calling another declared function composes back through the owning
// Table, carrying depth forward so a self-referencing (directly or
// mutually) function chain is bounded rather than recursing forever.
type funcEnv struct {
	table       *Table
	args        map[string]int64
	depth       int
	defineDepth int
}

func (e *funcEnv) FindVariable(name string) (int64, bool) { v, ok := e.args[name]; return v, ok }
func (e *funcEnv) FindConstant(string) (int64, bool)      { return 0, false }
func (e *funcEnv) FindDefine(string) (string, bool)       { return "", false }
func (e *funcEnv) SetVariable(string, int64)              {}
func (e *funcEnv) ResolveAnonLabel(bool, int) (int64, bool) { return 0, false }
func (e *funcEnv) PC() int64                              { return 0 }
func (e *funcEnv) Origin() int64                          { return 0 }
func (e *funcEnv) Base() int64                             { return 0 }

func (e *funcEnv) CallFunction(name string, args []int64) (int64, bool, error) {
	return e.table.callFunction(name, args, e.depth)
}

func (e *funcEnv) NoteUnresolved(string) {}

func (e *funcEnv) EnterDefine() bool {
	if e.defineDepth >= eval.MaxDefineDepth {
		return false
	}
	e.defineDepth++
	return true
}

func (e *funcEnv) ExitDefine() { e.defineDepth-- }
