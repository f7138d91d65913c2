// Package symtab implements the scoped symbol model. A Table holds a
// stack of Frames (macros, defines, variables, each private to one macro
// invocation) plus one global table of Constants that supports
// forward-declaration across the Analyze/Query/Write phases.
//
// Name resolution walks the scope stack from most to least specific, and
// tries the top (innermost) frame before falling back to frame 0 (the
// global frame) — see scopeWalk.
package symtab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"
)

// Macro is a single arity-overloaded macro or inline definition.
type Macro struct {
	Key        string // fully-qualified "name:arity"
	Parameters []string
	IP         uint32
	Scoped     bool
}

// Define is a named textual substitution.
type Define struct {
	Name  string
	Value string
}

// Variable is a named mutable 64-bit signed integer, stored in a frame (a
// macro invocation's frame or the global frame 0). Constants are kept
// separately, in the Table's own constants map.
type Variable struct {
	Name  string
	Value int64
}

// Frame is one macro invocation's private symbol tables plus its return IP.
// Frame 0, pushed once at the start of assembly, is the global frame.
type Frame struct {
	IP     uint32
	Scoped bool

	macros    *swiss.Map[string, *Macro]
	defines   *swiss.Map[string, *Define]
	variables *swiss.Map[string, *Variable]
}

func newFrame() *Frame {
	return &Frame{
		macros:    swiss.NewMap[string, *Macro](8),
		defines:   swiss.NewMap[string, *Define](8),
		variables: swiss.NewMap[string, *Variable](8),
	}
}

// Table is the full symbol-table state for one Assembler instance.
type Table struct {
	frames []*Frame
	scope  []string

	constants     *swiss.Map[string, int64]
	constantNames *swiss.Map[string, struct{}] // names ever assigned; never removed
	passSeen      *swiss.Map[string, int64]    // names assigned during the current phase pass
}

// New returns a Table with the global frame (frame 0) already pushed.
func New() *Table {
	t := &Table{
		constants:     swiss.NewMap[string, int64](64),
		constantNames: swiss.NewMap[string, struct{}](64),
		passSeen:      swiss.NewMap[string, int64](64),
	}
	t.frames = append(t.frames, newFrame())
	return t
}

// PushFrame pushes a new frame (macro invocation), returning it so the
// caller can record its return IP.
func (t *Table) PushFrame(scoped bool) *Frame {
	f := newFrame()
	f.Scoped = scoped
	t.frames = append(t.frames, f)
	return f
}

// PopFrame removes and returns the innermost frame. It panics if only the
// global frame remains, which indicates an unbalanced "} endmacro".
func (t *Table) PopFrame() *Frame {
	if len(t.frames) <= 1 {
		panic("symtab: PopFrame: no macro frame to pop")
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f
}

// ResetFrames drops every frame but the global one, used between phases.
func (t *Table) ResetFrames() {
	t.frames = t.frames[:1]
}

func (t *Table) target(local bool) *Frame {
	if local {
		return t.frames[len(t.frames)-1]
	}
	return t.frames[0]
}

// PushScope appends name to the active scope stack.
func (t *Table) PushScope(name string) {
	if name != "" {
		t.scope = append(t.scope, name)
	}
}

// PopScope removes the innermost scope name.
func (t *Table) PopScope() {
	if len(t.scope) > 0 {
		t.scope = t.scope[:len(t.scope)-1]
	}
}

// Scope returns a copy of the current scope stack.
func (t *Table) Scope() []string {
	out := make([]string, len(t.scope))
	copy(out, t.scope)
	return out
}

// ResetPass clears the set of constants assigned during the current phase
// pass. Call it once at the start of every Analyze/Query/Write traversal
// (including each fix-point rerun of Query).
func (t *Table) ResetPass() {
	t.passSeen = swiss.NewMap[string, int64](64)
}

// qualify resolves name against the root-scope ("::") rule and returns the
// fully scope-qualified name to store or the exact root name to look up.
func (t *Table) qualify(name string) (qualified string, rootScoped bool) {
	if strings.HasPrefix(name, "::") {
		return name[2:], true
	}
	if len(t.scope) == 0 {
		return name, false
	}
	return strings.Join(t.scope, ".") + "." + name, false
}

// scopeWalk returns, from most to least specific, the candidate qualified
// names to try when looking up name: "s1.s2...sk.name", "s1...s(k-1).name",
// ..., "name". A root-scoped name ("::x") yields only its bare name.
func scopeWalk(scope []string, name string) []string {
	if strings.HasPrefix(name, "::") {
		return []string{name[2:]}
	}
	candidates := make([]string, 0, len(scope)+1)
	for i := len(scope); i >= 0; i-- {
		prefix := strings.Join(scope[:i], ".")
		if prefix == "" {
			candidates = append(candidates, name)
		} else {
			candidates = append(candidates, prefix+"."+name)
		}
	}
	return candidates
}

// --- macros ---

// SetMacro inserts or updates a macro. name must not include the arity
// suffix; it is appended here as "name:arity". local selects the target
// frame (top frame if true, else frame 0).
func (t *Table) SetMacro(name string, parameters []string, ip uint32, scoped, local bool) error {
	if !ValidName(name, false) {
		return fmt.Errorf("invalid macro name: %s", name)
	}
	for _, p := range parameters {
		pname := paramName(p)
		if !ValidName(pname, false) {
			return fmt.Errorf("invalid parameter name: %s", pname)
		}
	}

	key := name + ":" + strconv.Itoa(len(parameters))
	qualified, _ := t.qualify(key)

	frame := t.target(local)
	if m, ok := frame.macros.Get(qualified); ok {
		m.Parameters = parameters
		m.IP = ip
		m.Scoped = scoped
		return nil
	}
	frame.macros.Put(qualified, &Macro{Key: qualified, Parameters: parameters, IP: ip, Scoped: scoped})
	return nil
}

// FindMacroIn looks up name:arity in only the top frame (local=true) or only
// frame 0 (local=false), walking the scope stack.
func (t *Table) FindMacroIn(name string, arity int, local bool) (*Macro, bool) {
	key := name + ":" + strconv.Itoa(arity)
	frame := t.target(local)
	for _, cand := range scopeWalk(t.scope, key) {
		if m, ok := frame.macros.Get(cand); ok {
			return m, true
		}
	}
	return nil, false
}

// FindMacro looks up name:arity, top frame first then the global frame.
func (t *Table) FindMacro(name string, arity int) (*Macro, bool) {
	if m, ok := t.FindMacroIn(name, arity, true); ok {
		return m, true
	}
	return t.FindMacroIn(name, arity, false)
}

// --- defines ---

func (t *Table) SetDefine(name, value string, local bool) error {
	if !ValidName(name, true) {
		return fmt.Errorf("invalid define name: %s", name)
	}
	qualified, _ := t.qualify(name)
	frame := t.target(local)
	if d, ok := frame.defines.Get(qualified); ok {
		d.Value = value
		return nil
	}
	frame.defines.Put(qualified, &Define{Name: qualified, Value: value})
	return nil
}

func (t *Table) FindDefineIn(name string, local bool) (*Define, bool) {
	frame := t.target(local)
	for _, cand := range scopeWalk(t.scope, name) {
		if d, ok := frame.defines.Get(cand); ok {
			return d, true
		}
	}
	return nil, false
}

func (t *Table) FindDefine(name string) (*Define, bool) {
	if d, ok := t.FindDefineIn(name, true); ok {
		return d, true
	}
	return t.FindDefineIn(name, false)
}

// --- variables ---

func (t *Table) SetVariable(name string, value int64, local bool) error {
	if !ValidName(name, true) {
		return fmt.Errorf("invalid variable name: %s", name)
	}
	qualified, _ := t.qualify(name)
	frame := t.target(local)
	if v, ok := frame.variables.Get(qualified); ok {
		v.Value = value
		return nil
	}
	frame.variables.Put(qualified, &Variable{Name: qualified, Value: value})
	return nil
}

func (t *Table) FindVariableIn(name string, local bool) (*Variable, bool) {
	frame := t.target(local)
	for _, cand := range scopeWalk(t.scope, name) {
		if v, ok := frame.variables.Get(cand); ok {
			return v, true
		}
	}
	return nil, false
}

func (t *Table) FindVariable(name string) (*Variable, bool) {
	if v, ok := t.FindVariableIn(name, true); ok {
		return v, true
	}
	return t.FindVariableIn(name, false)
}

// AssignVariable implements the ":=" operator's "nearest scope" rule: if a
// local (top-frame) variable by this name already exists, it is updated in
// place; otherwise a new variable is created in the global frame.
func (t *Table) AssignVariable(name string, value int64) error {
	if _, ok := t.FindVariableIn(name, true); ok {
		return t.SetVariable(name, value, true)
	}
	return t.SetVariable(name, value, false)
}

// --- constants ---

// ErrConstantRedefined is returned by SetConstant when a name is assigned
// two different values within the same phase pass, or when a Write-phase
// assignment disagrees with the value fixed during Query.
var ErrConstantRedefined = fmt.Errorf("constant cannot be modified")

// SetConstant assigns value to name, global to the whole program (no frame).
// isWritePhase tightens the check: the value must already match what Query
// fixed.
func (t *Table) SetConstant(name string, value int64, isWritePhase bool) error {
	if !ValidName(name, true) {
		return fmt.Errorf("invalid constant name: %s", name)
	}
	qualified, _ := t.qualify(name)

	if prev, seen := t.passSeen.Get(qualified); seen {
		if prev != value {
			return fmt.Errorf("%w: %s", ErrConstantRedefined, qualified)
		}
	} else {
		t.passSeen.Put(qualified, value)
	}

	if isWritePhase {
		if old, ok := t.constants.Get(qualified); ok && old != value {
			return fmt.Errorf("%w: %s (write phase)", ErrConstantRedefined, qualified)
		}
	}

	t.constantNames.Put(qualified, struct{}{})
	t.constants.Put(qualified, value)
	return nil
}

// FindConstant looks up name, walking the scope stack. ok is false if the
// name has never been assigned a value.
func (t *Table) FindConstant(name string) (value int64, ok bool) {
	for _, cand := range scopeWalk(t.scope, name) {
		if v, found := t.constants.Get(cand); found {
			return v, true
		}
	}
	return 0, false
}

// HasConstantName reports whether name has ever been assigned, independent
// of its current value, walking the scope stack like FindConstant.
// SetConstant does not consult it.
func (t *Table) HasConstantName(name string) bool {
	for _, cand := range scopeWalk(t.scope, name) {
		if _, ok := t.constantNames.Get(cand); ok {
			return true
		}
	}
	return false
}

func paramName(p string) string {
	fields := strings.Fields(p)
	return fields[len(fields)-1]
}

// ParamKind returns the declared kind ("define", "string", "evaluate",
// "variable") and bare name of a macro parameter declaration such as
// "evaluate foo" or just "foo" (which defaults to "define").
func ParamKind(p string) (kind, name string) {
	fields := strings.Fields(p)
	if len(fields) == 1 {
		return "define", fields[0]
	}
	return fields[0], fields[len(fields)-1]
}

// ValidName reports whether name is a legal identifier: [A-Za-z_#][A-Za-z0-9_.#]*,
// with an optional leading "::" when allowScopeless is true.
func ValidName(name string, allowScopeless bool) bool {
	if allowScopeless && strings.HasPrefix(name, "::") {
		name = name[2:]
	}
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c == '_', c == '#':
		case i > 0 && (c >= '0' && c <= '9' || c == '.'):
		default:
			return false
		}
	}
	return true
}
