// Package assembler implements the statement executor and the built-in
// directive set together in one Assembler type, since the executor calls
// directives inline per statement and both halves share the same process
// state: program stream, symbol table, cursor/endian state, and the open
// target file. Splitting them into assembler.go/directives.go keeps that
// single receiver while separating control-flow dispatch from the leaf
// directives it falls through to.
package assembler

import (
	"fmt"
	"io"
	"os"

	"github.com/retrobass/bass/lang/analyzer"
	"github.com/retrobass/bass/lang/arch"
	"github.com/retrobass/bass/lang/eval"
	"github.com/retrobass/bass/lang/ir"
	"github.com/retrobass/bass/lang/symtab"
	"github.com/retrobass/bass/lang/token"
	"github.com/retrobass/bass/internal/sink"
)

// Phase is one of the three driver phases.
type Phase uint8

const (
	PhaseAnalyze Phase = iota
	PhaseQuery
	PhaseWrite
)

// Endian selects multi-byte emission order for db/dw/dl/dd/dq and the
// architecture table's wide encoder lines.
type Endian uint8

const (
	LSB Endian = iota
	MSB
)

// maxQueryIterations bounds the Query-phase forward-reference fix-point;
// exceeding it means constants are oscillating or genuinely unresolvable.
const maxQueryIterations = 64

type preset struct {
	name  string
	value string
}

// Assembler owns the full process state of one assembly run and implements
// eval.Host and arch.Host so the expression evaluator and architecture
// table can resolve identifiers and emit bytes without depending on this
// package.
type Assembler struct {
	prog *ir.Program
	fset *token.FileSet

	table *symtab.Table

	ip    int
	phase Phase

	endian      Endian
	origin      int64
	base        int64
	stringTable [256]int64

	pushOrigin []int64
	pushBase   []int64

	ifStack []bool

	lastLabelCounter uint
	nextLabelCounter uint
	macroCounter     uint

	strict   bool
	warnings int
	dirty    bool

	curFile int
	curLine int

	defineDepth int

	target       string
	targetCreate bool
	sink         *sink.Sink

	arch    *arch.Table
	stderr  io.Writer

	preDefines   []preset
	preConstants []struct {
		name  string
		value int64
	}
}

// New builds an Assembler ready to run Assemble over prog.
func New(prog *ir.Program, fset *token.FileSet) *Assembler {
	return &Assembler{
		prog:   prog,
		fset:   fset,
		table:  symtab.New(),
		stderr: os.Stderr,
	}
}

// SetTarget records the output filename and open mode ("create" truncates,
// "modify" opens an existing file in place); the file itself is only
// opened once the Write phase begins.
func (a *Assembler) SetTarget(filename string, create bool) {
	a.target = filename
	a.targetCreate = create
}

// SetStrict promotes warnings to errors.
func (a *Assembler) SetStrict(strict bool) { a.strict = strict }

// SetStderr redirects diagnostic output (tests substitute a buffer).
func (a *Assembler) SetStderr(w io.Writer) { a.stderr = w }

// PreDefine pre-seeds a define before any source is read (-d).
func (a *Assembler) PreDefine(name, value string) {
	a.preDefines = append(a.preDefines, preset{name: name, value: value})
}

// PreConstant pre-seeds a constant before any source is read (-c).
func (a *Assembler) PreConstant(name string, value int64) {
	a.preConstants = append(a.preConstants, struct {
		name  string
		value int64
	}{name, value})
}

// Warnings reports how many Warning-severity diagnostics were printed
// during the Write phase.
func (a *Assembler) Warnings() int { return a.warnings }

// Assemble runs the three-phase driver: Analyze once, Query to a
// fix-point (bounded), then the authoritative Write phase.
func (a *Assembler) Assemble() error {
	if err := analyzer.Analyze(a.prog); err != nil {
		return err
	}

	for _, c := range a.preConstants {
		if err := a.table.SetConstant(c.name, c.value, false); err != nil {
			return err
		}
	}

	for iter := 0; ; iter++ {
		if iter >= maxQueryIterations {
			return fmt.Errorf("bass: constants did not converge after %d query passes", maxQueryIterations)
		}
		a.beginPhase(PhaseQuery)
		a.dirty = false
		if err := a.run(); err != nil {
			return err
		}
		if !a.dirty {
			break
		}
	}

	a.beginPhase(PhaseWrite)
	if a.target != "" {
		s, err := sink.Open(a.target, a.targetCreate)
		if err != nil {
			return a.fail(KindIOFailure, "opening target %q: %s", a.target, err)
		}
		a.sink = s
	}
	err := a.run()
	if a.sink != nil {
		if cerr := a.sink.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return err
	}
	if a.dirty {
		return a.fail(KindUnknownConstantAtWrite, "one or more constants remain unknown at write phase")
	}
	return nil
}

// beginPhase resets every piece of per-pass directive state. The original
// assembler this reimplements does this at the start of every single
// execution pass (each Query rerun and the Write pass), so that each pass
// re-derives origin/labels/scope from scratch; only the symbol table's
// constants persist across passes.
func (a *Assembler) beginPhase(phase Phase) {
	a.phase = phase
	a.ip = 0
	a.endian = LSB
	a.origin = 0
	a.base = 0
	a.lastLabelCounter = 1
	a.nextLabelCounter = 1
	a.macroCounter = 0
	a.pushOrigin = nil
	a.pushBase = nil
	a.ifStack = nil
	for i := range a.stringTable {
		a.stringTable[i] = int64(i)
	}
	a.table.ResetFrames()
	a.table.ResetPass()
	for _, d := range a.preDefines {
		a.table.SetDefine(d.name, d.value, true)
	}
}

// run executes the full instruction stream once for the current phase.
func (a *Assembler) run() error {
	for a.ip < a.prog.Len() {
		i := &a.prog.Instructions[a.ip]
		a.curFile = i.FileNumber
		a.curLine = i.LineNumber
		next := a.ip + 1
		if err := a.step(i, next); err != nil {
			return err
		}
	}
	return nil
}

// step executes a single Instruction. next is the index immediately after
// i, which is the fallthrough target for anything that doesn't jump.
func (a *Assembler) step(i *ir.Instruction, next int) error {
	switch i.Kind {
	case ir.KindMacroOpen:
		if err := a.openMacro(i); err != nil {
			return err
		}
		a.ip = int(i.IP)
		return nil

	case ir.KindMacroClose:
		frame := a.table.PopFrame()
		if frame.Scoped {
			a.table.PopScope()
		}
		a.ip = int(frame.IP)
		return nil

	case ir.KindIfOpen:
		cond := analyzer.Condition(ir.KindIfOpen, i.Statement)
		v, err := eval.Evaluate(cond, a, eval.Strict)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		a.ifStack = append(a.ifStack, v != 0)
		if v == 0 {
			a.ip = int(i.IP)
			return nil
		}
		a.ip = next
		return nil

	case ir.KindElseIf:
		top := len(a.ifStack) - 1
		if top < 0 {
			return a.fail(KindFrameSpecifierMisuse, "else if without matching if")
		}
		if a.ifStack[top] {
			a.ip = int(i.IP)
			return nil
		}
		cond := analyzer.Condition(ir.KindElseIf, i.Statement)
		v, err := eval.Evaluate(cond, a, eval.Strict)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		a.ifStack[top] = v != 0
		if v == 0 {
			a.ip = int(i.IP)
			return nil
		}
		a.ip = next
		return nil

	case ir.KindElse:
		top := len(a.ifStack) - 1
		if top < 0 {
			return a.fail(KindFrameSpecifierMisuse, "else without matching if")
		}
		if a.ifStack[top] {
			a.ip = int(i.IP)
			return nil
		}
		a.ifStack[top] = true
		a.ip = next
		return nil

	case ir.KindEndIf:
		if len(a.ifStack) == 0 {
			return a.fail(KindFrameSpecifierMisuse, "endif without matching if")
		}
		a.ifStack = a.ifStack[:len(a.ifStack)-1]
		a.ip = next
		return nil

	case ir.KindWhileOpen:
		cond := analyzer.Condition(ir.KindWhileOpen, i.Statement)
		v, err := eval.Evaluate(cond, a, eval.Strict)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		if v == 0 {
			a.ip = int(i.IP)
			return nil
		}
		a.ip = next
		return nil

	case ir.KindEndWhile:
		a.ip = int(i.IP)
		return nil

	default:
		calls := a.macroCounter
		if err := a.dispatchGeneric(i.Kind, i.Statement); err != nil {
			return err
		}
		// a macro call has already moved ip to the macro body
		if a.macroCounter == calls {
			a.ip = next
		}
		return nil
	}
}
