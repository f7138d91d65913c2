package assembler

import (
	"fmt"

	"github.com/retrobass/bass/lang/eval"
)

// --- eval.Host ---

// EnterDefine reports whether another nested define resolution is allowed,
// incrementing this Assembler's own depth counter; ExitDefine decrements it.
// The counter lives on the Assembler so that two Assembler instances
// assembling concurrently never share state.
func (a *Assembler) EnterDefine() bool {
	if a.defineDepth >= eval.MaxDefineDepth {
		return false
	}
	a.defineDepth++
	return true
}

func (a *Assembler) ExitDefine() { a.defineDepth-- }

func (a *Assembler) FindVariable(name string) (int64, bool) {
	v, ok := a.table.FindVariable(name)
	if !ok {
		return 0, false
	}
	return v.Value, true
}

func (a *Assembler) FindConstant(name string) (int64, bool) {
	return a.table.FindConstant(name)
}

func (a *Assembler) FindDefine(name string) (string, bool) {
	d, ok := a.table.FindDefine(name)
	if !ok {
		return "", false
	}
	return d.Value, true
}

func (a *Assembler) SetVariable(name string, value int64) {
	a.table.AssignVariable(name, value)
}

// ResolveAnonLabel resolves "-"/"--"/... (back) or "+"/"++"/... (forward)
// against the counters captured at the point of reference: a back
// reference of count N means the Nth-most-recently-defined "-" label; a
// forward reference of count N means the Nth "+" label that will be
// defined from here on.
func (a *Assembler) ResolveAnonLabel(back bool, count int) (int64, bool) {
	if back {
		idx := int(a.lastLabelCounter) - count
		if idx < 1 {
			return 0, false
		}
		return a.table.FindConstant(fmt.Sprintf("lastLabel#%d", idx))
	}
	idx := int(a.nextLabelCounter) + count - 1
	return a.table.FindConstant(fmt.Sprintf("nextLabel#%d", idx))
}

func (a *Assembler) PC() int64     { return a.origin + a.base }
func (a *Assembler) Origin() int64 { return a.origin }
func (a *Assembler) Base() int64   { return a.base }

func (a *Assembler) CallFunction(name string, args []int64) (int64, bool, error) {
	if a.arch != nil {
		return a.arch.CallFunction(name, args)
	}
	return 0, false, nil
}

func (a *Assembler) NoteUnresolved(string) { a.dirty = true }

// --- arch.Host ---

// EmitWidth writes value as a little/big-endian (per a.endian) width-byte
// integer, advancing origin by width. It is also used to flush
// already-assembled composite-word bytes one at a time (width 1), where
// byte order no longer matters.
func (a *Assembler) EmitWidth(value int64, width int) error {
	for i := 0; i < width; i++ {
		var shift int
		if a.endian == LSB {
			shift = 8 * i
		} else {
			shift = 8 * (width - 1 - i)
		}
		b := byte(value >> uint(shift))
		if a.sink != nil && a.phase == PhaseWrite {
			if err := a.sink.WriteAt([]byte{b}, a.origin); err != nil {
				return a.fail(KindIOFailure, "%s", err)
			}
		}
		a.origin++
	}
	return nil
}

func (a *Assembler) Strict() bool { return a.strict }

func (a *Assembler) ReportOutOfRange(format string, args ...any) error {
	return a.warning(KindOutOfRangeField, format, args...)
}
