package assembler

import "github.com/retrobass/bass/lang/arch"

// runArchPattern matches s against the active architecture table and, on a
// match, executes its encoder lines. ok is false if no pattern matched, so
// the caller falls through to evaluating s as a bare expression.
func (a *Assembler) runArchPattern(s string) (ok bool, err error) {
	p, captures, matched := a.arch.Match(s)
	if !matched {
		return false, nil
	}
	if err := arch.Execute(p, captures, a); err != nil {
		return true, a.fail(KindNoMatchingPattern, "%s", err)
	}
	return true, nil
}
