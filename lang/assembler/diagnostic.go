package assembler

import (
	"fmt"

	"github.com/retrobass/bass/lang/token"
)

// Severity is one of the three diagnostic severities.
type Severity uint8

const (
	Notice Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Kind names the class of a Diagnostic, for callers that want to branch on
// it rather than match Message text.
type Kind string

const (
	KindSyntax               Kind = "Syntax"
	KindUnterminatedBlock     Kind = "UnterminatedBlock"
	KindInvalidIdentifier     Kind = "InvalidIdentifier"
	KindDuplicateConstant     Kind = "DuplicateConstant"
	KindUnknownConstantAtWrite Kind = "UnknownConstantAtWrite"
	KindUnknownMacro          Kind = "UnknownMacro"
	KindArityMismatch         Kind = "ArityMismatch"
	KindInvalidExpression     Kind = "InvalidExpression"
	KindDivisionByZero        Kind = "DivisionByZero"
	KindIOFailure             Kind = "IOFailure"
	KindNoMatchingPattern     Kind = "NoMatchingPattern"
	KindOutOfRangeField       Kind = "OutOfRangeField"
	KindIncludeCycle          Kind = "IncludeCycle"
	KindUnrecognizedDirective Kind = "UnrecognizedDirective"
	KindFrameSpecifierMisuse  Kind = "FrameSpecifierMisuse"
)

// Diagnostic carries everything a caller needs to report one notice,
// warning or fatal error: severity, kind, message, source position and the
// active scope chain at the point it was raised.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Message  string
	Position token.Position
	Scope    []string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Position, d.Severity, d.Message)
}

func (a *Assembler) diag(severity Severity, kind Kind, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Severity: severity,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Position: a.fset.Position(a.curFile, a.curLine),
		Scope:    a.table.Scope(),
	}
}

// fail builds an Error-severity Diagnostic and returns it as an error,
// aborting the current phase.
func (a *Assembler) fail(kind Kind, format string, args ...any) error {
	return a.diag(Error, kind, format, args...)
}

// notice prints a Notice-severity Diagnostic (Write phase only) and never
// aborts.
func (a *Assembler) notice(format string, args ...any) {
	if a.phase != PhaseWrite {
		return
	}
	fmt.Fprintln(a.stderr, a.diag(Notice, KindSyntax, format, args...).Error())
}

// warning prints a Warning-severity Diagnostic (Write phase only) and
// returns an error only when -strict is set, promoting it to fatal.
func (a *Assembler) warning(kind Kind, format string, args ...any) error {
	if a.phase != PhaseWrite {
		return nil
	}
	d := a.diag(Warning, kind, format, args...)
	fmt.Fprintln(a.stderr, d.Error())
	a.warnings++
	if a.strict {
		d.Severity = Error
		return d
	}
	return nil
}
