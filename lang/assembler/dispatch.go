package assembler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/retrobass/bass/lang/eval"
	"github.com/retrobass/bass/lang/ir"
	"github.com/retrobass/bass/lang/symtab"
)

var (
	reMacroOpen  = regexp.MustCompile(`^(global )?macro (.+)\((.*)\) \{$`)
	reDefineStmt = regexp.MustCompile(`^(global )?define (\S+)\((.*)\)$`)
	reEvalStmt   = regexp.MustCompile(`^(global )?evaluate (\S+)\((.*)\)$`)
	reVarStmt    = regexp.MustCompile(`^(global )?variable (\S+)\((.*)\)$`)
	reCallStmt   = regexp.MustCompile(`^([A-Za-z_#:][A-Za-z0-9_.#]*)\((.*)\)$`)
	reScopeStmt  = regexp.MustCompile(`^scope(?: (.+))? \{$`)
	reLabelStmt  = regexp.MustCompile(`^(\S+:|-|\+) \{$`)
)

// openScope handles "scope [NAME] {". A trailing ":" on NAME both defines
// NAME as a constant at the current pc() and pushes NAME (colon included)
// as the new scope component, matching original_source/bass's
// assemble.cpp, which appends the trimmed-but-colon-bearing string as-is.
func (a *Assembler) openScope(raw string) error {
	m := reScopeStmt.FindStringSubmatch(raw)
	if m == nil {
		return a.fail(KindSyntax, "malformed scope: %s", raw)
	}
	name := strings.TrimSpace(m[1])
	if strings.HasSuffix(name, ":") {
		if err := a.table.SetConstant(strings.TrimSuffix(name, ":"), a.PC(), a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
	}
	a.table.PushScope(name)
	return nil
}

// openLabelBlock handles "NAME: {", "- {" and "+ {": it defines the label
// (named or anonymous) at the current pc() but does not itself affect
// scope — only the "scope" construct does that.
func (a *Assembler) openLabelBlock(raw string) error {
	m := reLabelStmt.FindStringSubmatch(raw)
	if m == nil {
		return a.fail(KindSyntax, "malformed label block: %s", raw)
	}
	return a.defineLabel(m[1])
}

// defineLabel implements "name:", "-" and "+" label forms shared by both
// the label-block opener and the bare (non-block) generic statement.
func (a *Assembler) defineLabel(label string) error {
	switch label {
	case "-":
		name := fmt.Sprintf("lastLabel#%d", a.lastLabelCounter)
		a.lastLabelCounter++
		if err := a.table.SetConstant(name, a.PC(), a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
		return nil
	case "+":
		name := fmt.Sprintf("nextLabel#%d", a.nextLabelCounter)
		a.nextLabelCounter++
		if err := a.table.SetConstant(name, a.PC(), a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
		return nil
	default:
		name := strings.TrimSuffix(label, ":")
		if err := a.table.SetConstant(name, a.PC(), a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
		return nil
	}
}

// openMacro handles a "[global] macro [scope] NAME(PARAMS) {" instruction:
// it records the macro (body starts at the instruction after this one, ends
// at i.IP per the analyzer) without executing the body, matching the
// original's "execute skips the definition, only binds on call" behavior.
func (a *Assembler) openMacro(i *ir.Instruction) error {
	m := reMacroOpen.FindStringSubmatch(i.Statement)
	if m == nil {
		return a.fail(KindSyntax, "malformed macro declaration: %s", i.Statement)
	}
	local := m[1] == ""
	head := strings.Fields(m[2])
	scoped := len(head) == 2 && head[0] == "scope"
	name := m[2]
	if scoped {
		name = head[1]
	}
	var params []string
	if strings.TrimSpace(m[3]) != "" {
		for _, p := range splitArgs(m[3]) {
			params = append(params, strings.TrimSpace(p))
		}
	}
	return a.table.SetMacro(name, params, uint32(a.ip+1), scoped, local)
}

// dispatchGeneric runs the non-control-flow dispatch pipeline shared by
// every Instruction that isn't an if/while/macro-open/macro-close. Block,
// scope and label-block openers/closers are tagged by the analyzer and
// handled directly from their Kind (bare "{"/"}" text can't otherwise be
// told apart); anything still KindGeneric goes through substitution, then
// in order define/evaluate/variable declarations, macro calls, built-in
// directives, architecture table patterns, and finally a bare expression
// (for its side effects, e.g. ":=").
func (a *Assembler) dispatchGeneric(kind ir.Kind, raw string) error {
	s, err := eval.Substitute(raw, a)
	if err != nil {
		return a.fail(KindInvalidExpression, "%s", err)
	}

	switch kind {
	case ir.KindBlockOpen, ir.KindBlockClose:
		return nil
	case ir.KindScopeOpen:
		return a.openScope(s)
	case ir.KindScopeClose:
		a.table.PopScope()
		return nil
	case ir.KindLabelBlockOpen:
		return a.openLabelBlock(s)
	case ir.KindLabelBlockClose:
		return nil
	}

	if m := reDefineStmt.FindStringSubmatch(s); m != nil {
		return a.table.SetDefine(m[2], strings.TrimSpace(m[3]), m[1] == "")
	}
	if m := reEvalStmt.FindStringSubmatch(s); m != nil {
		v, err := eval.Evaluate(m[3], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		return a.table.SetDefine(m[2], strconv.FormatInt(v, 10), m[1] == "")
	}
	if m := reVarStmt.FindStringSubmatch(s); m != nil {
		v, err := eval.Evaluate(m[3], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		return a.table.SetVariable(m[2], v, m[1] == "")
	}

	if m := reCallStmt.FindStringSubmatch(s); m != nil {
		name := m[1]
		var args []string
		if strings.TrimSpace(m[2]) != "" {
			args = splitArgs(m[2])
		}
		if macro, ok := a.table.FindMacro(name, len(args)); ok {
			return a.callMacro(name, macro, args)
		}
	}

	if ok, err := a.directive(s); ok || err != nil {
		return err
	}

	if a.arch != nil {
		if ok, err := a.runArchPattern(s); ok || err != nil {
			return err
		}
	}

	// a bare NAME(ARGS) statement that no macro claimed is evaluated
	// strictly, so a call to an undefined macro (or with the wrong number of
	// arguments) is an error rather than an unknown function evaluating to 0
	mode := eval.Default
	if reCallStmt.MatchString(s) {
		mode = eval.Strict
	}
	if _, err := eval.Evaluate(s, a, mode); err != nil {
		return a.fail(KindUnrecognizedDirective, "%s", err)
	}
	return nil
}

// callMacro binds arguments then pushes a new frame and jumps to the macro
// body, matching execute.cpp's order: "evaluate" and "variable" arguments
// are evaluated, and "string" arguments unquoted, against the caller's
// frame; "define" arguments are bound as their raw text (after the caller's
// brace substitution) and so resolve inside the callee. Parameter names are
// bound inside the callee.
func (a *Assembler) callMacro(name string, macro *symtab.Macro, args []string) error {
	if len(args) != len(macro.Parameters) {
		return a.fail(KindArityMismatch, "%s: expected %d argument(s), got %d", name, len(macro.Parameters), len(args))
	}

	type bound struct {
		variable bool
		name     string
		text     string
		value    int64
	}
	var pending []bound

	for n, raw := range macro.Parameters {
		kind, pname := symtab.ParamKind(raw)
		switch kind {
		case "define":
			pending = append(pending, bound{name: pname, text: strings.TrimSpace(args[n])})
		case "string":
			text, err := a.textLiteral(strings.TrimSpace(args[n]))
			if err != nil {
				return a.fail(KindSyntax, "%s", err)
			}
			pending = append(pending, bound{name: pname, text: text})
		case "evaluate":
			v, err := eval.Evaluate(args[n], a, eval.Default)
			if err != nil {
				return a.fail(KindInvalidExpression, "%s", err)
			}
			pending = append(pending, bound{name: pname, text: strconv.FormatInt(v, 10)})
		case "variable":
			v, err := eval.Evaluate(args[n], a, eval.Default)
			if err != nil {
				return a.fail(KindInvalidExpression, "%s", err)
			}
			pending = append(pending, bound{variable: true, name: pname, value: v})
		default:
			return a.fail(KindFrameSpecifierMisuse, "unknown parameter kind %q", kind)
		}
	}

	frame := a.table.PushFrame(macro.Scoped)
	frame.IP = uint32(a.ip + 1)
	if macro.Scoped {
		a.table.PushScope(name)
	}
	a.macroCounter++
	if err := a.table.SetDefine("#", fmt.Sprintf("_%d", a.macroCounter), true); err != nil {
		return err
	}
	for _, p := range pending {
		if p.variable {
			if err := a.table.SetVariable(p.name, p.value, true); err != nil {
				return err
			}
			continue
		}
		if err := a.table.SetDefine(p.name, p.text, true); err != nil {
			return err
		}
	}

	a.ip = int(macro.IP)
	return nil
}

// splitArgs splits s on top-level commas, respecting nested parens and
// double-quoted strings (an argument may itself contain a call or a comma
// inside a quoted string).
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			cur.WriteByte(c)
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			inQuote = true
			cur.WriteByte(c)
		case c == '(' || c == '[':
			depth++
			cur.WriteByte(c)
		case c == ')' || c == ']':
			depth--
			cur.WriteByte(c)
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" || len(out) > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}
