package assembler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/retrobass/bass/internal/sink"
	archpkg "github.com/retrobass/bass/lang/arch"
	"github.com/retrobass/bass/lang/eval"
)

var (
	reLabelOnly  = regexp.MustCompile(`^(\S+):$`)
	reConstant   = regexp.MustCompile(`^constant (\S+)\((.*)\)$`)
	reOrigin     = regexp.MustCompile(`^origin (.+)$`)
	reBase       = regexp.MustCompile(`^base (.+)$`)
	reEndian     = regexp.MustCompile(`^endian (lsb|msb)$`)
	rePush       = regexp.MustCompile(`^push (.+)$`)
	rePull       = regexp.MustCompile(`^pull (.+)$`)
	reInsert     = regexp.MustCompile(`^insert (.+)$`)
	reFill       = regexp.MustCompile(`^fill (.+)$`)
	reMap        = regexp.MustCompile(`^map (.+)$`)
	reData       = regexp.MustCompile(`^(db|dw|dl|dd|dq) (.+)$`)
	rePrint      = regexp.MustCompile(`^print (.+)$`)
	reNotice     = regexp.MustCompile(`^notice (.+)$`)
	reWarning    = regexp.MustCompile(`^warning (.+)$`)
	reErrorStmt  = regexp.MustCompile(`^error (.+)$`)
	reOutput     = regexp.MustCompile(`^output (.+)$`)
	reArch       = regexp.MustCompile(`^arch (\S+)$`)
)

var dataWidth = map[string]int{"db": 1, "dw": 2, "dl": 3, "dd": 4, "dq": 8}

// directive matches and executes one directive against a fully
// substituted, KindGeneric statement. ok is false when nothing matched, so
// the caller can fall through to the architecture table and then a bare
// expression.
func (a *Assembler) directive(s string) (ok bool, err error) {
	switch {
	case reLabelOnly.MatchString(s):
		m := reLabelOnly.FindStringSubmatch(s)
		return true, a.defineLabel(m[1])

	case s == "-" || s == "+":
		return true, a.defineLabel(s)

	case reConstant.MatchString(s):
		m := reConstant.FindStringSubmatch(s)
		v, err := eval.Evaluate(m[2], a, eval.Default)
		if err != nil {
			return true, a.fail(KindInvalidExpression, "%s", err)
		}
		if err := a.table.SetConstant(m[1], v, a.phase == PhaseWrite); err != nil {
			return true, a.fail(KindDuplicateConstant, "%s", err)
		}
		return true, nil

	case reOrigin.MatchString(s):
		m := reOrigin.FindStringSubmatch(s)
		v, err := eval.Evaluate(m[1], a, eval.Default)
		if err != nil {
			return true, a.fail(KindInvalidExpression, "%s", err)
		}
		a.origin = v
		return true, nil

	case reBase.MatchString(s):
		m := reBase.FindStringSubmatch(s)
		v, err := eval.Evaluate(m[1], a, eval.Default)
		if err != nil {
			return true, a.fail(KindInvalidExpression, "%s", err)
		}
		a.base = v - a.origin
		return true, nil

	case reEndian.MatchString(s):
		m := reEndian.FindStringSubmatch(s)
		if m[1] == "msb" {
			a.endian = MSB
		} else {
			a.endian = LSB
		}
		return true, nil

	case rePush.MatchString(s):
		m := rePush.FindStringSubmatch(s)
		return true, a.push(splitArgs(m[1]))

	case rePull.MatchString(s):
		m := rePull.FindStringSubmatch(s)
		return true, a.pull(splitArgs(m[1]))

	case reInsert.MatchString(s):
		m := reInsert.FindStringSubmatch(s)
		return true, a.insert(splitArgs(m[1]))

	case reFill.MatchString(s):
		m := reFill.FindStringSubmatch(s)
		return true, a.fill(splitArgs(m[1]))

	case reMap.MatchString(s):
		m := reMap.FindStringSubmatch(s)
		return true, a.mapChar(splitArgs(m[1]))

	case reData.MatchString(s):
		m := reData.FindStringSubmatch(s)
		return true, a.emitData(m[1], splitArgs(m[2]))

	case rePrint.MatchString(s):
		m := rePrint.FindStringSubmatch(s)
		return true, a.printList(splitArgs(m[1]))

	case reNotice.MatchString(s):
		m := reNotice.FindStringSubmatch(s)
		text, err := a.textOrValue(m[1])
		if err != nil {
			return true, err
		}
		a.notice("%s", text)
		return true, nil

	case reWarning.MatchString(s):
		m := reWarning.FindStringSubmatch(s)
		text, err := a.textOrValue(m[1])
		if err != nil {
			return true, err
		}
		return true, a.warning(KindSyntax, "%s", text)

	case reErrorStmt.MatchString(s):
		m := reErrorStmt.FindStringSubmatch(s)
		if a.phase != PhaseWrite {
			return true, nil
		}
		text, err := a.textOrValue(m[1])
		if err != nil {
			return true, err
		}
		return true, a.fail(KindSyntax, "%s", text)

	case reOutput.MatchString(s):
		m := reOutput.FindStringSubmatch(s)
		return true, a.output(splitArgs(m[1]))

	case reArch.MatchString(s):
		m := reArch.FindStringSubmatch(s)
		return true, a.loadArch(m[1])
	}
	return false, nil
}

func (a *Assembler) push(names []string) error {
	for _, n := range names {
		switch strings.TrimSpace(n) {
		case "origin":
			a.pushOrigin = append(a.pushOrigin, a.origin)
		case "base":
			a.pushBase = append(a.pushBase, a.base)
		case "pc":
			a.pushOrigin = append(a.pushOrigin, a.origin)
			a.pushBase = append(a.pushBase, a.base)
		default:
			return a.fail(KindFrameSpecifierMisuse, "push: unknown target %q", n)
		}
	}
	return nil
}

func (a *Assembler) pull(names []string) error {
	for _, n := range names {
		switch strings.TrimSpace(n) {
		case "origin":
			if len(a.pushOrigin) == 0 {
				return a.fail(KindFrameSpecifierMisuse, "pull origin: stack empty")
			}
			a.origin = a.pushOrigin[len(a.pushOrigin)-1]
			a.pushOrigin = a.pushOrigin[:len(a.pushOrigin)-1]
		case "base":
			if len(a.pushBase) == 0 {
				return a.fail(KindFrameSpecifierMisuse, "pull base: stack empty")
			}
			a.base = a.pushBase[len(a.pushBase)-1]
			a.pushBase = a.pushBase[:len(a.pushBase)-1]
		case "pc":
			if len(a.pushBase) == 0 || len(a.pushOrigin) == 0 {
				return a.fail(KindFrameSpecifierMisuse, "pull pc: stack empty")
			}
			a.base = a.pushBase[len(a.pushBase)-1]
			a.pushBase = a.pushBase[:len(a.pushBase)-1]
			a.origin = a.pushOrigin[len(a.pushOrigin)-1]
			a.pushOrigin = a.pushOrigin[:len(a.pushOrigin)-1]
		default:
			return a.fail(KindFrameSpecifierMisuse, "pull: unknown target %q", n)
		}
	}
	return nil
}

// insert reads raw bytes from an external file and emits them, optionally
// naming the insertion point and its length as constants.
func (a *Assembler) insert(args []string) error {
	if len(args) == 0 {
		return a.fail(KindSyntax, "insert: missing filename")
	}

	var name string
	rest := args
	if !strings.HasPrefix(strings.TrimSpace(args[0]), `"`) {
		name = strings.TrimSpace(args[0])
		rest = args[1:]
	}
	if len(rest) == 0 {
		return a.fail(KindSyntax, "insert: missing filename")
	}

	path, err := a.textLiteral(rest[0])
	if err != nil {
		return a.fail(KindSyntax, "%s", err)
	}
	path = a.resolvePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(KindIOFailure, "insert: %s", err)
	}

	off := int64(0)
	if len(rest) > 1 {
		v, err := eval.Evaluate(rest[1], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		off = v
	}
	length := int64(len(data)) - off
	if len(rest) > 2 {
		v, err := eval.Evaluate(rest[2], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		length = v
	}
	if off < 0 || off > int64(len(data)) || length < 0 || off+length > int64(len(data)) {
		return a.fail(KindSyntax, "insert: offset/length out of range for %q", path)
	}

	if name != "" {
		if err := a.table.SetConstant(name, a.PC(), a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
		if err := a.table.SetConstant(name+".size", length, a.phase == PhaseWrite); err != nil {
			return a.fail(KindDuplicateConstant, "%s", err)
		}
	}

	for _, b := range data[off : off+length] {
		if err := a.EmitWidth(int64(b), 1); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) fill(args []string) error {
	if len(args) == 0 {
		return a.fail(KindSyntax, "fill: missing count")
	}
	n, err := eval.Evaluate(args[0], a, eval.Default)
	if err != nil {
		return a.fail(KindInvalidExpression, "%s", err)
	}
	var b int64
	if len(args) > 1 {
		v, err := eval.Evaluate(args[1], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		b = v
	}
	for i := int64(0); i < n; i++ {
		if err := a.EmitWidth(b, 1); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) mapChar(args []string) error {
	if len(args) == 0 {
		return a.fail(KindSyntax, "map: missing character")
	}
	c, err := eval.Evaluate(args[0], a, eval.Default)
	if err != nil {
		return a.fail(KindInvalidExpression, "%s", err)
	}
	value := c
	if len(args) > 1 {
		v, err := eval.Evaluate(args[1], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		value = v
	}
	length := int64(1)
	if len(args) > 2 {
		v, err := eval.Evaluate(args[2], a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		length = v
	}
	for k := int64(0); k < length; k++ {
		idx := c + k
		if idx < 0 || idx > 255 {
			return a.fail(KindOutOfRangeField, "map: character index %d out of range", idx)
		}
		a.stringTable[idx] = value + k
	}
	return nil
}

func (a *Assembler) emitData(op string, args []string) error {
	width := dataWidth[op]
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) {
			text, err := a.textLiteral(arg)
			if err != nil {
				return a.fail(KindSyntax, "%s", err)
			}
			for i := 0; i < len(text); i++ {
				if err := a.EmitWidth(a.stringTable[text[i]], width); err != nil {
					return err
				}
			}
			continue
		}
		v, err := eval.Evaluate(arg, a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		if err := a.EmitWidth(v, width); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) printList(args []string) error {
	if a.phase != PhaseWrite {
		return nil
	}
	var b strings.Builder
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) {
			text, err := a.textLiteral(arg)
			if err != nil {
				return a.fail(KindSyntax, "%s", err)
			}
			b.WriteString(text)
			continue
		}
		v, err := eval.Evaluate(arg, a, eval.Default)
		if err != nil {
			return a.fail(KindInvalidExpression, "%s", err)
		}
		fmt.Fprintf(&b, "%d", v)
	}
	fmt.Fprintln(a.stderr, b.String())
	return nil
}

// textOrValue supports "notice"/"warning"/"error" argument lists that may
// mix quoted text and expressions, concatenated, matching print's grammar.
func (a *Assembler) textOrValue(argList string) (string, error) {
	var b strings.Builder
	for _, arg := range splitArgs(argList) {
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) {
			text, err := a.textLiteral(arg)
			if err != nil {
				return "", a.fail(KindSyntax, "%s", err)
			}
			b.WriteString(text)
			continue
		}
		v, err := eval.Evaluate(arg, a, eval.Default)
		if err != nil {
			return "", a.fail(KindInvalidExpression, "%s", err)
		}
		fmt.Fprintf(&b, "%d", v)
	}
	return b.String(), nil
}

func (a *Assembler) output(args []string) error {
	if len(args) == 0 {
		return a.fail(KindSyntax, "output: missing filename")
	}
	path, err := a.textLiteral(args[0])
	if err != nil {
		return a.fail(KindSyntax, "%s", err)
	}
	create := a.targetCreate
	if len(args) > 1 && strings.TrimSpace(args[1]) == "create" {
		create = true
	}
	a.target = a.resolvePath(path)
	a.targetCreate = create
	if a.phase != PhaseWrite {
		return nil
	}
	if a.sink != nil {
		a.sink.Close()
	}
	s, err := sink.Open(a.target, create)
	if err != nil {
		return a.fail(KindIOFailure, "output: %s", err)
	}
	a.sink = s
	return nil
}

func (a *Assembler) loadArch(name string) error {
	path, err := a.textLiteral(name)
	if err != nil {
		return a.fail(KindSyntax, "%s", err)
	}
	path = a.resolvePath(path)
	t, err := archpkg.Load(path)
	if err != nil {
		return a.fail(KindIOFailure, "arch: %s", err)
	}
	a.arch = t
	return nil
}

// resolvePath resolves a path relative to the directory of the currently
// executing source file, matching include's own resolution rule.
func (a *Assembler) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	dir := filepath.Dir(a.fset.Name(a.curFile))
	return filepath.Join(dir, path)
}

// textLiteral parses a double-quoted string literal, applying the
// \s \d \b \n \\ escapes.
func (a *Assembler) textLiteral(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("expected quoted string, got: %s", s)
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		if body[i] != '\\' || i+1 >= len(body) {
			b.WriteByte(body[i])
			continue
		}
		i++
		switch body[i] {
		case 's':
			b.WriteByte('\'')
		case 'd':
			b.WriteByte('"')
		case 'b':
			b.WriteByte(';')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("unrecognized string escape: \\%c", body[i])
		}
	}
	return b.String(), nil
}
