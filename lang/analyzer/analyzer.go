// Package analyzer implements a single pass over the instruction stream
// that recognizes the small set of structured block constructs (free
// blocks, scope blocks, label blocks, macro definitions, if/else chains,
// while loops), tags each opening/closing Instruction with its ir.Kind, and
// patches the forward (and, for while loops, backward) jump targets that
// lang/assembler's executor later follows directly instead of re-parsing
// text.
package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/retrobass/bass/lang/ir"
)

var (
	reScope  = regexp.MustCompile(`^scope(?: (.+))? \{$`)
	reMacro  = regexp.MustCompile(`^(global )?macro (.+)\((.*)\) \{$`)
	reLabel  = regexp.MustCompile(`^(\S+:|-|\+) \{$`)
	reIf     = regexp.MustCompile(`^if (.+) \{$`)
	reElseIf = regexp.MustCompile(`^\} else if (.+) \{$`)
	reElse   = regexp.MustCompile(`^\} else \{$`)
	reWhile  = regexp.MustCompile(`^while (.+) \{$`)
)

type blockKind uint8

const (
	blockFree blockKind = iota
	blockScope
	blockLabel
	blockMacro
	blockIf
	blockWhile
)

type blockEntry struct {
	ip   int // index of the opening instruction
	kind blockKind
}

// Analyze rewrites prog.Instructions in place. It returns an error on
// unmatched braces; on success, the block stack is empty and every
// control-flow opener has an IP pointing to an instruction index >= its
// own index.
func Analyze(prog *ir.Program) error {
	var stack []blockEntry

	prog2 := prog.Instructions
	for ip := 0; ip < len(prog2); ip++ {
		i := &prog2[ip]
		s := i.Statement

		switch {
		case s == "{":
			stack = append(stack, blockEntry{ip, blockFree})
			i.Kind = ir.KindBlockOpen

		case s == "}" && top(stack) == blockFree:
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindBlockClose

		case reScope.MatchString(s):
			stack = append(stack, blockEntry{ip, blockScope})
			i.Kind = ir.KindScopeOpen

		case s == "}" && top(stack) == blockScope:
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindScopeClose

		case reMacro.MatchString(s):
			stack = append(stack, blockEntry{ip, blockMacro})
			i.Kind = ir.KindMacroOpen

		case s == "}" && top(stack) == blockMacro:
			opener := stack[len(stack)-1].ip
			prog2[opener].IP = uint32(ip + 1)
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindMacroClose

		case reLabel.MatchString(s):
			stack = append(stack, blockEntry{ip, blockLabel})
			i.Kind = ir.KindLabelBlockOpen

		case s == "}" && top(stack) == blockLabel:
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindLabelBlockClose

		case reIf.MatchString(s):
			stack = append(stack, blockEntry{ip, blockIf})
			i.Kind = ir.KindIfOpen

		case reElseIf.MatchString(s):
			if len(stack) == 0 || top(stack) != blockIf {
				return fmt.Errorf("bass: %d: else if without matching if", ip)
			}
			top := &stack[len(stack)-1]
			prog2[top.ip].IP = uint32(ip)
			top.ip = ip
			i.Kind = ir.KindElseIf

		case reElse.MatchString(s):
			if len(stack) == 0 || top(stack) != blockIf {
				return fmt.Errorf("bass: %d: else without matching if", ip)
			}
			top := &stack[len(stack)-1]
			prog2[top.ip].IP = uint32(ip)
			top.ip = ip
			i.Kind = ir.KindElse

		case s == "}" && top(stack) == blockIf:
			entry := stack[len(stack)-1]
			prog2[entry.ip].IP = uint32(ip)
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindEndIf

		case reWhile.MatchString(s):
			stack = append(stack, blockEntry{ip, blockWhile})
			i.Kind = ir.KindWhileOpen

		case s == "}" && top(stack) == blockWhile:
			opener := stack[len(stack)-1].ip
			prog2[opener].IP = uint32(ip + 1)
			i.IP = uint32(opener)
			stack = stack[:len(stack)-1]
			i.Kind = ir.KindEndWhile

		case s == "}":
			return fmt.Errorf("bass: %d: } without matching {", ip)

		default:
			i.Kind = ir.KindGeneric
		}
	}

	if len(stack) != 0 {
		return fmt.Errorf("bass: unterminated block, %d block(s) still open", len(stack))
	}
	return nil
}

// top returns the kind of the innermost open block, or a sentinel that
// matches nothing if the stack is empty.
func top(stack []blockEntry) blockKind {
	if len(stack) == 0 {
		return blockKind(255)
	}
	return stack[len(stack)-1].kind
}

// Condition extracts the predicate text from an "if"/"else if"/"while"
// statement, trimming the surrounding keyword and brace. Exported for
// lang/assembler, which re-derives the predicate from Statement rather than
// storing it separately on Instruction.
func Condition(kind ir.Kind, statement string) string {
	var m []string
	switch kind {
	case ir.KindIfOpen:
		m = reIf.FindStringSubmatch(statement)
	case ir.KindElseIf:
		m = reElseIf.FindStringSubmatch(statement)
	case ir.KindWhileOpen:
		m = reWhile.FindStringSubmatch(statement)
	}
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
