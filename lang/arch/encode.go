package arch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/retrobass/bass/lang/eval"
)

// Host is everything Execute needs from the assembler: expression
// resolution (via eval.Host) plus the ability to emit width-byte integers
// and to know whether out-of-range fields should be fatal.
type Host interface {
	eval.Host
	EmitWidth(value int64, width int) error
	Strict() bool
	ReportOutOfRange(format string, args ...any) error
}

var (
	reBitField = regexp.MustCompile(`^%(\d+)\s*=\s*(.+)$`)
	reDataLine = regexp.MustCompile(`^(db|dw|dl|dd|dq)\s+(.+)$`)
	reSlotRef  = regexp.MustCompile(`%(\d+)`)
)

var lineWidth = map[string]int{"db": 1, "dw": 2, "dl": 3, "dd": 4, "dq": 8}

// Execute runs every encoder line of p against the matched operand
// captures: db/dw/dl/dd/dq lines emit bytes immediately; "%N = EXPR" lines
// pack N low bits of EXPR into a running composite-word bit buffer, MSB
// first overall. The buffer is flushed as whole bytes only at the end of
// the pattern, after every db/dw/... line has already emitted; a total bit
// count that is not a multiple of 8 is an error.
func Execute(p *Pattern, captures []string, host Host) error {
	var bits []bool

	for _, raw := range p.encoders {
		if m := reBitField.FindStringSubmatch(raw); m != nil {
			width, _ := strconv.Atoi(m[1])
			expr := substituteSlots(m[2], captures)
			v, err := eval.Evaluate(expr, host, eval.Default)
			if err != nil {
				return err
			}
			if err := checkRange(host, v, width); err != nil {
				return err
			}
			for i := width - 1; i >= 0; i-- {
				bits = append(bits, (v>>uint(i))&1 != 0)
			}
			continue
		}

		if m := reDataLine.FindStringSubmatch(raw); m != nil {
			width := lineWidth[m[1]]
			list := substituteSlots(m[2], captures)
			for _, arg := range splitTop(list) {
				v, err := eval.Evaluate(arg, host, eval.Default)
				if err != nil {
					return err
				}
				if err := host.EmitWidth(v, width); err != nil {
					return err
				}
			}
			continue
		}

		return fmt.Errorf("arch: invalid encoder line: %s", raw)
	}

	if len(bits)%8 != 0 {
		return fmt.Errorf("arch: composite word left %d bit(s) unflushed", len(bits)%8)
	}
	for i := 0; i < len(bits); i += 8 {
		var b int64
		for k := 0; k < 8; k++ {
			b = b<<1 | boolInt(bits[i+k])
		}
		if err := host.EmitWidth(b, 1); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(host Host, v int64, width int) error {
	max := int64(1) << uint(width)
	if v >= 0 && v < max {
		return nil
	}
	// allow the sign-extended negative form of a width-bit field
	if v < 0 && v>>uint(width) == -1 {
		return nil
	}
	if host.Strict() {
		return fmt.Errorf("arch: value %d does not fit in a %d-bit field", v, width)
	}
	return host.ReportOutOfRange("arch: value %d truncated to %d bits", v, width)
}

// substituteSlots replaces %1, %2, ... with the corresponding captured
// operand text, parenthesized. The slot pattern matches the whole digit
// run, so "%10" is slot 10, never slot 1 followed by "0"; a slot number
// with no capture is left as written.
func substituteSlots(expr string, captures []string) string {
	return reSlotRef.ReplaceAllStringFunc(expr, func(tok string) string {
		n, _ := strconv.Atoi(tok[1:])
		if n < 1 || n > len(captures) {
			return tok
		}
		return "(" + captures[n-1] + ")"
	})
}

// splitTop splits s on commas outside parentheses, so a comma inside an
// operand capture (parenthesized by substituteSlots) or inside a function
// call's argument list does not split it.
func splitTop(s string) []string {
	var out []string
	depth := 0
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '(':
			depth++
			cur.WriteByte(c)
		case ')':
			depth--
			cur.WriteByte(c)
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				continue
			}
			cur.WriteByte(c)
		default:
			cur.WriteByte(c)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
