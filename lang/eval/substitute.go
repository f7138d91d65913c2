package eval

import (
	"errors"
	"strings"
)

// Substitute performs the define-substitution pass: it scans s right-to-left
// for the innermost (non-nested) "{...}" span, replaces it with either
// "1"/"0" (for "{defined NAME}") or the define's value string, and rescans
// from scratch until no "{...}" remains. The result is confluent regardless
// of nesting or evaluation order because each rescan always picks the
// rightmost opening brace that has a closing brace after it, paired with
// the nearest such closing brace, which is the same span no matter how many
// substitutions already happened to its left.
func Substitute(s string, host Host) (string, error) {
	const maxDepth = 256
	for depth := 0; ; depth++ {
		if depth >= maxDepth {
			return "", errDefineRecursion
		}

		x, y := -1, -1
		for i := len(s) - 1; i >= 0; i-- {
			if s[i] == '}' {
				y = i
			}
			if s[i] == '{' && y > i {
				x = i
				break
			}
		}
		if x < 0 {
			return s, nil
		}

		name := strings.TrimSpace(s[x+1 : y])
		var replacement string
		if rest, ok := cutPrefix(name, "defined "); ok {
			_, known := host.FindDefine(strings.TrimSpace(rest))
			if known {
				replacement = "1"
			} else {
				replacement = "0"
			}
		} else if d, ok := host.FindDefine(name); ok {
			replacement = d
		} else {
			replacement = ""
		}

		s = s[:x] + replacement + s[y+1:]
	}
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

var errDefineRecursion = errors.New("define substitution exceeded recursion depth")
