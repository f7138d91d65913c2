package eval

// Evaluate performs full evaluation of an expression string: define
// substitution, parsing, and tree evaluation, in that order (substitution
// must run before parsing since it can rewrite arbitrary text, including
// introducing or removing whole subexpressions).
func Evaluate(expr string, host Host, mode Mode) (int64, error) {
	substituted, err := Substitute(expr, host)
	if err != nil {
		return 0, err
	}
	node, err := Parse(substituted)
	if err != nil {
		return 0, err
	}
	return node.Eval(host, mode)
}
