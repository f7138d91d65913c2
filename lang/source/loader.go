// Package source implements the preprocessor / statement loader: it
// reads a root source file, follows "include" directives, strips comments,
// joins explicit line continuations, and splits the result into the
// statement stream that lang/analyzer and lang/assembler operate on.
//
// Tokenizing raw source bytes into word-level tokens (as a general-purpose
// lexer would) is explicitly not this package's job — the assembler never
// needs anything finer than whole, whitespace-normalized statements, so this
// package stops there, matching the statement-granularity contract the rest
// of the pipeline (lang/ir, lang/analyzer) is built around.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retrobass/bass/lang/ir"
	"github.com/retrobass/bass/lang/token"
)

// ErrUnterminatedString is wrapped into the returned error when a quoted
// string is not closed before the end of a logical line.
var ErrUnterminatedString = errors.New("unterminated string")

// Load reads rootFilename and every file it includes (directly or
// transitively), returning the flattened, analyzed-ready instruction stream
// and the file set used to resolve FileNumber back to a path.
func Load(rootFilename string) (*ir.Program, *token.FileSet, error) {
	l := &loader{fset: token.NewFileSet(), open: make(map[string]bool)}
	if err := l.loadFile(rootFilename); err != nil {
		return nil, nil, err
	}
	return &l.prog, l.fset, nil
}

type loader struct {
	fset *token.FileSet
	open map[string]bool // absolute paths currently being read, for cycle detection
	prog ir.Program
}

func (l *loader) loadFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("bass: %s: %w", path, err)
	}
	if l.open[abs] {
		return fmt.Errorf("bass: include cycle detected: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bass: %s: file not found: %w", path, err)
	}

	l.open[abs] = true
	defer delete(l.open, abs)

	fileNumber := l.fset.Add(path)
	dir := filepath.Dir(path)

	lines := strings.Split(string(data), "\n")
	for i := 0; i < len(lines); {
		startLine := i + 1
		raw := strings.TrimRight(lines[i], "\r")
		i++

		// join explicit continuations: a line ending in a bare backslash
		// (after trailing whitespace) continues onto the next raw line.
		for strings.HasSuffix(strings.TrimRight(raw, " \t"), "\\") && i < len(lines) {
			raw = strings.TrimRight(strings.TrimRight(raw, " \t"), "\\")
			raw += " " + strings.TrimRight(lines[i], "\r")
			i++
		}

		stmts, err := splitStatements(raw)
		if err != nil {
			return fmt.Errorf("bass: %s:%d: %w", path, startLine, err)
		}

		for _, stmt := range stmts {
			if rest, ok := cutPrefix(stmt, "include "); ok {
				incPath, err := parseQuotedPath(rest)
				if err != nil {
					return fmt.Errorf("bass: %s:%d: %w", path, startLine, err)
				}
				if err := l.loadFile(filepath.Join(dir, incPath)); err != nil {
					return err
				}
				continue
			}
			l.prog.Instructions = append(l.prog.Instructions, ir.Instruction{
				Statement:  stmt,
				FileNumber: fileNumber,
				LineNumber: startLine,
			})
		}
	}

	return nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func parseQuotedPath(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("include: expected quoted filename, got: %s", s)
	}
	return s[1 : len(s)-1], nil
}

// splitStatements strips "//" comments (outside quotes), collapses runs of
// whitespace outside quotes to a single space, and splits the result on ";"
// outside quotes into zero or more trimmed statements.
func splitStatements(line string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)

	n := len(line)
	for i := 0; i < n; i++ {
		c := line[i]

		if inQuote {
			cur.WriteByte(c)
			if c == '"' {
				inQuote = false
			}
			continue
		}

		switch {
		case c == '"':
			inQuote = true
			cur.WriteByte(c)
		case c == '/' && i+1 < n && line[i+1] == '/':
			i = n // stop scanning this logical line, rest is a comment
		case c == ';':
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		case c == ' ' || c == '\t':
			if b := cur.String(); len(b) > 0 && b[len(b)-1] != ' ' {
				cur.WriteByte(' ')
			}
		default:
			cur.WriteByte(c)
		}
	}

	if inQuote {
		return nil, ErrUnterminatedString
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out, nil
}
