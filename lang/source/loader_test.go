package source_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrobass/bass/lang/source"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadStripsCommentsAndSplitsOnSemicolon(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.bass", "origin 0 // start here\ndb 1; db 2\n")

	prog, _, err := source.Load(path)
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 3)
	require.Equal(t, "origin 0", prog.Instructions[0].Statement)
	require.Equal(t, "db 1", prog.Instructions[1].Statement)
	require.Equal(t, "db 2", prog.Instructions[2].Statement)
}

func TestLoadCollapsesWhitespaceOutsideQuotes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.bass", "db   1,    2\n")

	prog, _, err := source.Load(path)
	require.NoError(t, err)
	require.Equal(t, "db 1, 2", prog.Instructions[0].Statement)
}

func TestLoadPreservesWhitespaceInsideQuotes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.bass", `db "a   b"`+"\n")

	prog, _, err := source.Load(path)
	require.NoError(t, err)
	require.Equal(t, `db "a   b"`, prog.Instructions[0].Statement)
}

func TestLoadJoinsExplicitLineContinuation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.bass", "db 1, \\\n2, 3\n")

	prog, _, err := source.Load(path)
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 1)
	require.Equal(t, "db 1, 2, 3", prog.Instructions[0].Statement)
}

func TestLoadFollowsIncludeAndRecordsLineNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "consts.bass", "constant FOO(1)\n")
	path := writeFile(t, dir, "main.bass", "include \"consts.bass\"\norigin 0\n")

	prog, fset, err := source.Load(path)
	require.NoError(t, err)
	require.Len(t, prog.Instructions, 2)
	require.Equal(t, "constant FOO(1)", prog.Instructions[0].Statement)
	require.Equal(t, "origin 0", prog.Instructions[1].Statement)
	require.Equal(t, 1, prog.Instructions[0].LineNumber)
	require.Contains(t, fset.Name(prog.Instructions[0].FileNumber), "consts.bass")
	require.Contains(t, fset.Name(prog.Instructions[1].FileNumber), "main.bass")
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.bass", "include \"b.bass\"\n")
	path := writeFile(t, dir, "b.bass", "include \"a.bass\"\n")

	_, _, err := source.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnterminatedString(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.bass", `db "unterminated`+"\n")

	_, _, err := source.Load(path)
	require.ErrorIs(t, err, source.ErrUnterminatedString)
}

func TestLoadMissingFileIsAnError(t *testing.T) {
	_, _, err := source.Load(filepath.Join(t.TempDir(), "missing.bass"))
	require.Error(t, err)
}
