package assembler_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/retrobass/bass/lang/assembler"
	"github.com/retrobass/bass/lang/source"
	"github.com/stretchr/testify/require"
)

// assembleSource writes src to a temp file, assembles it into a fresh
// target, and returns the target's bytes.
func assembleSource(t *testing.T, src string) []byte {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.bass")
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)

	a := assembler.New(prog, fset)
	target := filepath.Join(dir, "out.bin")
	a.SetTarget(target, true)
	a.SetStderr(&bytes.Buffer{})

	require.NoError(t, a.Assemble())

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	return got
}

// TestEndToEndScenarios exercises six literal end-to-end assembly
// scenarios: byte/word emission in both endians, a label reference, a
// constant, a while loop over a variable, and a repeated macro call.
func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []byte
	}{
		{
			name: "byte and word emission, lsb default",
			src:  "origin 0\ndb 1,2,3\ndw $1234\n",
			want: []byte{1, 2, 3, 0x34, 0x12},
		},
		{
			name: "msb endian",
			src:  "endian msb\norigin 0\ndw $1234\n",
			want: []byte{0x12, 0x34},
		},
		{
			name: "label reference",
			src:  "origin 0\nlabel:\ndw label\ndw label+4\n",
			want: []byte{0, 0, 4, 0},
		},
		{
			name: "constant",
			src:  "constant X($ab)\norigin 0\ndb X\n",
			want: []byte{0xab},
		},
		{
			name: "while loop over a variable",
			src:  "variable n(0)\norigin 0\nwhile n < 4 {\ndb n\nvariable n(n+1)\n}\n",
			want: []byte{0, 1, 2, 3},
		},
		{
			name: "macro call, repeated",
			src:  "macro emit(x) {\ndb x, x+1\n}\norigin 0\nemit(10)\nemit(20)\n",
			want: []byte{10, 11, 20, 21},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := assembleSource(t, tc.src)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestIfElseChainOnlyLastArmMatches(t *testing.T) {
	src := `
variable n(2)
origin 0
if n == 0 {
	db 100
} else if n == 1 {
	db 101
} else {
	db 102
}
`
	got := assembleSource(t, src)
	require.Equal(t, []byte{102}, got)
}

func TestRecursiveMacroCountdown(t *testing.T) {
	src := `
macro countdown(n) {
	db n
	if n > 0 {
		countdown({n}-1)
	}
}
origin 0
countdown(3)
`
	got := assembleSource(t, src)
	require.Equal(t, []byte{3, 2, 1, 0}, got)
}

func TestMapAndStringEmission(t *testing.T) {
	src := "map 'A', 0x41, 26\norigin 0\ndb \"HELLO\"\n"
	got := assembleSource(t, src)
	require.Equal(t, []byte{0x48, 0x45, 0x4C, 0x4C, 0x4F}, got)
}

func TestOriginReassemblyIsDeterministic(t *testing.T) {
	src := "origin 0\ndb 0\norigin 0\n"
	got1 := assembleSource(t, src)
	got2 := assembleSource(t, src)
	require.Equal(t, got1, got2)
}

func TestPushPullPCRoundTrip(t *testing.T) {
	src := `
origin 0
base 0x8000
push pc
origin 100
base 0x9000
pull pc
db origin
`
	got := assembleSource(t, src)
	require.Equal(t, []byte{0}, got)
}

func TestModifyModeLeavesSurroundingBytesUntouched(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "rom.bin")
	initial := []byte{0xff, 0xff, 0xff, 0xff, 0xff}
	require.NoError(t, os.WriteFile(target, initial, 0o644))

	src := "origin 2\ndb 0xAA\n"
	srcPath := filepath.Join(dir, "in.bass")
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)
	a := assembler.New(prog, fset)
	a.SetTarget(target, false)
	a.SetStderr(&bytes.Buffer{})
	require.NoError(t, a.Assemble())

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xff, 0xAA, 0xff, 0xff}, got)
}

func TestUnknownMacroArityMismatch(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.bass")
	src := "macro foo(a) {\ndb a\n}\norigin 0\nfoo(1,2)\n"
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)
	a := assembler.New(prog, fset)
	a.SetTarget(filepath.Join(dir, "out.bin"), true)
	a.SetStderr(&bytes.Buffer{})

	err = a.Assemble()
	require.Error(t, err)
}

func TestWarningDirectiveIsNonFatalByDefault(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.bass")
	src := "origin 0\nwarning \"deprecated opcode\"\ndb 1\n"
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)
	a := assembler.New(prog, fset)
	a.SetTarget(filepath.Join(dir, "out.bin"), true)
	a.SetStderr(&bytes.Buffer{})

	require.NoError(t, a.Assemble())
	require.Equal(t, 1, a.Warnings())
}

func TestStrictPromotesWarningsToErrors(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.bass")
	src := "origin 0\nwarning \"deprecated opcode\"\ndb 1\n"
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)
	a := assembler.New(prog, fset)
	a.SetTarget(filepath.Join(dir, "out.bin"), true)
	a.SetStderr(&bytes.Buffer{})
	a.SetStrict(true)

	require.Error(t, a.Assemble())
}

func TestPreDefineAndPreConstant(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.bass")
	src := "origin 0\ndb {GREETING_LEN}\ndb LEVEL\n"
	require.NoError(t, os.WriteFile(srcPath, []byte(src), 0o644))

	prog, fset, err := source.Load(srcPath)
	require.NoError(t, err)
	a := assembler.New(prog, fset)
	target := filepath.Join(dir, "out.bin")
	a.SetTarget(target, true)
	a.SetStderr(&bytes.Buffer{})
	a.PreDefine("GREETING_LEN", "5")
	a.PreConstant("LEVEL", 9)

	require.NoError(t, a.Assemble())
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, []byte{5, 9}, got)
}
