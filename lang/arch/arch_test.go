package arch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/retrobass/bass/lang/arch"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.table")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCallFunctionDispatchesDeclaredFunction(t *testing.T) {
	path := writeTable(t, `
function hi(x) = (x >> 8) & 0xff
function lo(x) = x & 0xff

nop
  db 0x00
`)
	table, err := arch.Load(path)
	require.NoError(t, err)

	v, ok, err := table.CallFunction("hi", []int64{0x1234})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0x12), v)

	v, ok, err = table.CallFunction("lo", []int64{0x1234})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0x34), v)
}

func TestCallFunctionUnknownNameOrArityReturnsNotOK(t *testing.T) {
	path := writeTable(t, `
function hi(x) = (x >> 8) & 0xff

nop
  db 0x00
`)
	table, err := arch.Load(path)
	require.NoError(t, err)

	_, ok, err := table.CallFunction("lo", []int64{1})
	require.NoError(t, err)
	require.False(t, ok)

	// Same name, wrong arity: a declaration's arity is part of its identity,
	// the same way the rest of the table format overloads on operand count.
	_, ok, err = table.CallFunction("hi", []int64{1, 2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCallFunctionComposesOtherDeclaredFunctions(t *testing.T) {
	path := writeTable(t, `
function lo(x) = x & 0xff
function twice(x) = lo(x) + lo(x)

nop
  db 0x00
`)
	table, err := arch.Load(path)
	require.NoError(t, err)

	v, ok, err := table.CallFunction("twice", []int64{0x1201})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(0x02), v)
}

func TestCallFunctionSelfReferenceErrorsInsteadOfLoopingForever(t *testing.T) {
	path := writeTable(t, `
function loop(x) = loop(x)

nop
  db 0x00
`)
	table, err := arch.Load(path)
	require.NoError(t, err)

	_, ok, err := table.CallFunction("loop", []int64{1})
	require.True(t, ok)
	require.Error(t, err)
}

func TestMatchStillWorksAlongsideFunctionDeclarations(t *testing.T) {
	path := writeTable(t, `
function hi(x) = (x >> 8) & 0xff

lda %1
  db 0x01
  db %1
`)
	table, err := arch.Load(path)
	require.NoError(t, err)

	p, captures, ok := table.Match("lda 0x42")
	require.True(t, ok)
	require.Equal(t, []string{"0x42"}, captures)
	require.NotNil(t, p)
}
