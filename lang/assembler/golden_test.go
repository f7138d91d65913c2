package assembler_test

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/retrobass/bass/internal/filetest"
	"github.com/retrobass/bass/lang/assembler"
	"github.com/retrobass/bass/lang/source"
	"github.com/stretchr/testify/require"
)

var testUpdateGoldenTests = flag.Bool("test.update-golden-tests", false, "update lang/assembler golden files")

// TestGolden assembles every fixture under testdata/golden against the
// shared "toy.table" architecture and diffs a hex dump of the resulting
// bytes against its .want file, exercising the architecture encoder
// end-to-end: operand slots, bit-field packing, and a forward label
// reference through an architecture pattern.
func TestGolden(t *testing.T) {
	const dir = "testdata/golden"
	for _, fi := range filetest.SourceFiles(t, dir, ".bass") {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			srcPath := filepath.Join(dir, fi.Name())
			prog, fset, err := source.Load(srcPath)
			require.NoError(t, err)

			tmp := t.TempDir()
			target := filepath.Join(tmp, "out.bin")

			a := assembler.New(prog, fset)
			a.SetTarget(target, true)
			a.SetStderr(&bytes.Buffer{})
			require.NoError(t, a.Assemble())

			got, err := os.ReadFile(target)
			require.NoError(t, err)

			filetest.DiffOutput(t, fi, hexDump(got), dir, testUpdateGoldenTests)
		})
	}
}

func hexDump(b []byte) string {
	var buf bytes.Buffer
	for i, c := range b {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%02X", c)
	}
	buf.WriteByte('\n')
	return buf.String()
}
