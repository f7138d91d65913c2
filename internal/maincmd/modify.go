package maincmd

import (
	"context"

	"github.com/mna/mainer"
)

// Modify assembles args[0] against an existing output file named by
// -o/--output, writing only the bytes the program emits and leaving the
// rest of the file untouched.
func (c *Cmd) Modify(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return assembleFile(ctx, stdio, c, args[0], false)
}
