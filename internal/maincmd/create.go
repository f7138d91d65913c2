package maincmd

import (
	"context"

	"github.com/mna/mainer"
)

// Create assembles args[0], truncating or creating the output file named
// by -o/--output.
func (c *Cmd) Create(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return assembleFile(ctx, stdio, c, args[0], true)
}
