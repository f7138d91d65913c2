package maincmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mna/mainer"

	"github.com/retrobass/bass/lang/assembler"
	"github.com/retrobass/bass/lang/source"
)

// assembleFile loads sourceFile, pre-seeds -d/-c presets, and runs the
// three-phase assembler against the configured output target. create
// selects whether the output is truncated/created (true) or opened in
// place for a partial rewrite (false).
func assembleFile(ctx context.Context, stdio mainer.Stdio, c *Cmd, sourceFile string, create bool) error {
	start := time.Now()

	prog, fset, err := source.Load(sourceFile)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	a := assembler.New(prog, fset)
	a.SetTarget(c.Output, create)
	a.SetStrict(c.Strict)
	a.SetStderr(stdio.Stderr)

	for _, preset := range parsePresetList(c.Define) {
		value := preset.value
		if value == "" {
			value = "1"
		}
		a.PreDefine(preset.name, value)
	}
	for _, preset := range parsePresetList(c.Constant) {
		value := preset.value
		if value == "" {
			value = "1"
		}
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			err = fmt.Errorf("-c %s: %w", preset.name, err)
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
		a.PreConstant(preset.name, v)
	}

	err = a.Assemble()

	if c.Benchmark {
		fmt.Fprintf(stdio.Stderr, "%s: assembled in %s (%d warning(s))\n", sourceFile, time.Since(start), a.Warnings())
	}

	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	return nil
}

type preset struct {
	name  string
	value string
}

// parsePresetList splits a comma-separated "-d"/"-c" flag value into
// NAME[=VALUE] pairs. An empty list (flag not given) yields no presets.
func parsePresetList(list string) []preset {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	var out []preset
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if name, value, ok := strings.Cut(item, "="); ok {
			out = append(out, preset{name: strings.TrimSpace(name), value: strings.TrimSpace(value)})
		} else {
			out = append(out, preset{name: item})
		}
	}
	return out
}
