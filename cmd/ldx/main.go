package main

import (
	"context"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/xo65/ldx/linker"
)

func main() {
	app := &cli.Command{
		Name:        "ldx",
		Description: "ldx links xo65 object files into raw memory images",
		Flags: []*cli.Flag{
			cli.NewFlag("config,C", "", "linker script file"),
			cli.NewFlag("output,o", "a.out", "main output file"),
			cli.NewFlag("map,m", "", "write a link map to the file"),
		},
		Action: linkAct,
		Args:   cli.Args{},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func linkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	config := c.String("config")
	if config == "" {
		return errors.New("linker script expected (-C)")
	}

	if len(c.Args) == 0 {
		return errors.New("at least one object file expected")
	}

	res, err := linker.LinkFiles(ctx, config, c.String("output"), c.Args)
	if err != nil {
		return errors.Wrap(err, "link")
	}

	for _, out := range res.Outputs {
		err = os.WriteFile(out.Path, out.Body, 0o644)
		if err != nil {
			return errors.Wrap(err, "write output %v", out.Path)
		}
	}

	if path := c.String("map"); path != "" {
		err = os.WriteFile(path, res.AppendMap(nil), 0o644)
		if err != nil {
			return errors.Wrap(err, "write map %v", path)
		}
	}

	return nil
}
