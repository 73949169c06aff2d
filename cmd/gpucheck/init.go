package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fxnlabs/gpucheck/fixtures"
	"github.com/urfave/cli/v2"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a commented config file with the default settings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output",
				Value: "gpucheck.yaml",
				Usage: "Where to write the config file",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("output")
			flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if !c.Bool("force") {
				flags |= os.O_EXCL
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err != nil {
				return err
			}
			if _, err := f.Write(fixtures.ConfigTemplate); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
			return nil
		},
	}
}
