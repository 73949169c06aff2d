package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/fxnlabs/gpucheck/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	var rootLogger *zap.Logger
	app := newApp(os.Stdout, os.Stderr, &rootLogger)

	if err := app.Run(os.Args); err != nil {
		if rootLogger != nil {
			rootLogger.Fatal("GPU check failed", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newApp builds the CLI. The root logger is stored in *rootLogger once the
// configuration has been loaded.
func newApp(stdout, stderr io.Writer, rootLogger **zap.Logger) *cli.App {
	var cfg *config.Config

	return &cli.App{
		Name:      "gpucheck",
		Usage:     "Pre-flight GPU diagnostics for ML training hosts",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     checkFlags(),
		Before: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c)
			if err != nil {
				return err
			}
			zapLogger, err := logger.New(cfg.Logger.Verbosity, cfg.Logger.Encoding)
			if err != nil {
				return err
			}
			*rootLogger = zapLogger.Named("gpucheck")
			return nil
		},
		After: func(c *cli.Context) error {
			if *rootLogger != nil {
				_ = (*rootLogger).Sync()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return runCheck(c, cfg, *rootLogger)
		},
		Commands: []*cli.Command{
			initCommand(),
		},
	}
}
