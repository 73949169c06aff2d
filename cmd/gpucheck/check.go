package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fxnlabs/gpucheck/internal/app"
	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runCheck builds the application graph, runs one check and tears the graph
// down again so the backend is released before the process exits.
func runCheck(c *cli.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runner *app.Runner
	fxApp := fx.New(
		app.Module(cfg, log, app.Output{W: c.App.Writer}),
		fx.Populate(&runner),
	)
	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	_, runErr := runner.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop application: %w", err))
	}
	return runErr
}
