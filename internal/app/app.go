// Package app wires the pre-flight check into an fx application.
package app

import (
	"context"
	"io"

	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/fxnlabs/gpucheck/internal/diag"
	"github.com/fxnlabs/gpucheck/internal/gpu"
	"github.com/fxnlabs/gpucheck/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Output is where the report is written.
type Output struct {
	W io.Writer
}

// Module provides every component of a check run for cfg. log is supplied
// by the caller so failures before the graph is built are logged the same way.
func Module(cfg *config.Config, log *zap.Logger, out Output) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log, out),
		fx.Provide(
			NewManager,
			NewProber,
			metrics.NewRecorder,
			NewRenderer,
			NewReporter,
			NewRunner,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
}

// NewManager selects the configured backend and releases it on stop.
func NewManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	manager, err := gpu.NewManager(log.Named("gpu"), gpu.ManagerOptions{
		Backend:     cfg.Device.Backend,
		DeviceIndex: cfg.Device.Index,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return manager.Cleanup()
		},
	})
	return manager, nil
}

// NewProber returns the NVML driver prober as a diag.DriverProber.
func NewProber(log *zap.Logger) diag.DriverProber {
	return gpu.NewProber(log.Named("nvml"))
}

func NewRenderer(cfg *config.Config, out Output) (diag.Renderer, error) {
	return diag.NewRenderer(cfg.Report.Format, out.W, cfg.Report.Banner)
}

func NewReporter(cfg *config.Config, renderer diag.Renderer, prober diag.DriverProber, rec *metrics.Recorder, log *zap.Logger) *diag.Reporter {
	return diag.NewReporter(diag.Options{
		Extended:     cfg.Report.Level == config.LevelExtended,
		ExtraEnvVars: cfg.Report.ExtraEnvVars,
		MatrixSize:   cfg.Benchmark.Size,
		Seed:         cfg.Benchmark.Seed,
	}, renderer, log.Named("diag"),
		diag.WithProber(prober),
		diag.WithRecorder(rec),
	)
}
