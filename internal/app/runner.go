package app

import (
	"context"
	"errors"

	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/fxnlabs/gpucheck/internal/diag"
	"github.com/fxnlabs/gpucheck/internal/gpu"
	"github.com/fxnlabs/gpucheck/internal/metrics"
	"go.uber.org/zap"
)

// Runner performs one check run.
type Runner struct {
	cfg      *config.Config
	manager  *gpu.Manager
	reporter *diag.Reporter
	recorder *metrics.Recorder
	log      *zap.Logger
}

func NewRunner(cfg *config.Config, manager *gpu.Manager, reporter *diag.Reporter, rec *metrics.Recorder, log *zap.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		manager:  manager,
		reporter: reporter,
		recorder: rec,
		log:      log.Named("runner"),
	}
}

// Run executes the check against the managed backend and writes the
// metrics textfile when one is configured. The textfile is written even
// when the check fails.
func (r *Runner) Run(ctx context.Context) (*diag.Report, error) {
	r.log.Debug("starting check",
		zap.String("backend", r.manager.GetBackendType()),
		zap.String("level", r.cfg.Report.Level),
		zap.Int("size", r.cfg.Benchmark.Size))

	report, err := r.reporter.Run(ctx, r.manager.GetBackend())

	if path := r.cfg.Metrics.Textfile; path != "" {
		if werr := r.recorder.WriteTextfile(path); werr != nil {
			err = errors.Join(err, werr)
		} else {
			r.log.Info("wrote metrics textfile", zap.String("path", path))
		}
	}
	return report, err
}
