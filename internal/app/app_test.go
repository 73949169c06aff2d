package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/fxnlabs/gpucheck/internal/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Report.Format = config.FormatJSON
	cfg.Device.Backend = "cpu"
	cfg.Benchmark.Size = 16
	cfg.Benchmark.Seed = 1
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "gpucheck.prom")
	return cfg
}

func TestModule_RunsCheckOnCPU(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	var runner *Runner

	app := fxtest.New(t,
		Module(cfg, zap.NewNop(), Output{W: &out}),
		fx.Populate(&runner),
	)
	app.RequireStart()
	defer app.RequireStop()

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Benchmark)
	assert.Equal(t, "cpu", report.Runtime.Backend)

	var decoded diag.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 16, decoded.Benchmark.Size)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "gpucheck_matmul_size 16")
	assert.Contains(t, string(prom), "gpucheck_device_available 0")
}

func TestModule_TextReportWithoutTextfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.Format = config.FormatText
	cfg.Metrics.Textfile = ""
	var out bytes.Buffer
	var runner *Runner

	app := fxtest.New(t, Module(cfg, zap.NewNop(), Output{W: &out}), fx.Populate(&runner))
	app.RequireStart()
	defer app.RequireStop()

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "GPU test completed.")
}

func TestModule_UnknownBackendFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Backend = "metal"
	var runner *Runner

	app := fx.New(Module(cfg, zap.NewNop(), Output{W: &bytes.Buffer{}}), fx.Populate(&runner))
	assert.ErrorContains(t, app.Err(), "unknown backend")
}

func TestRunner_TextfileErrorIsReported(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "missing", "dir", "gpucheck.prom")
	var runner *Runner

	app := fxtest.New(t, Module(cfg, zap.NewNop(), Output{W: &bytes.Buffer{}}), fx.Populate(&runner))
	app.RequireStart()
	defer app.RequireStop()

	report, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "write metrics textfile")
	assert.NotNil(t, report.Benchmark, "check itself succeeded")
}
