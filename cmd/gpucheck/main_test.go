package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxnlabs/gpucheck/fixtures"
	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/fxnlabs/gpucheck/internal/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	var log *zap.Logger
	err := newApp(&stdout, &stderr, &log).Run(append([]string{"gpucheck"}, args...))
	return stdout.String(), err
}

func TestCheck_CPUJSON(t *testing.T) {
	out, err := run(t, "--backend", "cpu", "--size", "8", "--seed", "5", "--format", "json", "--verbosity", "error")
	require.NoError(t, err)

	var report diag.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "cpu", report.Runtime.Backend)
	require.NotNil(t, report.Benchmark)
	assert.Equal(t, 8, report.Benchmark.Size)
	assert.Equal(t, uint64(5), report.Benchmark.Seed)
	assert.Contains(t, report.Benchmark.Label, "host CPU run")

	assert.False(t, report.Runtime.DeviceAvailable)
	require.NotNil(t, report.Device)
	assert.True(t, report.Device.Host)
	assert.Equal(t, "host", report.Device.Tier)
}

func TestCheck_EnvOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpucheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  backend: cpu\nbenchmark:\n  size: 4\n"), 0o600))
	t.Setenv("GPUCHECK_SIZE", "6")
	t.Setenv("GPUCHECK_LEVEL", "extended")

	out, err := run(t, "--config", path, "--format", "json", "--verbosity", "error")
	require.NoError(t, err)

	var report diag.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "extended", report.Level)
	require.NotNil(t, report.Benchmark)
	assert.Equal(t, 6, report.Benchmark.Size)
	require.NotNil(t, report.Benchmark.Verified)
	assert.True(t, *report.Benchmark.Verified)
}

func TestCheck_InvalidFlag(t *testing.T) {
	_, err := run(t, "--level", "paranoid")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = run(t, "--size", "0")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpucheck.yaml")

	out, err := run(t, "init", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	_, err = run(t, "init", "--output", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "init", "--output", path, "--force")
	assert.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
