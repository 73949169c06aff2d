package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Report levels. Extended adds the cuDNN/matmul env vars, host details and
// result verification.
const (
	LevelBasic    = "basic"
	LevelExtended = "extended"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultMatrixSize is the side length of the benchmark matrices.
const DefaultMatrixSize = 1000

type LoggerConfig struct {
	Verbosity string `yaml:"verbosity"`
	Encoding  string `yaml:"encoding"`
}

type ReportConfig struct {
	Level        string   `yaml:"level"`
	Format       string   `yaml:"format"`
	Banner       bool     `yaml:"banner"`
	ExtraEnvVars []string `yaml:"extraEnvVars"`
}

type DeviceConfig struct {
	Backend string `yaml:"backend"`
	Index   int    `yaml:"index"`
}

type BenchmarkConfig struct {
	Size int `yaml:"size"`
	// Seed of 0 picks a time-based seed.
	Seed uint64 `yaml:"seed"`
}

type MetricsConfig struct {
	// Textfile is an optional node_exporter textfile collector path.
	Textfile string `yaml:"textfile"`
}

type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Report    ReportConfig    `yaml:"report"`
	Device    DeviceConfig    `yaml:"device"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Verbosity: "info",
			Encoding:  "console",
		},
		Report: ReportConfig{
			Level:        LevelBasic,
			Format:       FormatText,
			ExtraEnvVars: []string{},
		},
		Device: DeviceConfig{
			Backend: "auto",
		},
		Benchmark: BenchmarkConfig{
			Size: DefaultMatrixSize,
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks enum fields and numeric ranges.
func (c *Config) Validate() error {
	switch c.Report.Level {
	case LevelBasic, LevelExtended:
	default:
		return fmt.Errorf("%w: report.level %q (want %s or %s)", ErrInvalid, c.Report.Level, LevelBasic, LevelExtended)
	}
	switch c.Report.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: report.format %q (want %s or %s)", ErrInvalid, c.Report.Format, FormatText, FormatJSON)
	}
	switch c.Device.Backend {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("%w: device.backend %q (want auto, cuda or cpu)", ErrInvalid, c.Device.Backend)
	}
	if c.Device.Index < 0 {
		return fmt.Errorf("%w: device.index must not be negative", ErrInvalid)
	}
	if c.Benchmark.Size <= 0 {
		return fmt.Errorf("%w: benchmark.size must be positive, got %d", ErrInvalid, c.Benchmark.Size)
	}
	return nil
}
