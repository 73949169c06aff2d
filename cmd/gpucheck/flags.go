package main

import (
	"github.com/fxnlabs/gpucheck/internal/config"
	"github.com/urfave/cli/v2"
)

const envPrefix = "GPUCHECK_"

func checkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file; defaults apply when empty",
			EnvVars: []string{envPrefix + "CONFIG"},
		},
		&cli.StringFlag{
			Name:    "verbosity",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{envPrefix + "VERBOSITY"},
		},
		&cli.StringFlag{
			Name:    "level",
			Usage:   "Report level (basic, extended)",
			EnvVars: []string{envPrefix + "LEVEL"},
		},
		&cli.StringFlag{
			Name:    "format",
			Usage:   "Report format (text, json)",
			EnvVars: []string{envPrefix + "FORMAT"},
		},
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Compute backend (auto, cuda, cpu)",
			EnvVars: []string{envPrefix + "BACKEND"},
		},
		&cli.IntFlag{
			Name:    "device-index",
			Usage:   "CUDA device ordinal",
			EnvVars: []string{envPrefix + "DEVICE_INDEX"},
		},
		&cli.IntFlag{
			Name:    "size",
			Usage:   "Side length of the benchmark matrices",
			EnvVars: []string{envPrefix + "SIZE"},
		},
		&cli.Uint64Flag{
			Name:    "seed",
			Usage:   "Seed for the benchmark matrices; 0 picks a time-based seed",
			EnvVars: []string{envPrefix + "SEED"},
		},
		&cli.StringFlag{
			Name:    "metrics-textfile",
			Usage:   "Write prometheus metrics to this node_exporter textfile",
			EnvVars: []string{envPrefix + "METRICS_TEXTFILE"},
		},
		&cli.BoolFlag{
			Name:    "banner",
			Usage:   "Print an ASCII banner before the text report",
			EnvVars: []string{envPrefix + "BANNER"},
		},
	}
}

// loadConfig reads the config file and applies explicitly set flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("verbosity") {
		cfg.Logger.Verbosity = c.String("verbosity")
	}
	if c.IsSet("level") {
		cfg.Report.Level = c.String("level")
	}
	if c.IsSet("format") {
		cfg.Report.Format = c.String("format")
	}
	if c.IsSet("banner") {
		cfg.Report.Banner = c.Bool("banner")
	}
	if c.IsSet("backend") {
		cfg.Device.Backend = c.String("backend")
	}
	if c.IsSet("device-index") {
		cfg.Device.Index = c.Int("device-index")
	}
	if c.IsSet("size") {
		cfg.Benchmark.Size = c.Int("size")
	}
	if c.IsSet("seed") {
		cfg.Benchmark.Seed = c.Uint64("seed")
	}
	if c.IsSet("metrics-textfile") {
		cfg.Metrics.Textfile = c.String("metrics-textfile")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
