package logger

import (
	"go.uber.org/zap"
)

// New builds a production zap logger at the given verbosity. Output goes to
// stderr so the report on stdout stays machine-readable. encoding is "json"
// or "console"; empty means json.
func New(verbosity, encoding string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	config.Sampling = nil
	if encoding != "" {
		config.Encoding = encoding
	}
	return config.Build()
}
