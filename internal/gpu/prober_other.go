//go:build !linux

package gpu

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// Prober is the non-linux stand-in; NVML is only loaded on linux.
type Prober struct {
	logger *zap.Logger
}

// NewProber creates a prober that always reports NVML as unsupported.
func NewProber(logger *zap.Logger) *Prober {
	return &Prober{logger: logger}
}

// Probe reports that NVML is not supported on this platform.
func (p *Prober) Probe() DriverReport {
	return DriverReport{
		Devices:      make([]NVMLDevice, 0),
		ErrorMessage: fmt.Sprintf("NVML is not supported on %s", runtime.GOOS),
	}
}
