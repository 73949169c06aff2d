//go:build linux

package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/zap"
)

// Prober queries the NVIDIA driver through NVML.
type Prober struct {
	nvml   NVMLInterface
	logger *zap.Logger
}

// NewProber creates a prober backed by the system NVML library.
func NewProber(logger *zap.Logger) *Prober {
	return NewProberWithNVML(NewRealNVML(), logger)
}

// NewProberWithNVML creates a prober with a custom NVML interface (for testing)
func NewProberWithNVML(n NVMLInterface, logger *zap.Logger) *Prober {
	return &Prober{nvml: n, logger: logger}
}

// Probe collects driver and device information. NVML failures are recorded
// in the report rather than returned; a missing driver is a finding, not a
// program error.
func (p *Prober) Probe() DriverReport {
	report := DriverReport{Devices: make([]NVMLDevice, 0)}

	if ret := p.nvml.Init(); ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("failed to initialize NVML: %v", nvml.ErrorString(ret))
		p.logger.Warn("NVML initialization failed", zap.String("error", report.ErrorMessage))
		return report
	}
	defer func() {
		if ret := p.nvml.Shutdown(); ret != nvml.SUCCESS {
			p.logger.Debug("NVML shutdown failed", zap.String("error", nvml.ErrorString(ret)))
		}
	}()
	report.NVMLOk = true

	if v, ret := p.nvml.SystemGetDriverVersion(); ret == nvml.SUCCESS {
		report.DriverVersion = v
	} else {
		p.logger.Warn("failed to get driver version", zap.String("error", nvml.ErrorString(ret)))
	}

	if v, ret := p.nvml.SystemGetCudaDriverVersion(); ret == nvml.SUCCESS {
		report.CUDADriverVersion = v
	} else {
		p.logger.Warn("failed to get CUDA driver version", zap.String("error", nvml.ErrorString(ret)))
	}

	count, ret := p.nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("failed to get device count: %v", nvml.ErrorString(ret))
		p.logger.Error("failed to get GPU count", zap.String("error", report.ErrorMessage))
		return report
	}

	for i := 0; i < count; i++ {
		device, ret := p.nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			p.logger.Warn("failed to get device handle", zap.Int("index", i), zap.String("error", nvml.ErrorString(ret)))
			continue
		}

		d := NVMLDevice{Index: i}
		if name, ret := device.GetName(); ret == nvml.SUCCESS {
			d.Name = name
		}
		if uuid, ret := device.GetUUID(); ret == nvml.SUCCESS {
			d.UUID = uuid
		}
		if major, minor, ret := device.GetCudaComputeCapability(); ret == nvml.SUCCESS {
			d.Major, d.Minor = major, minor
		}
		if memInfo, ret := device.GetMemoryInfo(); ret == nvml.SUCCESS {
			d.MemoryTotal = memInfo.Total
			d.MemoryUsed = memInfo.Used
			d.MemoryFree = memInfo.Free
		}

		report.Devices = append(report.Devices, d)
		p.logger.Debug("GPU device detected",
			zap.Int("index", i),
			zap.String("name", d.Name),
			zap.String("uuid", d.UUID),
			zap.Uint64("memory_total", d.MemoryTotal))
	}

	return report
}
