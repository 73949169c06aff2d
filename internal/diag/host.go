package diag

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostProbeFunc collects host details.
type HostProbeFunc func(ctx context.Context) (HostSection, error)

// ProbeHost reads host details with gopsutil.
func ProbeHost(ctx context.Context) (HostSection, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostSection{}, fmt.Errorf("read host info: %w", err)
	}
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return HostSection{}, fmt.Errorf("count CPUs: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSection{}, fmt.Errorf("read host memory: %w", err)
	}

	return HostSection{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		CPUs:            cpus,
		MemoryTotal:     vm.Total,
		MemoryAvailable: vm.Available,
	}, nil
}
