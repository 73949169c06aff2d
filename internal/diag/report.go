package diag

import "github.com/fxnlabs/gpucheck/internal/gpu"

// RuntimeSection describes the process runtime and compute backend.
type RuntimeSection struct {
	GoVersion    string `json:"goVersion"`
	Backend      string `json:"backend"`
	CUDACompiled bool   `json:"cudaCompiled"`
	CUDAVersion  string `json:"cudaVersion"`
	// DeviceAvailable is true only for a usable CUDA device. A forced host
	// backend still runs the benchmark but leaves this false.
	DeviceAvailable bool `json:"deviceAvailable"`
}

// HostSection describes the machine the check runs on.
type HostSection struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	KernelVersion   string `json:"kernelVersion"`
	CPUs            int    `json:"cpus"`
	MemoryTotal     uint64 `json:"memoryTotal"`
	MemoryAvailable uint64 `json:"memoryAvailable"`
}

// DeviceSection describes the device the benchmark runs on.
type DeviceSection struct {
	Name            string `json:"name"`
	Index           int    `json:"index"`
	Major           int    `json:"major"`
	Minor           int    `json:"minor"`
	TotalMemory     uint64 `json:"totalMemory"`
	Tier            string `json:"tier"`
	TierDescription string `json:"tierDescription"`
	// Host is set when the benchmark runs on the host CPU backend.
	Host bool `json:"host,omitempty"`
}

// BenchmarkResult is the outcome of the timed multiplication.
type BenchmarkResult struct {
	Size      int     `json:"size"`
	Seed      uint64  `json:"seed"`
	ElapsedMS float64 `json:"elapsedMs"`
	GFLOPS    float64 `json:"gflops"`
	Band      string  `json:"band"`
	Label     string  `json:"label"`
	// Verified is set only when result verification ran.
	Verified *bool `json:"verified,omitempty"`
}

// Report collects every section of one run.
type Report struct {
	Level        string           `json:"level"`
	Runtime      RuntimeSection   `json:"runtime"`
	Environment  []EnvVar         `json:"environment"`
	Host         *HostSection     `json:"host,omitempty"`
	Driver       gpu.DriverReport `json:"driver"`
	Device       *DeviceSection   `json:"device,omitempty"`
	MemoryBefore *gpu.MemoryStats `json:"memoryBefore,omitempty"`
	Benchmark    *BenchmarkResult `json:"benchmark,omitempty"`
	MemoryAfter  *gpu.MemoryStats `json:"memoryAfter,omitempty"`
	Error        string           `json:"error,omitempty"`
}
