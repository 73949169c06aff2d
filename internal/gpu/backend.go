package gpu

import (
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable is returned by backends that are not compiled in or
// have no usable device.
var ErrBackendUnavailable = errors.New("gpu backend not available")

// ErrReleased is returned when a matrix or timer is used after Release.
var ErrReleased = errors.New("resource already released")

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	Index             int    `json:"index"`
	Major             int    `json:"major"`
	Minor             int    `json:"minor"`
	TotalMemory       uint64 `json:"totalMemory"` // in bytes
	DriverVersion     string `json:"driverVersion,omitempty"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
	CUDADriverVersion string `json:"cudaDriverVersion,omitempty"`
}

// ComputeCapability returns the capability tuple formatted as "major.minor".
func (d DeviceInfo) ComputeCapability() string {
	return fmt.Sprintf("%d.%d", d.Major, d.Minor)
}

// MemoryStats is a snapshot of device memory counters in bytes.
// Allocated counts memory held by live matrices; Reserved additionally
// counts blocks kept in the allocator cache.
type MemoryStats struct {
	Total     uint64 `json:"total"`
	Allocated uint64 `json:"allocated"`
	Reserved  uint64 `json:"reserved"`
}

// Matrix is a row-major float32 matrix resident on a backend's device.
type Matrix interface {
	Rows() int
	Cols() int
	// Release returns the matrix memory to the backend allocator.
	// Releasing twice returns ErrReleased.
	Release() error
}

// Timer measures elapsed device time between two recorded events.
type Timer interface {
	Start() error
	Stop() error
	// Elapsed waits for the stop event and returns the time between events.
	Elapsed() (time.Duration, error)
	Release() error
}

// GPUBackend defines the interface for compute backends.
//
// A backend is an explicit device handle: every reporting step receives one
// instead of relying on process-wide runtime state, so tests can substitute
// a fake device.
type GPUBackend interface {
	// Name returns the short backend identifier ("cuda", "cpu").
	Name() string

	// Initialize prepares the backend for use. Calling it twice is a no-op.
	Initialize() error

	// Cleanup releases any resources held by the backend, including the
	// allocator cache.
	Cleanup() error

	// IsAvailable performs a quick check without heavy initialization.
	IsAvailable() bool

	// GetDeviceInfo returns information about the device.
	GetDeviceInfo() DeviceInfo

	// MemoryStats returns the current memory counters.
	MemoryStats() MemoryStats

	// RandomMatrix allocates a rows×cols matrix filled with standard normal
	// samples drawn from a generator seeded with seed.
	RandomMatrix(rows, cols int, seed uint64) (Matrix, error)

	// Upload copies host data (row-major, rows*cols values) to the device.
	Upload(data []float32, rows, cols int) (Matrix, error)

	// Download copies a device matrix back to host memory.
	Download(m Matrix) ([]float32, error)

	// MatMul computes a×b into a newly allocated matrix. The call may return
	// before the device finishes; use Synchronize or a Timer to wait.
	MatMul(a, b Matrix) (Matrix, error)

	// MatrixMultiply performs C = A * B on host slices, where A is m×k,
	// B is k×n and C is m×n, all in row-major order.
	MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error)

	// NewTimer creates a device-side timer.
	NewTimer() (Timer, error)

	// Synchronize blocks until all queued device work has completed.
	Synchronize() error

	// EmptyCache returns cached, unused blocks to the device.
	EmptyCache() error
}

func checkDims(a, b Matrix) error {
	if a.Cols() != b.Rows() {
		return fmt.Errorf("matrix dimensions are not compatible for multiplication: %dx%d * %dx%d",
			a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}
	return nil
}

func checkSliceDims(a, b []float32, m, k, n int) error {
	if m <= 0 || k <= 0 || n <= 0 {
		return fmt.Errorf("invalid matrix dimensions: m=%d k=%d n=%d", m, k, n)
	}
	if len(a) != m*k {
		return fmt.Errorf("matrix A size mismatch: expected %d, got %d", m*k, len(a))
	}
	if len(b) != k*n {
		return fmt.Errorf("matrix B size mismatch: expected %d, got %d", k*n, len(b))
	}
	return nil
}

// multiplyViaDevice implements MatrixMultiply on top of Upload, MatMul and
// Download, releasing every intermediate matrix on all paths.
func multiplyViaDevice(g GPUBackend, a, b []float32, m, k, n int) (out []float32, err error) {
	if err := checkSliceDims(a, b, m, k, n); err != nil {
		return nil, err
	}
	da, err := g.Upload(a, m, k)
	if err != nil {
		return nil, fmt.Errorf("upload matrix A: %w", err)
	}
	defer ReleaseInto(&err, da)
	db, err := g.Upload(b, k, n)
	if err != nil {
		return nil, fmt.Errorf("upload matrix B: %w", err)
	}
	defer ReleaseInto(&err, db)
	dc, err := g.MatMul(da, db)
	if err != nil {
		return nil, err
	}
	defer ReleaseInto(&err, dc)
	return g.Download(dc)
}

// Releaser is implemented by Matrix and Timer.
type Releaser interface {
	Release() error
}

// ReleaseInto releases r and joins any release error into *err. It is meant
// to be deferred right after a successful acquisition.
func ReleaseInto(err *error, r Releaser) {
	if rerr := r.Release(); rerr != nil {
		*err = errors.Join(*err, rerr)
	}
}
