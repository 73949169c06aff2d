package gpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const float32Size = 4

// CPUBackend implements GPUBackend on the host. It serves as a reference
// device for forced-CPU runs and tests.
type CPUBackend struct {
	logger      *zap.Logger
	mu          sync.Mutex
	initialized bool
	alloc       *cachingAllocator[[]float32]
}

// NewCPUBackend creates a new CPU backend instance
func NewCPUBackend(logger *zap.Logger) *CPUBackend {
	return &CPUBackend{
		logger: logger,
		alloc: newCachingAllocator(
			func(size uint64) ([]float32, error) {
				return make([]float32, size/float32Size), nil
			},
			func([]float32) error { return nil },
		),
	}
}

// Name returns "cpu".
func (c *CPUBackend) Name() string {
	return "cpu"
}

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int("cpus", runtime.NumCPU()))
	return nil
}

// Cleanup drops the allocator cache.
func (c *CPUBackend) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	return c.alloc.emptyCache()
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:          fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		TotalMemory:   c.totalMemory(),
		DriverVersion: runtime.Version(),
	}
}

// MemoryStats reports host memory as total and the allocator counters.
func (c *CPUBackend) MemoryStats() MemoryStats {
	allocated, reserved := c.alloc.stats()
	return MemoryStats{
		Total:     c.totalMemory(),
		Allocated: allocated,
		Reserved:  reserved,
	}
}

func (c *CPUBackend) totalMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Debug("failed to read host memory", zap.Error(err))
		return 0
	}
	return vm.Total
}

func (c *CPUBackend) checkInitialized() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return fmt.Errorf("CPU backend not initialized")
	}
	return nil
}

func (c *CPUBackend) newMatrix(rows, cols int) (*cpuMatrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid matrix shape %dx%d", rows, cols)
	}
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	b, err := c.alloc.alloc(uint64(rows*cols) * float32Size)
	if err != nil {
		return nil, err
	}
	return &cpuMatrix{owner: c, block: b, rows: rows, cols: cols}, nil
}

// RandomMatrix allocates a matrix of standard normal samples.
func (c *CPUBackend) RandomMatrix(rows, cols int, seed uint64) (Matrix, error) {
	m, err := c.newMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	copy(m.block.ptr, RandomNormal(rows*cols, seed))
	return m, nil
}

// Upload copies data into a new host-resident matrix.
func (c *CPUBackend) Upload(data []float32, rows, cols int) (Matrix, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("upload size mismatch: expected %d, got %d", rows*cols, len(data))
	}
	m, err := c.newMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	copy(m.block.ptr, data)
	return m, nil
}

// Download returns a copy of the matrix data.
func (c *CPUBackend) Download(m Matrix) ([]float32, error) {
	cm, err := c.own(m)
	if err != nil {
		return nil, err
	}
	out := make([]float32, cm.rows*cm.cols)
	copy(out, cm.block.ptr)
	return out, nil
}

// MatMul multiplies a and b with gonum.
func (c *CPUBackend) MatMul(a, b Matrix) (Matrix, error) {
	ca, err := c.own(a)
	if err != nil {
		return nil, err
	}
	cb, err := c.own(b)
	if err != nil {
		return nil, err
	}
	if err := checkDims(ca, cb); err != nil {
		return nil, err
	}

	out, err := c.newMatrix(ca.rows, cb.cols)
	if err != nil {
		return nil, err
	}

	da := mat.NewDense(ca.rows, ca.cols, Float32ToFloat64(ca.block.ptr))
	db := mat.NewDense(cb.rows, cb.cols, Float32ToFloat64(cb.block.ptr))
	var res mat.Dense
	res.Mul(da, db)
	copy(out.block.ptr, Float64ToFloat32(res.RawMatrix().Data))

	c.logger.Debug("CPU matrix multiplication",
		zap.Int("m", ca.rows), zap.Int("k", ca.cols), zap.Int("n", cb.cols))
	return out, nil
}

// MatrixMultiply performs C = A * B on host slices.
func (c *CPUBackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	return multiplyViaDevice(c, a, b, m, k, n)
}

// NewTimer returns a wall-clock timer; CPU work is synchronous.
func (c *CPUBackend) NewTimer() (Timer, error) {
	return &wallTimer{}, nil
}

// Synchronize is a no-op on the host.
func (c *CPUBackend) Synchronize() error {
	return nil
}

// EmptyCache drops cached blocks.
func (c *CPUBackend) EmptyCache() error {
	return c.alloc.emptyCache()
}

func (c *CPUBackend) own(m Matrix) (*cpuMatrix, error) {
	cm, ok := m.(*cpuMatrix)
	if !ok || cm.owner != c {
		return nil, fmt.Errorf("matrix does not belong to this CPU backend")
	}
	if cm.block == nil {
		return nil, ErrReleased
	}
	return cm, nil
}

type cpuMatrix struct {
	owner      *CPUBackend
	block      *block[[]float32]
	rows, cols int
}

func (m *cpuMatrix) Rows() int { return m.rows }
func (m *cpuMatrix) Cols() int { return m.cols }

func (m *cpuMatrix) Release() error {
	if m.block == nil {
		return ErrReleased
	}
	m.owner.alloc.release(m.block)
	m.block = nil
	return nil
}

// wallTimer measures host wall-clock time.
type wallTimer struct {
	start, stop time.Time
	released    bool
}

func (t *wallTimer) Start() error {
	if t.released {
		return ErrReleased
	}
	t.start = time.Now()
	return nil
}

func (t *wallTimer) Stop() error {
	if t.released {
		return ErrReleased
	}
	t.stop = time.Now()
	return nil
}

func (t *wallTimer) Elapsed() (time.Duration, error) {
	if t.released {
		return 0, ErrReleased
	}
	if t.start.IsZero() || t.stop.IsZero() {
		return 0, fmt.Errorf("timer was not started and stopped")
	}
	return t.stop.Sub(t.start), nil
}

func (t *wallTimer) Release() error {
	if t.released {
		return ErrReleased
	}
	t.released = true
	return nil
}
