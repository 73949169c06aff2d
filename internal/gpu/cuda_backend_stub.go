//go:build !cuda
// +build !cuda

package gpu

import (
	"go.uber.org/zap"
)

// CUDABackend is a stub used when the binary is built without the cuda tag.
// It is never available and every operation returns ErrBackendUnavailable.
type CUDABackend struct {
	logger *zap.Logger
	index  int
}

// NewCUDABackend returns the stub backend.
func NewCUDABackend(logger *zap.Logger, index int) *CUDABackend {
	return &CUDABackend{logger: logger, index: index}
}

func (c *CUDABackend) Name() string { return "cuda" }

func (c *CUDABackend) Initialize() error { return ErrBackendUnavailable }

func (c *CUDABackend) Cleanup() error { return nil }

func (c *CUDABackend) IsAvailable() bool { return false }

func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{Name: "CUDA not available", Index: c.index}
}

func (c *CUDABackend) MemoryStats() MemoryStats { return MemoryStats{} }

func (c *CUDABackend) RandomMatrix(rows, cols int, seed uint64) (Matrix, error) {
	return nil, ErrBackendUnavailable
}

func (c *CUDABackend) Upload(data []float32, rows, cols int) (Matrix, error) {
	return nil, ErrBackendUnavailable
}

func (c *CUDABackend) Download(m Matrix) ([]float32, error) {
	return nil, ErrBackendUnavailable
}

func (c *CUDABackend) MatMul(a, b Matrix) (Matrix, error) {
	return nil, ErrBackendUnavailable
}

func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	return nil, ErrBackendUnavailable
}

func (c *CUDABackend) NewTimer() (Timer, error) { return nil, ErrBackendUnavailable }

func (c *CUDABackend) Synchronize() error { return ErrBackendUnavailable }

func (c *CUDABackend) EmptyCache() error { return nil }
