//go:build !cuda
// +build !cuda

package gpu

// tryCreateCUDABackend returns nil when the cuda build tag is NOT present
func (m *Manager) tryCreateCUDABackend() GPUBackend {
	return nil
}

// CUDACompiled reports whether the binary was built with CUDA support.
const CUDACompiled = false
