//go:build cuda
// +build cuda

package gpu

// tryCreateCUDABackend creates a CUDA backend when the cuda build tag is present
func (m *Manager) tryCreateCUDABackend() GPUBackend {
	return NewCUDABackend(m.logger, m.opts.DeviceIndex)
}

// CUDACompiled reports whether the binary was built with CUDA support.
const CUDACompiled = true
