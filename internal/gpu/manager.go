package gpu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Backend preferences accepted by NewManager.
const (
	BackendAuto = "auto"
	BackendCUDA = "cuda"
	BackendCPU  = "cpu"
)

// ManagerOptions selects which backend the Manager initializes.
type ManagerOptions struct {
	// Backend is one of BackendAuto, BackendCUDA or BackendCPU.
	Backend     string
	DeviceIndex int
}

// Manager handles backend selection and lifecycle
type Manager struct {
	backend GPUBackend
	opts    ManagerOptions
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a manager and initializes the preferred backend.
//
// With BackendAuto and no usable CUDA device the manager holds no backend;
// callers treat that as "no device". BackendCUDA turns the same situation
// into an error.
func NewManager(logger *zap.Logger, opts ManagerOptions) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}

	m := &Manager{
		logger: logger,
		opts:   opts,
	}

	if err := m.detectAndInitialize(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) detectAndInitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.opts.Backend {
	case BackendCPU:
		cpuBackend := NewCPUBackend(m.logger)
		if err := cpuBackend.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize CPU backend: %w", err)
		}
		m.backend = cpuBackend
		return nil
	case BackendAuto, BackendCUDA:
	default:
		return fmt.Errorf("unknown backend %q", m.opts.Backend)
	}

	cudaBackend := m.tryCreateCUDABackend()
	if cudaBackend == nil || !cudaBackend.IsAvailable() {
		if m.opts.Backend == BackendCUDA {
			return fmt.Errorf("CUDA backend requested (compiled=%t): %w", CUDACompiled, ErrBackendUnavailable)
		}
		m.logger.Info("no CUDA device available", zap.Bool("cuda_compiled", CUDACompiled))
		return nil
	}

	if err := cudaBackend.Initialize(); err != nil {
		_ = cudaBackend.Cleanup()
		if m.opts.Backend == BackendCUDA {
			return fmt.Errorf("failed to initialize CUDA backend: %w", err)
		}
		m.logger.Warn("CUDA initialization failed", zap.Error(err))
		return nil
	}

	m.backend = cudaBackend
	return nil
}

// GetBackend returns the current backend, or nil when no device is available.
func (m *Manager) GetBackend() GPUBackend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// GetDeviceInfo returns device information from the current backend
func (m *Manager) GetDeviceInfo() DeviceInfo {
	backend := m.GetBackend()
	if backend == nil {
		return DeviceInfo{Name: "No backend available"}
	}
	return backend.GetDeviceInfo()
}

// IsGPUAvailable returns true if a GPU backend is active
func (m *Manager) IsGPUAvailable() bool {
	backend := m.GetBackend()
	if backend == nil {
		return false
	}
	_, isCPU := backend.(*CPUBackend)
	return !isCPU
}

// Cleanup releases resources held by the current backend
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.Cleanup(); err != nil {
			return err
		}
		m.backend = nil
	}
	return nil
}

// GetBackendType returns a string describing the current backend type
func (m *Manager) GetBackendType() string {
	backend := m.GetBackend()
	if backend == nil {
		return "none"
	}
	return backend.Name()
}
