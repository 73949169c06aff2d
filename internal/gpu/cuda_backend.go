//go:build cuda
// +build cuda

package gpu

/*
#cgo CFLAGS: -I/usr/local/cuda/include
#cgo LDFLAGS: -L/usr/local/cuda/lib64 -lcudart -lcublas
#include <cuda_runtime.h>
#include <cublas_v2.h>
#include <stdint.h>
#include <string.h>

typedef struct {
	char name[256];
	int major;
	int minor;
	size_t total_memory;
} gpucheck_props;

// Every helper selects the device first: cgo calls may land on any OS
// thread and the CUDA current device is per thread.

static int gpucheck_device_count(int *count) {
	return (int)cudaGetDeviceCount(count);
}

static int gpucheck_props_get(int dev, gpucheck_props *out) {
	struct cudaDeviceProp p;
	cudaError_t err = cudaGetDeviceProperties(&p, dev);
	if (err != cudaSuccess) return (int)err;
	memcpy(out->name, p.name, sizeof(out->name));
	out->name[sizeof(out->name) - 1] = 0;
	out->major = p.major;
	out->minor = p.minor;
	out->total_memory = p.totalGlobalMem;
	return 0;
}

static int gpucheck_runtime_version(int *v) { return (int)cudaRuntimeGetVersion(v); }
static int gpucheck_driver_version(int *v) { return (int)cudaDriverGetVersion(v); }

static int gpucheck_init(int dev, cublasHandle_t *h) {
	cudaError_t err = cudaSetDevice(dev);
	if (err != cudaSuccess) return (int)err;
	err = cudaFree(0);
	if (err != cudaSuccess) return (int)err;
	if (cublasCreate(h) != CUBLAS_STATUS_SUCCESS) return -1;
	return 0;
}

static int gpucheck_destroy(int dev, cublasHandle_t h) {
	cudaSetDevice(dev);
	if (cublasDestroy(h) != CUBLAS_STATUS_SUCCESS) return -1;
	return 0;
}

static int gpucheck_malloc(int dev, size_t size, uintptr_t *out) {
	void *p = NULL;
	cudaError_t err = cudaSetDevice(dev);
	if (err != cudaSuccess) return (int)err;
	err = cudaMalloc(&p, size);
	*out = (uintptr_t)p;
	return (int)err;
}

static int gpucheck_free(int dev, uintptr_t p) {
	cudaSetDevice(dev);
	return (int)cudaFree((void *)p);
}

static int gpucheck_h2d(int dev, uintptr_t dst, const void *src, size_t size) {
	cudaSetDevice(dev);
	return (int)cudaMemcpy((void *)dst, src, size, cudaMemcpyHostToDevice);
}

static int gpucheck_d2h(int dev, void *dst, uintptr_t src, size_t size) {
	cudaSetDevice(dev);
	return (int)cudaMemcpy(dst, (const void *)src, size, cudaMemcpyDeviceToHost);
}

// Row-major C = A*B is computed as column-major C^T = B^T * A^T.
static int gpucheck_sgemm(int dev, cublasHandle_t h, int m, int n, int k,
		uintptr_t a, uintptr_t b, uintptr_t c) {
	const float alpha = 1.0f;
	const float beta = 0.0f;
	cudaSetDevice(dev);
	cublasStatus_t st = cublasSgemm(h, CUBLAS_OP_N, CUBLAS_OP_N, n, m, k,
		&alpha, (const float *)b, n, (const float *)a, k, &beta, (float *)c, n);
	return st == CUBLAS_STATUS_SUCCESS ? 0 : -1;
}

static int gpucheck_sync(int dev) {
	cudaSetDevice(dev);
	return (int)cudaDeviceSynchronize();
}

static int gpucheck_event_create(int dev, cudaEvent_t *ev) {
	cudaSetDevice(dev);
	return (int)cudaEventCreate(ev);
}

static int gpucheck_event_record(int dev, cudaEvent_t ev) {
	cudaSetDevice(dev);
	return (int)cudaEventRecord(ev, 0);
}

static int gpucheck_event_elapsed(cudaEvent_t start, cudaEvent_t stop, float *ms) {
	cudaError_t err = cudaEventSynchronize(stop);
	if (err != cudaSuccess) return (int)err;
	return (int)cudaEventElapsedTime(ms, start, stop);
}

static int gpucheck_event_destroy(cudaEvent_t ev) {
	return (int)cudaEventDestroy(ev);
}

static const char *gpucheck_error_string(int code) {
	if (code == -1) return "cuBLAS call failed";
	return cudaGetErrorString((cudaError_t)code);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

type devicePtr uintptr

// CUDABackend implements GPUBackend using the CUDA runtime and cuBLAS.
type CUDABackend struct {
	logger      *zap.Logger
	index       int
	mu          sync.Mutex
	initialized bool
	available   bool
	deviceInfo  DeviceInfo
	handle      C.cublasHandle_t
	alloc       *cachingAllocator[devicePtr]
}

// NewCUDABackend creates a new CUDA backend for the device at index.
func NewCUDABackend(logger *zap.Logger, index int) *CUDABackend {
	backend := &CUDABackend{
		logger: logger,
		index:  index,
	}
	backend.alloc = newCachingAllocator(backend.deviceMalloc, backend.deviceFree)

	if err := backend.checkDevice(); err != nil {
		logger.Warn("CUDA device not available", zap.Int("index", index), zap.Error(err))
		backend.available = false
	} else {
		backend.available = true
	}

	return backend
}

// Name returns "cuda".
func (c *CUDABackend) Name() string {
	return "cuda"
}

// Initialize creates the CUDA context and cuBLAS handle.
func (c *CUDABackend) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return fmt.Errorf("CUDA device %d: %w", c.index, ErrBackendUnavailable)
	}
	if c.initialized {
		return nil
	}

	c.logger.Debug("Initializing CUDA backend", zap.Int("index", c.index))

	if err := cudaCheck(C.gpucheck_init(C.int(c.index), &c.handle)); err != nil {
		return fmt.Errorf("failed to initialize CUDA: %w", err)
	}

	var props C.gpucheck_props
	if err := cudaCheck(C.gpucheck_props_get(C.int(c.index), &props)); err != nil {
		return fmt.Errorf("failed to get device info: %w", err)
	}

	c.deviceInfo = DeviceInfo{
		Name:              C.GoString(&props.name[0]),
		Index:             c.index,
		Major:             int(props.major),
		Minor:             int(props.minor),
		TotalMemory:       uint64(props.total_memory),
		CUDAVersion:       runtimeVersion(),
		CUDADriverVersion: driverVersion(),
	}

	c.initialized = true
	c.logger.Info("CUDA backend initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability()),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))

	return nil
}

// Cleanup frees cached device memory and destroys the cuBLAS handle.
func (c *CUDABackend) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}

	c.logger.Debug("Cleaning up CUDA backend")

	if err := c.alloc.emptyCache(); err != nil {
		return fmt.Errorf("failed to release cached memory: %w", err)
	}
	if err := cudaCheck(C.gpucheck_destroy(C.int(c.index), c.handle)); err != nil {
		return fmt.Errorf("failed to cleanup CUDA: %w", err)
	}

	c.initialized = false
	return nil
}

// IsAvailable checks if the configured CUDA device exists.
func (c *CUDABackend) IsAvailable() bool {
	return c.available
}

// GetDeviceInfo returns information about the CUDA device
func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceInfo
}

// MemoryStats returns device total memory and allocator counters.
func (c *CUDABackend) MemoryStats() MemoryStats {
	allocated, reserved := c.alloc.stats()
	return MemoryStats{
		Total:     c.GetDeviceInfo().TotalMemory,
		Allocated: allocated,
		Reserved:  reserved,
	}
}

func (c *CUDABackend) checkInitialized() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return fmt.Errorf("CUDA backend not initialized")
	}
	return nil
}

func (c *CUDABackend) newMatrix(rows, cols int) (*cudaMatrix, error) {
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
	return &cudaMatrix{owner: c, block: b, rows: rows, cols: cols}, nil
}

// RandomMatrix samples on the host and uploads the result.
func (c *CUDABackend) RandomMatrix(rows, cols int, seed uint64) (Matrix, error) {
	return c.Upload(RandomNormal(rows*cols, seed), rows, cols)
}

// Upload copies host data to a new device matrix.
func (c *CUDABackend) Upload(data []float32, rows, cols int) (Matrix, error) {
	if len(data) != rows*cols {
		return nil, fmt.Errorf("upload size mismatch: expected %d, got %d", rows*cols, len(data))
	}
	m, err := c.newMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	size := C.size_t(m.block.size)
	if err := cudaCheck(C.gpucheck_h2d(C.int(c.index), C.uintptr_t(m.block.ptr), unsafe.Pointer(&data[0]), size)); err != nil {
		_ = m.Release()
		return nil, fmt.Errorf("copy to device: %w", err)
	}
	return m, nil
}

// Download copies a device matrix to host memory.
func (c *CUDABackend) Download(m Matrix) ([]float32, error) {
	cm, err := c.own(m)
	if err != nil {
		return nil, err
	}
	out := make([]float32, cm.rows*cm.cols)
	size := C.size_t(cm.block.size)
	if err := cudaCheck(C.gpucheck_d2h(C.int(c.index), unsafe.Pointer(&out[0]), C.uintptr_t(cm.block.ptr), size)); err != nil {
		return nil, fmt.Errorf("copy to host: %w", err)
	}
	return out, nil
}

// MatMul enqueues a cuBLAS SGEMM.
func (c *CUDABackend) MatMul(a, b Matrix) (Matrix, error) {
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

	c.logger.Debug("Performing CUDA matrix multiplication",
		zap.Int("m", ca.rows), zap.Int("k", ca.cols), zap.Int("n", cb.cols),
		zap.Int("flops", 2*ca.rows*ca.cols*cb.cols))

	ret := C.gpucheck_sgemm(C.int(c.index), c.handle,
		C.int(ca.rows), C.int(cb.cols), C.int(ca.cols),
		C.uintptr_t(ca.block.ptr), C.uintptr_t(cb.block.ptr), C.uintptr_t(out.block.ptr))
	if err := cudaCheck(ret); err != nil {
		_ = out.Release()
		return nil, fmt.Errorf("CUDA matrix multiplication failed: %w", err)
	}
	return out, nil
}

// MatrixMultiply performs C = A * B on host slices via the device.
func (c *CUDABackend) MatrixMultiply(a, b []float32, m, k, n int) ([]float32, error) {
	if err := c.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize CUDA backend: %w", err)
	}
	return multiplyViaDevice(c, a, b, m, k, n)
}

// NewTimer creates a pair of CUDA events.
func (c *CUDABackend) NewTimer() (Timer, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	t := &cudaTimer{index: c.index}
	if err := cudaCheck(C.gpucheck_event_create(C.int(c.index), &t.start)); err != nil {
		return nil, fmt.Errorf("create start event: %w", err)
	}
	if err := cudaCheck(C.gpucheck_event_create(C.int(c.index), &t.stop)); err != nil {
		C.gpucheck_event_destroy(t.start)
		return nil, fmt.Errorf("create stop event: %w", err)
	}
	return t, nil
}

// Synchronize waits for all device work.
func (c *CUDABackend) Synchronize() error {
	if err := cudaCheck(C.gpucheck_sync(C.int(c.index))); err != nil {
		return fmt.Errorf("device synchronize: %w", err)
	}
	return nil
}

// EmptyCache returns cached blocks to the device.
func (c *CUDABackend) EmptyCache() error {
	return c.alloc.emptyCache()
}

func (c *CUDABackend) own(m Matrix) (*cudaMatrix, error) {
	cm, ok := m.(*cudaMatrix)
	if !ok || cm.owner != c {
		return nil, fmt.Errorf("matrix does not belong to this CUDA backend")
	}
	if cm.block == nil {
		return nil, ErrReleased
	}
	return cm, nil
}

func (c *CUDABackend) deviceMalloc(size uint64) (devicePtr, error) {
	var p C.uintptr_t
	if err := cudaCheck(C.gpucheck_malloc(C.int(c.index), C.size_t(size), &p)); err != nil {
		return 0, err
	}
	return devicePtr(p), nil
}

func (c *CUDABackend) deviceFree(p devicePtr) error {
	return cudaCheck(C.gpucheck_free(C.int(c.index), C.uintptr_t(p)))
}

// checkDevice verifies that the configured device index exists.
func (c *CUDABackend) checkDevice() error {
	var count C.int
	if err := cudaCheck(C.gpucheck_device_count(&count)); err != nil {
		return fmt.Errorf("CUDA device check failed: %w", err)
	}
	if c.index < 0 || c.index >= int(count) {
		return fmt.Errorf("device index %d out of range (%d devices)", c.index, int(count))
	}
	return nil
}

type cudaMatrix struct {
	owner      *CUDABackend
	block      *block[devicePtr]
	rows, cols int
}

func (m *cudaMatrix) Rows() int { return m.rows }
func (m *cudaMatrix) Cols() int { return m.cols }

func (m *cudaMatrix) Release() error {
	if m.block == nil {
		return ErrReleased
	}
	m.owner.alloc.release(m.block)
	m.block = nil
	return nil
}

type cudaTimer struct {
	index       int
	start, stop C.cudaEvent_t
	released    bool
}

func (t *cudaTimer) Start() error {
	if t.released {
		return ErrReleased
	}
	return cudaCheck(C.gpucheck_event_record(C.int(t.index), t.start))
}

func (t *cudaTimer) Stop() error {
	if t.released {
		return ErrReleased
	}
	return cudaCheck(C.gpucheck_event_record(C.int(t.index), t.stop))
}

func (t *cudaTimer) Elapsed() (time.Duration, error) {
	if t.released {
		return 0, ErrReleased
	}
	var ms C.float
	if err := cudaCheck(C.gpucheck_event_elapsed(t.start, t.stop, &ms)); err != nil {
		return 0, fmt.Errorf("read event time: %w", err)
	}
	return time.Duration(float64(ms) * float64(time.Millisecond)), nil
}

func (t *cudaTimer) Release() error {
	if t.released {
		return ErrReleased
	}
	t.released = true
	errStart := cudaCheck(C.gpucheck_event_destroy(t.start))
	errStop := cudaCheck(C.gpucheck_event_destroy(t.stop))
	if errStart != nil {
		return errStart
	}
	return errStop
}

// cudaError wraps a CUDA runtime error code.
type cudaError struct {
	code int
}

func (e *cudaError) Error() string {
	return fmt.Sprintf("%s (%d)", C.GoString(C.gpucheck_error_string(C.int(e.code))), e.code)
}

func cudaCheck(ret C.int) error {
	if ret == 0 {
		return nil
	}
	return &cudaError{code: int(ret)}
}

func runtimeVersion() string {
	var v C.int
	if cudaCheck(C.gpucheck_runtime_version(&v)) != nil {
		return ""
	}
	return FormatCUDAVersion(int(v))
}

func driverVersion() string {
	var v C.int
	if cudaCheck(C.gpucheck_driver_version(&v)) != nil {
		return ""
	}
	return FormatCUDAVersion(int(v))
}
