package gpu

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCPUBackend(t *testing.T) *CPUBackend {
	t.Helper()
	backend := NewCPUBackend(zap.NewNop())
	require.NoError(t, backend.Initialize())
	t.Cleanup(func() { _ = backend.Cleanup() })
	return backend
}

func TestCPUBackend_Initialize(t *testing.T) {
	backend := NewCPUBackend(zap.NewNop())

	// CPU backend should always be available
	assert.True(t, backend.IsAvailable())
	assert.Equal(t, "cpu", backend.Name())

	err := backend.Initialize()
	assert.NoError(t, err)
	assert.True(t, backend.initialized)

	info := backend.GetDeviceInfo()
	assert.Contains(t, info.Name, "CPU")
	assert.Equal(t, 0, info.Major)

	// Test double initialization (should be idempotent)
	err = backend.Initialize()
	assert.NoError(t, err)

	err = backend.Cleanup()
	assert.NoError(t, err)
	assert.False(t, backend.initialized)
}

func TestCPUBackend_MatrixMultiply(t *testing.T) {
	backend := newTestCPUBackend(t)

	testCases := []struct {
		name    string
		m, k, n int
		setupA  func([]float32)
		setupB  func([]float32)
		verifyC func(*testing.T, []float32)
	}{
		{
			name: "small identity matrices",
			m:    3, k: 3, n: 3,
			setupA: func(a []float32) {
				for i := 0; i < 3; i++ {
					a[i*3+i] = 1.0
				}
			},
			setupB: func(b []float32) {
				for i := 0; i < 3; i++ {
					b[i*3+i] = 1.0
				}
			},
			verifyC: func(t *testing.T, c []float32) {
				for i := 0; i < 3; i++ {
					for j := 0; j < 3; j++ {
						expected := float32(0.0)
						if i == j {
							expected = 1.0
						}
						assert.InDelta(t, expected, c[i*3+j], 1e-5)
					}
				}
			},
		},
		{
			name: "simple 2x2 multiplication",
			m:    2, k: 2, n: 2,
			setupA: func(a []float32) {
				a[0], a[1] = 1, 2
				a[2], a[3] = 3, 4
			},
			setupB: func(b []float32) {
				b[0], b[1] = 5, 6
				b[2], b[3] = 7, 8
			},
			verifyC: func(t *testing.T, c []float32) {
				// Expected: [[19, 22], [43, 50]]
				assert.InDeltaSlice(t, []float32{19, 22, 43, 50}, c, 1e-5)
			},
		},
		{
			name: "rectangular matrices",
			m:    2, k: 3, n: 4,
			setupA: func(a []float32) {
				a[0], a[1], a[2] = 1, 2, 3
				a[3], a[4], a[5] = 4, 5, 6
			},
			setupB: func(b []float32) {
				for i := range b {
					b[i] = float32(i + 1)
				}
			},
			verifyC: func(t *testing.T, c []float32) {
				assert.Equal(t, 8, len(c))
				// First row = [1,2,3] · [[1,2,3,4], [5,6,7,8], [9,10,11,12]]
				assert.InDeltaSlice(t, []float32{38, 44, 50, 56}, c[:4], 1e-5)
			},
		},
		{
			name: "zero matrices",
			m:    3, k: 3, n: 3,
			verifyC: func(t *testing.T, c []float32) {
				for _, val := range c {
					assert.Equal(t, float32(0), val)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := make([]float32, tc.m*tc.k)
			b := make([]float32, tc.k*tc.n)
			if tc.setupA != nil {
				tc.setupA(a)
			}
			if tc.setupB != nil {
				tc.setupB(b)
			}

			result, err := backend.MatrixMultiply(a, b, tc.m, tc.k, tc.n)
			require.NoError(t, err)
			assert.Equal(t, tc.m*tc.n, len(result))
			tc.verifyC(t, result)
		})
	}

	t.Run("dimension mismatch - wrong A size", func(t *testing.T) {
		a := make([]float32, 5) // Should be 6 (2*3)
		b := make([]float32, 6)

		_, err := backend.MatrixMultiply(a, b, 2, 3, 2)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "matrix A size mismatch")
	})

	t.Run("dimension mismatch - wrong B size", func(t *testing.T) {
		a := make([]float32, 6)
		b := make([]float32, 5) // Should be 6 (3*2)

		_, err := backend.MatrixMultiply(a, b, 2, 3, 2)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "matrix B size mismatch")
	})

	t.Run("intermediates are released", func(t *testing.T) {
		_, err := backend.MatrixMultiply([]float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), backend.MemoryStats().Allocated)
	})
}

func TestCPUBackend_DeviceMatrices(t *testing.T) {
	backend := newTestCPUBackend(t)

	a, err := backend.Upload([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	b, err := backend.Upload([]float32{7, 8, 9, 10, 11, 12}, 3, 2)
	require.NoError(t, err)

	c, err := backend.MatMul(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Rows())
	assert.Equal(t, 2, c.Cols())

	got, err := backend.Download(c)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{58, 64, 139, 154}, got, 1e-5)

	t.Run("incompatible shapes", func(t *testing.T) {
		_, err := backend.MatMul(a, a)
		assert.ErrorContains(t, err, "not compatible")
	})

	t.Run("foreign matrix", func(t *testing.T) {
		other := newTestCPUBackend(t)
		foreign, err := other.Upload([]float32{1}, 1, 1)
		require.NoError(t, err)
		_, err = backend.MatMul(foreign, foreign)
		assert.ErrorContains(t, err, "does not belong")
	})

	for _, m := range []Matrix{a, b, c} {
		require.NoError(t, m.Release())
	}

	t.Run("use after release", func(t *testing.T) {
		assert.ErrorIs(t, a.Release(), ErrReleased)
		_, err := backend.Download(c)
		assert.ErrorIs(t, err, ErrReleased)
	})
}

func TestCPUBackend_MemoryAccounting(t *testing.T) {
	backend := newTestCPUBackend(t)

	before := backend.MemoryStats()
	assert.Equal(t, uint64(0), before.Allocated)

	m, err := backend.RandomMatrix(100, 100, 7)
	require.NoError(t, err)
	during := backend.MemoryStats()
	assert.Equal(t, uint64(100*100*4), during.Allocated)
	assert.Equal(t, during.Allocated, during.Reserved)

	require.NoError(t, m.Release())
	released := backend.MemoryStats()
	assert.Equal(t, uint64(0), released.Allocated)
	assert.Equal(t, uint64(100*100*4), released.Reserved)

	require.NoError(t, backend.EmptyCache())
	assert.Equal(t, uint64(0), backend.MemoryStats().Reserved)
}

func TestCPUBackend_RandomMatrixDeterministic(t *testing.T) {
	backend := newTestCPUBackend(t)

	m1, err := backend.RandomMatrix(4, 4, 42)
	require.NoError(t, err)
	m2, err := backend.RandomMatrix(4, 4, 42)
	require.NoError(t, err)

	d1, err := backend.Download(m1)
	require.NoError(t, err)
	d2, err := backend.Download(m2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestCPUBackend_Timer(t *testing.T) {
	backend := newTestCPUBackend(t)

	timer, err := backend.NewTimer()
	require.NoError(t, err)

	_, err = timer.Elapsed()
	assert.Error(t, err, "elapsed before start/stop")

	require.NoError(t, timer.Start())
	require.NoError(t, timer.Stop())
	elapsed, err := timer.Elapsed()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))

	require.NoError(t, timer.Release())
	assert.ErrorIs(t, timer.Start(), ErrReleased)
}

func TestCPUBackend_Performance(t *testing.T) {
	backend := newTestCPUBackend(t)

	sizes := []int{64, 128, 256}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			a := RandomNormal(size*size, 1)
			b := RandomNormal(size*size, 2)

			// Warm up
			_, err := backend.MatrixMultiply(a, b, size, size, size)
			require.NoError(t, err)

			timer, err := backend.NewTimer()
			require.NoError(t, err)
			defer timer.Release()

			require.NoError(t, timer.Start())
			result, err := backend.MatrixMultiply(a, b, size, size, size)
			require.NoError(t, timer.Stop())
			require.NoError(t, err)
			assert.Equal(t, size*size, len(result))

			elapsed, err := timer.Elapsed()
			require.NoError(t, err)
			flops := float64(2 * size * size * size)
			gflops := flops / elapsed.Seconds() / 1e9
			t.Logf("Matrix size: %dx%d, Time: %v, GFLOPS: %.2f", size, size, elapsed, gflops)
		})
	}
}

func TestCPUBackend_EdgeCases(t *testing.T) {
	backend := newTestCPUBackend(t)

	t.Run("single element", func(t *testing.T) {
		result, err := backend.MatrixMultiply([]float32{2.0}, []float32{3.0}, 1, 1, 1)
		require.NoError(t, err)
		assert.InDelta(t, float32(6.0), result[0], 1e-5)
	})

	t.Run("column vector times row vector", func(t *testing.T) {
		// 3x1 * 1x3 = 3x3
		result, err := backend.MatrixMultiply([]float32{1, 2, 3}, []float32{4, 5, 6}, 3, 1, 3)
		require.NoError(t, err)
		expected := []float32{4, 5, 6, 8, 10, 12, 12, 15, 18}
		assert.InDeltaSlice(t, expected, result, 1e-5)
	})

	t.Run("very small values", func(t *testing.T) {
		a := []float32{1e-10, 1e-10, 1e-10, 1e-10}
		b := []float32{1e10, 1e10, 1e10, 1e10}
		result, err := backend.MatrixMultiply(a, b, 2, 2, 2)
		require.NoError(t, err)
		for _, val := range result {
			assert.False(t, math.IsInf(float64(val), 0))
			assert.False(t, math.IsNaN(float64(val)))
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		_, err := backend.RandomMatrix(0, 3, 1)
		assert.Error(t, err)
	})
}

func TestCPUBackend_NotInitialized(t *testing.T) {
	backend := NewCPUBackend(zap.NewNop())

	_, err := backend.MatrixMultiply([]float32{1, 2, 3, 4}, []float32{5, 6, 7, 8}, 2, 2, 2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")

	_, err = backend.RandomMatrix(2, 2, 1)
	assert.ErrorContains(t, err, "not initialized")
}

func TestUtilityFunctions(t *testing.T) {
	input64 := []float64{1.0, 2.0, 3.0, 4.0}
	output32 := Float64ToFloat32(input64)
	require.Len(t, output32, len(input64))
	for i := range output32 {
		assert.Equal(t, float32(input64[i]), output32[i])
	}

	input32 := []float32{1.0, 2.0, 3.0, 4.0}
	output64 := Float32ToFloat64(input32)
	require.Len(t, output64, len(input32))
	for i := range output64 {
		assert.Equal(t, float64(input32[i]), output64[i])
	}

	samples := RandomNormal(10000, 3)
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	assert.InDelta(t, 0.0, sum/float64(len(samples)), 0.05, "standard normal mean")
	assert.Equal(t, samples, RandomNormal(10000, 3))
	assert.NotEqual(t, samples, RandomNormal(10000, 4))
}

func TestFormatCUDAVersion(t *testing.T) {
	assert.Equal(t, "12.2", FormatCUDAVersion(12020))
	assert.Equal(t, "11.8", FormatCUDAVersion(11080))
	assert.Equal(t, "N/A", FormatCUDAVersion(0))
}
