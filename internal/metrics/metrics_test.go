package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderGauges(t *testing.T) {
	r := NewRecorder()

	t.Run("DeviceAvailable", func(t *testing.T) {
		r.DeviceAvailable.Set(1)
		assert.Equal(t, float64(1), testutil.ToFloat64(r.DeviceAvailable))
	})

	t.Run("MatMulDurationMS", func(t *testing.T) {
		r.MatMulDurationMS.Set(12.5)
		assert.Equal(t, 12.5, testutil.ToFloat64(r.MatMulDurationMS))
	})

	t.Run("MatMulGFLOPS", func(t *testing.T) {
		r.MatMulGFLOPS.Set(123.45)
		assert.Equal(t, 123.45, testutil.ToFloat64(r.MatMulGFLOPS))
	})

	t.Run("MemoryBytes", func(t *testing.T) {
		r.MemoryBytes.WithLabelValues("before", "allocated").Set(1073741824)
		value := testutil.ToFloat64(r.MemoryBytes.WithLabelValues("before", "allocated"))
		assert.Equal(t, float64(1073741824), value)
	})

	t.Run("SetBand", func(t *testing.T) {
		all := []string{"excellent", "good", "acceptable", "suboptimal"}
		r.SetBand("good", all)
		assert.Equal(t, float64(1), testutil.ToFloat64(r.MatMulBand.WithLabelValues("good")))
		assert.Equal(t, float64(0), testutil.ToFloat64(r.MatMulBand.WithLabelValues("excellent")))
		assert.Equal(t, 4, testutil.CollectAndCount(r.MatMulBand))
	})
}

func TestRecorderIsolation(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()

	a.MatMulSize.Set(1000)
	assert.Equal(t, float64(0), testutil.ToFloat64(b.MatMulSize))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.DeviceAvailable.Set(1)
	r.MatMulSize.Set(1000)

	path := filepath.Join(t.TempDir(), "gpucheck.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "gpucheck_device_available 1")
	assert.Contains(t, content, "gpucheck_matmul_size 1000")
	assert.True(t, strings.Contains(content, "gpucheck_last_run_timestamp_seconds"))

	err = testutil.GatherAndCompare(r.Registry(), strings.NewReader(`
# HELP gpucheck_matmul_size Side length of the square matrices used by the benchmark
# TYPE gpucheck_matmul_size gauge
gpucheck_matmul_size 1000
`), "gpucheck_matmul_size")
	assert.NoError(t, err)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	r := NewRecorder()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.ErrorContains(t, err, "write metrics textfile")
}
