package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the gauges describing one diagnostic run. Each Recorder
// owns a private registry so runs and tests do not share state.
type Recorder struct {
	registry *prometheus.Registry

	DeviceAvailable   prometheus.Gauge
	ComputeCapability *prometheus.GaugeVec
	MemoryBytes       *prometheus.GaugeVec
	MatMulSize        prometheus.Gauge
	MatMulDurationMS  prometheus.Gauge
	MatMulGFLOPS      prometheus.Gauge
	MatMulBand        *prometheus.GaugeVec
	LastRunTimestamp  prometheus.Gauge
}

// NewRecorder registers all gauges on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		DeviceAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpucheck_device_available",
			Help: "1 if a compute device was available during the last check",
		}),
		ComputeCapability: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpucheck_compute_capability",
			Help: "Compute capability of the checked device, split into major and minor",
		}, []string{"device", "part"}),
		MemoryBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpucheck_memory_bytes",
			Help: "Device memory counters by phase (before, after) and kind (total, allocated, reserved)",
		}, []string{"phase", "kind"}),
		MatMulSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpucheck_matmul_size",
			Help: "Side length of the square matrices used by the benchmark",
		}),
		MatMulDurationMS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpucheck_matmul_duration_ms",
			Help: "Device time of the timed matrix multiplication in milliseconds",
		}),
		MatMulGFLOPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpucheck_matmul_gflops",
			Help: "Throughput of the timed matrix multiplication in GFLOPS",
		}),
		MatMulBand: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpucheck_matmul_band",
			Help: "1 for the performance band of the last benchmark, 0 for the others",
		}, []string{"band"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gpucheck_last_run_timestamp_seconds",
			Help: "Unix time at which the last check completed",
		}),
	}
}

// Registry exposes the underlying registry, e.g. for testutil.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// SetBand marks band as active and every other known band as inactive.
func (r *Recorder) SetBand(band string, all []string) {
	for _, b := range all {
		v := 0.0
		if b == band {
			v = 1
		}
		r.MatMulBand.WithLabelValues(b).Set(v)
	}
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	r.LastRunTimestamp.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
