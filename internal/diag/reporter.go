package diag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/fxnlabs/gpucheck/internal/gpu"
	"github.com/fxnlabs/gpucheck/internal/metrics"
	"go.uber.org/zap"
)

// DefaultVerifyIterations bounds the Freivalds false positive rate at 2^-10.
const DefaultVerifyIterations = 10

// Options controls what a Reporter checks.
type Options struct {
	// Extended adds the cuDNN/matmul env vars, host details and result
	// verification.
	Extended     bool
	ExtraEnvVars []string
	MatrixSize   int
	// Seed of 0 picks a time-based seed.
	Seed             uint64
	VerifyIterations int
}

// DriverProber reports driver state; *gpu.Prober implements it.
type DriverProber interface {
	Probe() gpu.DriverReport
}

// Reporter runs the pre-flight checks in a fixed order and streams each
// section to a Renderer.
type Reporter struct {
	opts      Options
	renderer  Renderer
	logger    *zap.Logger
	lookupEnv LookupEnvFunc
	prober    DriverProber
	hostProbe HostProbeFunc
	recorder  *metrics.Recorder
	now       func() time.Time
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn LookupEnvFunc) Option {
	return func(r *Reporter) { r.lookupEnv = fn }
}

// WithProber sets the driver prober. Without one the driver section reports
// that no probe was configured.
func WithProber(p DriverProber) Option {
	return func(r *Reporter) { r.prober = p }
}

// WithHostProbe replaces ProbeHost.
func WithHostProbe(fn HostProbeFunc) Option {
	return func(r *Reporter) { r.hostProbe = fn }
}

// WithRecorder records results as prometheus gauges.
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Reporter) { r.recorder = rec }
}

// NewReporter creates a Reporter writing through renderer.
func NewReporter(opts Options, renderer Renderer, logger *zap.Logger, options ...Option) *Reporter {
	if opts.MatrixSize <= 0 {
		opts.MatrixSize = 1000
	}
	if opts.VerifyIterations <= 0 {
		opts.VerifyIterations = DefaultVerifyIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		opts:      opts,
		renderer:  renderer,
		logger:    logger,
		hostProbe: ProbeHost,
		now:       time.Now,
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Run executes every check against dev. A nil or unavailable dev takes the
// no-device branch: nothing is allocated and the benchmark is skipped.
//
// The returned report is always non-nil; on failure it carries the error
// message and the renderer has already been finished.
func (r *Reporter) Run(ctx context.Context, dev gpu.GPUBackend) (*Report, error) {
	report := &Report{Level: r.level()}
	err := r.run(ctx, dev, report)
	if err != nil {
		report.Error = err.Error()
		r.logger.Error("pre-flight check failed", zap.Error(err))
	}
	if r.recorder != nil {
		r.recorder.LastRunTimestamp.Set(float64(r.now().Unix()))
	}
	if ferr := r.renderer.Finish(report); ferr != nil {
		err = errors.Join(err, fmt.Errorf("render report: %w", ferr))
	}
	return report, err
}

func (r *Reporter) run(ctx context.Context, dev gpu.GPUBackend, report *Report) error {
	available := dev != nil && dev.IsAvailable()
	cudaReady := available && isCUDA(dev)

	report.Runtime = r.runtimeSection(dev, cudaReady)
	r.renderer.Runtime(report.Runtime)
	if r.recorder != nil {
		r.recorder.DeviceAvailable.Set(boolGauge(cudaReady))
	}

	report.Environment = readEnv(envVarNames(r.opts.Extended, r.opts.ExtraEnvVars), r.lookupEnv)
	r.renderer.Environment(report.Environment)

	if r.opts.Extended {
		host, err := r.hostProbe(ctx)
		if err != nil {
			r.logger.Warn("host probe failed", zap.Error(err))
		} else {
			report.Host = &host
			r.renderer.Host(host)
		}
	}

	report.Driver = r.driverReport()
	r.renderer.Driver(report.Driver)

	if !available {
		r.logger.Warn("no compute device available, skipping device checks")
		r.renderer.NoDevice()
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if !cudaReady {
		r.logger.Warn("benchmarking the host backend, no CUDA device is in use", zap.String("backend", dev.Name()))
	}
	device := r.deviceSection(dev.GetDeviceInfo(), !cudaReady)
	report.Device = &device
	r.renderer.Device(device)
	if r.recorder != nil && cudaReady {
		r.recorder.ComputeCapability.WithLabelValues(device.Name, "major").Set(float64(device.Major))
		r.recorder.ComputeCapability.WithLabelValues(device.Name, "minor").Set(float64(device.Minor))
	}

	before := dev.MemoryStats()
	report.MemoryBefore = &before
	r.renderer.Memory("Memory before benchmark", before)
	r.recordMemory("before", before)

	if err := ctx.Err(); err != nil {
		return err
	}

	r.renderer.BenchmarkStart(r.opts.MatrixSize)
	result, benchErr := r.benchmark(dev)
	// The cache is emptied on every path so a failed benchmark does not
	// leave reserved device memory behind.
	if err := dev.EmptyCache(); err != nil {
		benchErr = errors.Join(benchErr, fmt.Errorf("empty cache: %w", err))
	}
	if benchErr != nil {
		return benchErr
	}
	report.Benchmark = result
	r.renderer.Benchmark(*result)
	r.recordBenchmark(result)

	after := dev.MemoryStats()
	report.MemoryAfter = &after
	r.renderer.Memory("Memory after cleanup", after)
	r.recordMemory("after", after)

	if after.Allocated > before.Allocated {
		r.logger.Warn("device memory still allocated after cleanup",
			zap.Uint64("before", before.Allocated),
			zap.Uint64("after", after.Allocated))
	}
	return nil
}

// benchmark multiplies two random square matrices once untimed and once
// timed with device events. Every matrix and timer is released before it
// returns, on success and failure alike.
func (r *Reporter) benchmark(dev gpu.GPUBackend) (result *BenchmarkResult, err error) {
	n := r.opts.MatrixSize
	seed := r.opts.Seed
	if seed == 0 {
		seed = uint64(r.now().UnixNano())
	}
	log := r.logger.With(zap.Int("size", n), zap.Uint64("seed", seed))

	a, err := dev.RandomMatrix(n, n, seed)
	if err != nil {
		return nil, fmt.Errorf("allocate matrix A: %w", err)
	}
	defer gpu.ReleaseInto(&err, a)

	b, err := dev.RandomMatrix(n, n, seed+1)
	if err != nil {
		return nil, fmt.Errorf("allocate matrix B: %w", err)
	}
	defer gpu.ReleaseInto(&err, b)

	warm, err := dev.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("warm-up multiplication: %w", err)
	}
	if err := warm.Release(); err != nil {
		return nil, fmt.Errorf("release warm-up result: %w", err)
	}
	if err := dev.Synchronize(); err != nil {
		return nil, err
	}
	log.Debug("warm-up multiplication done")

	timer, err := dev.NewTimer()
	if err != nil {
		return nil, fmt.Errorf("create timer: %w", err)
	}
	defer gpu.ReleaseInto(&err, timer)

	if err := timer.Start(); err != nil {
		return nil, fmt.Errorf("record start event: %w", err)
	}
	c, err := dev.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("timed multiplication: %w", err)
	}
	defer gpu.ReleaseInto(&err, c)
	if err := timer.Stop(); err != nil {
		return nil, fmt.Errorf("record stop event: %w", err)
	}
	if err := dev.Synchronize(); err != nil {
		return nil, err
	}
	elapsed, err := timer.Elapsed()
	if err != nil {
		return nil, fmt.Errorf("read elapsed time: %w", err)
	}

	ms := float64(elapsed) / float64(time.Millisecond)
	band := ClassifyPerformance(ms)
	label := band.Label()
	if !isCUDA(dev) {
		label = band.HostLabel()
	}
	result = &BenchmarkResult{
		Size:      n,
		Seed:      seed,
		ElapsedMS: ms,
		GFLOPS:    gflops(n, elapsed),
		Band:      band.String(),
		Label:     label,
	}
	log.Info("matrix multiplication benchmark",
		zap.Float64("elapsed_ms", ms),
		zap.Float64("gflops", result.GFLOPS),
		zap.String("band", result.Band))

	if r.opts.Extended {
		ok, err := r.verify(dev, a, b, c, seed)
		if err != nil {
			return nil, fmt.Errorf("verify result: %w", err)
		}
		result.Verified = &ok
		if !ok {
			log.Error("matrix multiplication result failed verification")
		}
	}

	return result, nil
}

func (r *Reporter) verify(dev gpu.GPUBackend, a, b, c gpu.Matrix, seed uint64) (bool, error) {
	ha, err := dev.Download(a)
	if err != nil {
		return false, err
	}
	hb, err := dev.Download(b)
	if err != nil {
		return false, err
	}
	hc, err := dev.Download(c)
	if err != nil {
		return false, err
	}
	return FreivaldsVerify(ha, hb, hc, a.Rows(), a.Cols(), b.Cols(), r.opts.VerifyIterations, seed)
}

func (r *Reporter) level() string {
	if r.opts.Extended {
		return "extended"
	}
	return "basic"
}

func (r *Reporter) runtimeSection(dev gpu.GPUBackend, cudaReady bool) RuntimeSection {
	section := RuntimeSection{
		GoVersion:       runtime.Version(),
		Backend:         "none",
		CUDACompiled:    gpu.CUDACompiled,
		CUDAVersion:     "N/A",
		DeviceAvailable: cudaReady,
	}
	if dev != nil {
		section.Backend = dev.Name()
	}
	if cudaReady {
		if v := dev.GetDeviceInfo().CUDAVersion; v != "" {
			section.CUDAVersion = v
		}
	}
	return section
}

func (r *Reporter) driverReport() gpu.DriverReport {
	if r.prober == nil {
		return gpu.DriverReport{
			Devices:      []gpu.NVMLDevice{},
			ErrorMessage: "driver probe not configured",
		}
	}
	return r.prober.Probe()
}

func (r *Reporter) deviceSection(info gpu.DeviceInfo, host bool) DeviceSection {
	tier := ClassifyArchitecture(info.Major)
	if host {
		tier = TierHost
	}
	return DeviceSection{
		Name:            info.Name,
		Index:           info.Index,
		Major:           info.Major,
		Minor:           info.Minor,
		TotalMemory:     info.TotalMemory,
		Tier:            tier.String(),
		TierDescription: tier.Description(),
		Host:            host,
	}
}

// isCUDA reports whether dev is a CUDA device rather than the host backend.
func isCUDA(dev gpu.GPUBackend) bool {
	return dev.Name() == gpu.BackendCUDA
}

func (r *Reporter) recordMemory(phase string, s gpu.MemoryStats) {
	if r.recorder == nil {
		return
	}
	r.recorder.MemoryBytes.WithLabelValues(phase, "total").Set(float64(s.Total))
	r.recorder.MemoryBytes.WithLabelValues(phase, "allocated").Set(float64(s.Allocated))
	r.recorder.MemoryBytes.WithLabelValues(phase, "reserved").Set(float64(s.Reserved))
}

func (r *Reporter) recordBenchmark(res *BenchmarkResult) {
	if r.recorder == nil {
		return
	}
	r.recorder.MatMulSize.Set(float64(res.Size))
	r.recorder.MatMulDurationMS.Set(res.ElapsedMS)
	r.recorder.MatMulGFLOPS.Set(res.GFLOPS)
	r.recorder.SetBand(res.Band, bandNames())
}

// gflops is 2n³ floating point operations over the elapsed time.
func gflops(n int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	flops := 2 * float64(n) * float64(n) * float64(n)
	return flops / elapsed.Seconds() / 1e9
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
