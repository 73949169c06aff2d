package diag

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/gpucheck/internal/gpu"
)

const bytesPerGB = 1024 * 1024 * 1024

// Renderer receives report sections as they are produced.
type Renderer interface {
	Runtime(RuntimeSection)
	Environment([]EnvVar)
	Host(HostSection)
	Driver(gpu.DriverReport)
	Device(DeviceSection)
	Memory(title string, stats gpu.MemoryStats)
	BenchmarkStart(size int)
	Benchmark(BenchmarkResult)
	NoDevice()
	// Finish is called exactly once, after the last section or after a
	// failure.
	Finish(*Report) error
}

// NewRenderer returns the renderer for a report format.
func NewRenderer(format string, w io.Writer, banner bool) (Renderer, error) {
	switch format {
	case "", "text":
		return NewTextRenderer(w, banner), nil
	case "json":
		return NewJSONRenderer(w), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// errWriter remembers the first write error so section methods can stay
// error free.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// TextRenderer streams a human readable report.
type TextRenderer struct {
	out     *errWriter
	banner  bool
	heading lipgloss.Style
	warn    lipgloss.Style
	ok      lipgloss.Style
	bands   map[string]lipgloss.Style
}

// NewTextRenderer creates a text renderer. Colors are only emitted when w is
// a terminal.
func NewTextRenderer(w io.Writer, banner bool) *TextRenderer {
	lr := lipgloss.NewRenderer(w)
	good := lr.NewStyle().Foreground(lipgloss.Color("2"))
	return &TextRenderer{
		out:     &errWriter{w: w},
		banner:  banner,
		heading: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		warn:    lr.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		ok:      good,
		bands: map[string]lipgloss.Style{
			BandExcellent.String():  good.Bold(true),
			BandGood.String():       good,
			BandAcceptable.String(): lr.NewStyle().Foreground(lipgloss.Color("11")),
			BandSuboptimal.String(): lr.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
}

func (t *TextRenderer) section(title string) {
	t.out.printf("\n%s\n", t.heading.Render("== "+title+" =="))
}

func (t *TextRenderer) Runtime(s RuntimeSection) {
	if t.banner {
		t.out.printf("%s\n", figure.NewFigure("GPU Check", "", true).String())
	}
	t.section("Runtime")
	t.out.printf("Go version: %s\n", s.GoVersion)
	t.out.printf("Compute backend: %s\n", s.Backend)
	t.out.printf("CUDA compiled: %t\n", s.CUDACompiled)
	t.out.printf("CUDA version: %s\n", s.CUDAVersion)
	t.out.printf("CUDA available: %t\n", s.DeviceAvailable)
}

func (t *TextRenderer) Environment(vars []EnvVar) {
	t.section("Environment")
	for _, v := range vars {
		t.out.printf("%s: %s\n", v.Name, v.Value)
	}
}

func (t *TextRenderer) Host(h HostSection) {
	t.section("Host")
	t.out.printf("Hostname: %s\n", h.Hostname)
	t.out.printf("OS: %s (%s %s)\n", h.OS, h.Platform, h.PlatformVersion)
	t.out.printf("Kernel: %s\n", h.KernelVersion)
	t.out.printf("CPUs: %d\n", h.CPUs)
	t.out.printf("Host memory: %.2f GB total, %.2f GB available\n", gb(h.MemoryTotal), gb(h.MemoryAvailable))
}

func (t *TextRenderer) Driver(d gpu.DriverReport) {
	t.section("Driver")
	if !d.NVMLOk {
		t.out.printf("%s\n", t.warn.Render("NVML unavailable: "+d.ErrorMessage))
		return
	}
	t.out.printf("Driver version: %s\n", d.DriverVersion)
	t.out.printf("CUDA driver version: %s\n", gpu.FormatCUDAVersion(d.CUDADriverVersion))
	t.out.printf("Visible GPUs: %d\n", len(d.Devices))
	for _, dev := range d.Devices {
		t.out.printf("  GPU %d: %s (%d.%d), %.2f GB total, %.2f GB used\n",
			dev.Index, dev.Name, dev.Major, dev.Minor, gb(dev.MemoryTotal), gb(dev.MemoryUsed))
	}
}

func (t *TextRenderer) Device(d DeviceSection) {
	t.section("Device")
	if d.Host {
		t.out.printf("%s\n", t.warn.Render("No CUDA device in use; benchmarking the host CPU backend."))
	}
	t.out.printf("Device name: %s\n", d.Name)
	if d.Host {
		t.out.printf("Compute capability: N/A\n")
	} else {
		t.out.printf("Compute capability: (%d, %d)\n", d.Major, d.Minor)
	}
	t.out.printf("Total memory: %.2f GB\n", gb(d.TotalMemory))
	t.out.printf("Architecture: %s\n", d.TierDescription)
}

func (t *TextRenderer) Memory(title string, s gpu.MemoryStats) {
	t.section(title)
	t.out.printf("Total: %.2f GB\n", gb(s.Total))
	t.out.printf("Allocated: %.2f GB\n", gb(s.Allocated))
	t.out.printf("Reserved: %.2f GB\n", gb(s.Reserved))
}

func (t *TextRenderer) BenchmarkStart(size int) {
	t.section("Benchmark")
	t.out.printf("Running %dx%d matrix multiplication...\n", size, size)
}

func (t *TextRenderer) Benchmark(b BenchmarkResult) {
	t.out.printf("Matrix multiplication time: %.2f ms\n", b.ElapsedMS)
	t.out.printf("Throughput: %.1f GFLOPS\n", b.GFLOPS)
	style, ok := t.bands[b.Band]
	if !ok {
		style = t.ok
	}
	t.out.printf("Performance: %s (%s)\n", style.Render(b.Band), b.Label)
	if b.Verified != nil {
		if *b.Verified {
			t.out.printf("Result verification: %s\n", t.ok.Render("passed"))
		} else {
			t.out.printf("Result verification: %s\n", t.warn.Render("FAILED"))
		}
	}
}

func (t *TextRenderer) NoDevice() {
	t.out.printf("\n%s\n", t.warn.Render("No CUDA device available. GPU training will not be possible."))
}

func (t *TextRenderer) Finish(r *Report) error {
	if r.Error != "" {
		t.out.printf("\n%s\n", t.warn.Render("GPU test failed: "+r.Error))
	} else {
		t.out.printf("\n%s\n", t.ok.Render("GPU test completed."))
	}
	return t.out.err
}

// JSONRenderer writes the whole report as one JSON document on Finish.
type JSONRenderer struct {
	w io.Writer
}

func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{w: w}
}

func (j *JSONRenderer) Runtime(RuntimeSection) {}
func (j *JSONRenderer) Environment([]EnvVar) {}
func (j *JSONRenderer) Host(HostSection) {}
func (j *JSONRenderer) Driver(gpu.DriverReport) {}
func (j *JSONRenderer) Device(DeviceSection) {}
func (j *JSONRenderer) Memory(string, gpu.MemoryStats) {}
func (j *JSONRenderer) BenchmarkStart(int) {}
func (j *JSONRenderer) Benchmark(BenchmarkResult) {}
func (j *JSONRenderer) NoDevice() {}

func (j *JSONRenderer) Finish(r *Report) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func gb(b uint64) float64 {
	return float64(b) / bytesPerGB
}
