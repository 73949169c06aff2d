package diag

// ArchitectureTier groups devices by the major compute capability.
type ArchitectureTier int

const (
	TierBase ArchitectureTier = iota
	TierMid
	TierTop
	// TierHost marks a run on the host CPU backend, which has no GPU tier.
	TierHost
)

// ClassifyArchitecture maps a capability major number to a tier:
// 8 and above is top, 7 is mid, anything lower is base.
func ClassifyArchitecture(major int) ArchitectureTier {
	switch {
	case major >= 8:
		return TierTop
	case major >= 7:
		return TierMid
	default:
		return TierBase
	}
}

func (t ArchitectureTier) String() string {
	switch t {
	case TierTop:
		return "top"
	case TierMid:
		return "mid"
	case TierHost:
		return "host"
	default:
		return "base"
	}
}

// Description names the architecture generation and what it means for
// mixed-precision training.
func (t ArchitectureTier) Description() string {
	switch t {
	case TierTop:
		return "Ampere or newer: TF32 and BF16 tensor cores available"
	case TierMid:
		return "Volta/Turing: FP16 tensor cores available"
	case TierHost:
		return "host CPU (no GPU tier)"
	default:
		return "Pascal or older: limited mixed-precision support"
	}
}

// PerformanceBand classifies the timed multiplication.
type PerformanceBand int

const (
	BandExcellent PerformanceBand = iota
	BandGood
	BandAcceptable
	BandSuboptimal
)

// AllBands lists every band in order, best first.
var AllBands = []PerformanceBand{BandExcellent, BandGood, BandAcceptable, BandSuboptimal}

// ClassifyPerformance maps elapsed milliseconds to a band. Thresholds are
// exclusive upper bounds: <10 excellent, <50 good, <100 acceptable.
func ClassifyPerformance(elapsedMS float64) PerformanceBand {
	switch {
	case elapsedMS < 10:
		return BandExcellent
	case elapsedMS < 50:
		return BandGood
	case elapsedMS < 100:
		return BandAcceptable
	default:
		return BandSuboptimal
	}
}

func (b PerformanceBand) String() string {
	switch b {
	case BandExcellent:
		return "excellent"
	case BandGood:
		return "good"
	case BandAcceptable:
		return "acceptable"
	default:
		return "suboptimal"
	}
}

// Label is the qualitative verdict printed next to the band.
func (b PerformanceBand) Label() string {
	switch b {
	case BandExcellent:
		return "GPU is performing very well"
	case BandGood:
		return "GPU performance is good"
	case BandAcceptable:
		return "GPU performance is acceptable but could be better"
	default:
		return "GPU performance is suboptimal; check drivers, clocks and other processes on the device"
	}
}

// HostLabel is the verdict for a host CPU run. The thresholds are calibrated
// for GPUs, so it names the band without judging the device.
func (b PerformanceBand) HostLabel() string {
	return "host CPU run; " + b.String() + " by GPU thresholds, no GPU was tested"
}

func bandNames() []string {
	names := make([]string, len(AllBands))
	for i, b := range AllBands {
		names[i] = b.String()
	}
	return names
}
