package gpu

import "fmt"

// NVMLDevice describes one GPU as seen by the NVIDIA management library.
type NVMLDevice struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	UUID        string `json:"uuid,omitempty"`
	Major       int    `json:"major"`
	Minor       int    `json:"minor"`
	MemoryTotal uint64 `json:"memoryTotal"`
	MemoryUsed  uint64 `json:"memoryUsed"`
	MemoryFree  uint64 `json:"memoryFree"`
}

// DriverReport is the result of probing the driver through NVML.
type DriverReport struct {
	NVMLOk            bool         `json:"nvmlOk"`
	DriverVersion     string       `json:"driverVersion,omitempty"`
	CUDADriverVersion int          `json:"cudaDriverVersion,omitempty"`
	Devices           []NVMLDevice `json:"devices"`
	ErrorMessage      string       `json:"errorMessage,omitempty"`
}

// FormatCUDAVersion turns an encoded CUDA version (1000*major + 10*minor)
// into "major.minor". Zero or negative values yield "N/A".
func FormatCUDAVersion(v int) string {
	if v <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}
