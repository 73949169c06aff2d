package diag

import "os"

// NotSet is printed for environment variables that are absent.
const NotSet = "Not set"

// BasicEnvVars are reported at every level.
var BasicEnvVars = []string{
	"CUDA_VISIBLE_DEVICES",
	"CUDA_DEVICE_ORDER",
	"PYTORCH_CUDA_ALLOC_CONF",
}

// ExtendedEnvVars are added at the extended level.
var ExtendedEnvVars = []string{
	"CUDNN_BENCHMARK",
	"TORCH_CUDA_MATMUL_PRECISION",
}

// EnvVar is one reported environment variable.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Set   bool   `json:"set"`
}

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(string) (string, bool)

// envVarNames returns the names to report for a level, with extra names
// appended. Each name appears once.
func envVarNames(extended bool, extra []string) []string {
	names := append([]string{}, BasicEnvVars...)
	if extended {
		names = append(names, ExtendedEnvVars...)
	}
	names = append(names, extra...)

	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func readEnv(names []string, lookup LookupEnvFunc) []EnvVar {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	vars := make([]EnvVar, 0, len(names))
	for _, n := range names {
		v, ok := lookup(n)
		if !ok {
			v = NotSet
		}
		vars = append(vars, EnvVar{Name: n, Value: v, Set: ok})
	}
	return vars
}
