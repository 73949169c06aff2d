package diag

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/fxnlabs/gpucheck/internal/gpu"
	"gonum.org/v1/gonum/mat"
)

// freivaldsTolerance is relative to sum_j |A_ij|·|(Br)_j|, which bounds the
// magnitude of every term contributing to row i.
const freivaldsTolerance = 1e-4

// FreivaldsVerify probabilistically checks C = A×B for row-major float32
// matrices (A is m×k, B is k×n, C is m×n). Each iteration multiplies by a
// random 0/1 vector; a wrong product survives one iteration with probability
// at most 1/2, so the false positive rate is at most 2^-iterations.
func FreivaldsVerify(a, b, c []float32, m, k, n, iterations int, seed uint64) (bool, error) {
	if m <= 0 || k <= 0 || n <= 0 {
		return false, fmt.Errorf("invalid dimensions m=%d k=%d n=%d", m, k, n)
	}
	if len(a) != m*k || len(b) != k*n || len(c) != m*n {
		return false, fmt.Errorf("matrix sizes do not match dimensions")
	}

	A := mat.NewDense(m, k, gpu.Float32ToFloat64(a))
	B := mat.NewDense(k, n, gpu.Float32ToFloat64(b))
	C := mat.NewDense(m, n, gpu.Float32ToFloat64(c))

	absA := mat.NewDense(m, k, nil)
	absA.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, A)

	rng := rand.New(rand.NewPCG(seed, seed+1))
	r := mat.NewVecDense(n, nil)
	var br, abr, cr, absBr, scale mat.VecDense

	for it := 0; it < iterations; it++ {
		for j := 0; j < n; j++ {
			r.SetVec(j, float64(rng.IntN(2)))
		}

		br.MulVec(B, r)
		abr.MulVec(A, &br)
		cr.MulVec(C, r)

		absBr.CloneFromVec(&br)
		for j := 0; j < absBr.Len(); j++ {
			absBr.SetVec(j, math.Abs(absBr.AtVec(j)))
		}
		scale.MulVec(absA, &absBr)

		for i := 0; i < m; i++ {
			diff := math.Abs(abr.AtVec(i) - cr.AtVec(i))
			if diff > freivaldsTolerance*(1+scale.AtVec(i)) {
				return false, nil
			}
		}
	}

	return true, nil
}
