package testutil

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// DeterministicNoise returns n standard normal values from a fixed seed.
func DeterministicNoise(seed uint64, n int) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// RandomMatrix returns an r×c matrix of standard normal values.
func RandomMatrix(seed uint64, r, c int) *mat.Dense {
	return mat.NewDense(r, c, DeterministicNoise(seed, r*c))
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// DampedModes returns n blocks of size p×m holding the impulse response of
// a system with one damped cosine mode per (radius, angle) pair. Each mode
// has rank-one residue u vᵀ with entries drawn from seed, so the Hankel rank
// is twice the mode count. Block 0 is zero.
func DampedModes(seed uint64, n, p, m int, radius, angle []float64) []float64 {
	coef := DeterministicNoise(seed, len(radius)*(p+m))
	out := make([]float64, n*p*m)
	for k := range radius {
		u := coef[k*(p+m) : k*(p+m)+p]
		v := coef[k*(p+m)+p : (k+1)*(p+m)]
		for t := 1; t < n; t++ {
			g := math.Pow(radius[k], float64(t-1)) * math.Cos(angle[k]*float64(t-1))
			for i := range p {
				for j := range m {
					out[(t*p+i)*m+j] += g * u[i] * v[j]
				}
			}
		}
	}
	return out
}

// HankelMatrix forms the block Hankel matrix H[a,b] = h[a+b] with k block
// rows and l block columns from p×m blocks stored time-major.
func HankelMatrix(h []float64, p, m, k, l int) *mat.Dense {
	d := mat.NewDense(k*p, l*m, nil)
	for a := range k {
		for b := range l {
			for i := range p {
				for j := range m {
					d.Set(a*p+i, b*m+j, h[((a+b)*p+i)*m+j])
				}
			}
		}
	}
	return d
}
