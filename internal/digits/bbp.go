package digits

import (
	"math"
)

// MaxBBPPosition bounds BBP positions so that (8k+6)² fits in a uint64.
const MaxBBPPosition = 1 << 28

// hexAlphabet renders digit values 0-15.
const hexAlphabet = "0123456789abcdef"

// bbpFraction returns frac(16^n · π) using the Bailey-Borwein-Plouffe formula
//
//	π = Σ 16^-k (4/(8k+1) − 2/(8k+4) − 1/(8k+5) − 1/(8k+6))
//
// The leading hex digits of the result are the π digits at fractional
// positions n, n+1, ...
func bbpFraction(n int) float64 {
	x := 4*bbpSum(1, n) - 2*bbpSum(4, n) - bbpSum(5, n) - bbpSum(6, n)
	return frac(x)
}

// bbpSum returns frac(Σ_k 16^(n−k) / (8k+j)).
func bbpSum(j, n int) float64 {
	s := 0.0
	for k := 0; k <= n; k++ {
		r := uint64(8*k + j)
		s += float64(modPow16(uint64(n-k), r)) / float64(r)
		s = frac(s)
	}

	for k := n + 1; ; k++ {
		t := math.Pow(16, float64(n-k)) / float64(8*k+j)
		if t < 1e-17 {
			break
		}
		s += t
	}
	return frac(s)
}

// modPow16 returns 16^e mod m by binary exponentiation.
func modPow16(e, m uint64) uint64 {
	if m == 1 {
		return 0
	}
	result := uint64(1)
	base := uint64(16) % m
	for e > 0 {
		if e&1 == 1 {
			result = result * base % m
		}
		base = base * base % m
		e >>= 1
	}
	return result
}

func frac(x float64) float64 {
	x -= math.Floor(x)
	if x < 0 {
		x++
	}
	return x
}

// hexChunk renders count hex digits starting at fractional position start.
// count must stay small (at most 8) for the float64 result to be exact.
func hexChunk(start, count int) []byte {
	x := bbpFraction(start)
	out := make([]byte, count)
	for i := 0; i < count; i++ {
		x *= 16
		d := int(math.Floor(x))
		if d > 15 {
			d = 15
		}
		out[i] = hexAlphabet[d]
		x -= float64(d)
	}
	return out
}
