package digits

import (
	"context"
	"math/big"
)

// seriesResult is the outcome of one bounded series evaluation.
type seriesResult struct {
	digits     string
	iterations int
	converged  bool
	rate       float64
}

// convergenceTracker samples term magnitudes every interval iterations and
// counts how often the magnitude strictly decreased.
type convergenceTracker struct {
	interval  int
	last      *big.Int
	samples   int
	decreased int
}

func newConvergenceTracker(interval int) *convergenceTracker {
	if interval < 1 {
		interval = 1
	}
	return &convergenceTracker{interval: interval}
}

func (t *convergenceTracker) observe(iteration int, term *big.Int) {
	if iteration != 1 && iteration%t.interval != 0 {
		return
	}
	mag := new(big.Int).Abs(term)
	if t.last != nil {
		t.samples++
		if mag.Cmp(t.last) < 0 {
			t.decreased++
		}
	}
	t.last = mag
}

func (t *convergenceTracker) rate(converged bool) float64 {
	if t.samples == 0 {
		if converged {
			return 1
		}
		return 0
	}
	return float64(t.decreased) / float64(t.samples)
}

// ctxCheckInterval is how many iterations pass between context checks.
const ctxCheckInterval = 64

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// fractionDigits renders a fixed-point value of π scaled by 10^work and
// returns the first precision digits after the decimal point.
func fractionDigits(pi *big.Int, precision int) string {
	s := pi.String()
	// s is "3" followed by the fraction.
	if len(s) < 1+precision {
		return ""
	}
	return s[1 : 1+precision]
}

// chudnovsky evaluates π with the Chudnovsky series in fixed point with work
// digits, stopping when the scaled term reaches zero or after maxIter terms.
func chudnovsky(ctx context.Context, precision, work, maxIter, sampleInterval int) (seriesResult, error) {
	one := pow10(work)

	c := big.NewInt(640320)
	c3over24 := new(big.Int).Mul(c, c)
	c3over24.Mul(c3over24, c)
	c3over24.Quo(c3over24, big.NewInt(24))

	ak := new(big.Int).Set(one)
	aSum := new(big.Int).Set(one)
	bSum := new(big.Int)
	tracker := newConvergenceTracker(sampleInterval)

	var (
		k         int64 = 1
		converged bool
		num       = new(big.Int)
		den       = new(big.Int)
		tmp       = new(big.Int)
	)

	for ; int(k) <= maxIter; k++ {
		if k%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return seriesResult{}, err
			}
		}

		// a_k = a_{k-1} · −(6k−5)(2k−1)(6k−1) / (k³ · 640320³/24)
		num.SetInt64(-(6*k - 5))
		num.Mul(num, tmp.SetInt64(2*k-1))
		num.Mul(num, tmp.SetInt64(6*k-1))
		ak.Mul(ak, num)
		den.SetInt64(k)
		den.Mul(den, tmp.SetInt64(k))
		den.Mul(den, tmp.SetInt64(k))
		den.Mul(den, c3over24)
		ak.Quo(ak, den)

		aSum.Add(aSum, ak)
		tmp.Mul(big.NewInt(k), ak)
		bSum.Add(bSum, tmp)

		tracker.observe(int(k), ak)

		if ak.Sign() == 0 {
			converged = true
			break
		}
	}

	iterations := int(k)
	if !converged {
		iterations = maxIter
		return seriesResult{iterations: iterations, rate: tracker.rate(false)}, nil
	}

	total := new(big.Int).Mul(big.NewInt(13591409), aSum)
	total.Add(total, tmp.Mul(big.NewInt(545140134), bSum))

	sqrt := new(big.Int).Mul(big.NewInt(10005), one)
	sqrt.Mul(sqrt, one)
	sqrt.Sqrt(sqrt)

	pi := new(big.Int).Mul(big.NewInt(426880), sqrt)
	pi.Mul(pi, one)
	pi.Quo(pi, total)

	return seriesResult{
		digits:     fractionDigits(pi, precision),
		iterations: iterations,
		converged:  true,
		rate:       tracker.rate(true),
	}, nil
}

// machin evaluates π = 16·arctan(1/5) − 4·arctan(1/239) in fixed point. The
// iteration bound covers both arctangent series together.
func machin(ctx context.Context, precision, work, maxIter, sampleInterval int) (seriesResult, error) {
	one := pow10(work)
	tracker := newConvergenceTracker(sampleInterval)

	iterations := 0
	a5, ok, err := arccot(ctx, 5, one, maxIter, &iterations, tracker)
	if err != nil || !ok {
		return seriesResult{iterations: iterations, rate: tracker.rate(false)}, err
	}
	a239, ok, err := arccot(ctx, 239, one, maxIter, &iterations, tracker)
	if err != nil || !ok {
		return seriesResult{iterations: iterations, rate: tracker.rate(false)}, err
	}

	pi := new(big.Int).Mul(big.NewInt(16), a5)
	pi.Sub(pi, new(big.Int).Mul(big.NewInt(4), a239))

	return seriesResult{
		digits:     fractionDigits(pi, precision),
		iterations: iterations,
		converged:  true,
		rate:       tracker.rate(true),
	}, nil
}

// arccot computes arctan(1/x) scaled by one. iterations is shared across
// calls so the bound applies to the whole formula.
func arccot(ctx context.Context, x int64, one *big.Int, maxIter int, iterations *int, tracker *convergenceTracker) (*big.Int, bool, error) {
	bx := big.NewInt(x)
	x2 := big.NewInt(x * x)

	xpow := new(big.Int).Quo(one, bx)
	sum := new(big.Int).Set(xpow)
	term := new(big.Int)
	positive := false

	for n := int64(1); ; n++ {
		if *iterations >= maxIter {
			return nil, false, nil
		}
		*iterations++
		if *iterations%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
		}

		xpow.Quo(xpow, x2)
		term.Quo(xpow, big.NewInt(2*n+1))
		tracker.observe(*iterations, term)
		if term.Sign() == 0 {
			return sum, true, nil
		}
		if positive {
			sum.Add(sum, term)
		} else {
			sum.Sub(sum, term)
		}
		positive = !positive
	}
}
