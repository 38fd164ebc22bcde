// Package spiral maps angles to points on polar spiral curves.
//
// All functions are pure. Radii that would be non-finite return the Undefined
// point instead of NaN or Inf, and finite radii are clamped to a per-curve
// bound (see ClampBounds).
package spiral

import (
	"math"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// Curve names a spiral family.
type Curve string

const (
	Archimedean Curve = constants.CurveArchimedean // r = a + bθ
	Logarithmic Curve = constants.CurveLogarithmic // r = a·e^(bθ)
	Fibonacci   Curve = constants.CurveFibonacci   // r = φ^(2θ/π)
	Hyperbolic  Curve = constants.CurveHyperbolic  // r = a/θ
	Lituus      Curve = constants.CurveLituus      // r = a/√θ
	Exponential Curve = constants.CurveExponential // r = r₀·e^(kθ), r₀ = A, k = B
	Custom      Curve = constants.CurveCustom      // r = a·(b + cθ)^d
)

// Phi is the golden ratio.
var Phi = (1 + math.Sqrt(5)) / 2

// ParseCurve converts a name to a Curve.
func ParseCurve(name string) (Curve, error) {
	if !constants.IsValidCurve(name) {
		return "", pidxerrors.Wrapf(pidxerrors.ErrUnknownCurve, "curve %q", name)
	}
	return Curve(name), nil
}

// Params are the curve coefficients. Curves ignore the fields they do not use.
type Params struct {
	A, B, C, D float64
}

// DefaultParams returns the standard coefficients for a curve.
func DefaultParams(c Curve) Params {
	switch c {
	case Archimedean:
		return Params{A: 1, B: 0.1}
	case Logarithmic:
		return Params{A: 1, B: 0.2}
	case Exponential:
		return Params{A: 1, B: 0.3}
	case Custom:
		return Params{A: 1, B: 0.5, C: 0.1, D: 2}
	case Hyperbolic, Lituus:
		return Params{A: 1}
	default:
		return Params{}
	}
}

// Point is a position on a curve. Defined is false for the Undefined sentinel.
type Point struct {
	X, Y    float64
	Radius  float64
	Theta   float64
	Defined bool
}

// Undefined is returned where a curve has no finite radius.
var Undefined = Point{}

// DefaultClampBounds returns the documented radius bounds per curve.
func DefaultClampBounds() map[Curve]float64 {
	return map[Curve]float64{
		Archimedean: config.DefaultGrowthClamp,
		Logarithmic: config.DefaultGrowthClamp,
		Fibonacci:   config.DefaultGrowthClamp,
		Exponential: config.DefaultGrowthClamp,
		Hyperbolic:  config.DefaultInverseClamp,
		Lituus:      config.DefaultInverseClamp,
		Custom:      config.DefaultInverseClamp,
	}
}

// Mapper converts angles to points using a fixed clamp table.
// A Mapper is immutable and safe for concurrent use.
type Mapper struct {
	clamp map[Curve]float64
}

// NewMapper creates a Mapper. overrides replaces individual default bounds;
// non-positive overrides are ignored.
func NewMapper(overrides map[Curve]float64) *Mapper {
	clamp := DefaultClampBounds()
	for c, b := range overrides {
		if b > 0 {
			clamp[c] = b
		}
	}
	return &Mapper{clamp: clamp}
}

// ClampBound returns the radius bound for a curve.
func (m *Mapper) ClampBound(c Curve) float64 {
	if b, ok := m.clamp[c]; ok {
		return b
	}
	return config.DefaultInverseClamp
}

// Radius returns the clamped radius at theta. ok is false where the curve is
// undefined.
func (m *Mapper) Radius(theta float64, c Curve, p Params) (r float64, ok bool) {
	switch c {
	case Archimedean:
		r = p.A + p.B*theta
	case Logarithmic, Exponential:
		r = p.A * math.Exp(p.B*theta)
	case Fibonacci:
		r = math.Pow(Phi, 2*theta/math.Pi)
	case Hyperbolic:
		if theta == 0 {
			return 0, false
		}
		r = p.A / theta
	case Lituus:
		if theta <= 0 {
			return 0, false
		}
		r = p.A / math.Sqrt(theta)
	case Custom:
		base := p.B + p.C*theta
		if base < 0 && p.D != math.Trunc(p.D) {
			return 0, false
		}
		if base == 0 && p.D < 0 {
			return 0, false
		}
		r = p.A * math.Pow(base, p.D)
	default:
		return 0, false
	}

	if math.IsNaN(r) {
		return 0, false
	}
	bound := m.ClampBound(c)
	switch {
	case r > bound:
		r = bound
	case r < -bound:
		r = -bound
	}
	return r, true
}

// Position returns the cartesian point at theta, or Undefined.
func (m *Mapper) Position(theta float64, c Curve, p Params) Point {
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return Undefined
	}
	r, ok := m.Radius(theta, c, p)
	if !ok {
		return Undefined
	}
	return Point{
		X:       r * math.Cos(theta),
		Y:       r * math.Sin(theta),
		Radius:  r,
		Theta:   theta,
		Defined: true,
	}
}
