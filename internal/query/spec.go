package query

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/spiral"
	pidxsync "github.com/xtxerr/pidx/internal/sync"
)

// Spec describes one spiral traversal.
type Spec struct {
	// ID identifies the execution in logs and history. A fresh UUID is
	// assigned when empty.
	ID string

	Curve         spiral.Curve
	Start         Position
	InitialRadius float64 // also the per-step search radius
	GrowthRate    float64

	// Custom holds the full parameter set for spiral.Custom. Other curves
	// take A=InitialRadius and B=GrowthRate.
	Custom spiral.Params

	MaxDepth   int
	Criteria   []Criterion
	MaxResults int
	Timeout    time.Duration
}

// Validate checks field ranges and the curve name.
func (s *Spec) Validate() error {
	if _, err := spiral.ParseCurve(string(s.Curve)); err != nil {
		return pidxerrors.NewInvalidQuery("curve", "unknown curve "+string(s.Curve))
	}
	if !finite(s.Start.X) || !finite(s.Start.Y) {
		return pidxerrors.NewInvalidQuery("start", "must be finite")
	}
	if !finite(s.InitialRadius) || s.InitialRadius <= 0 {
		return pidxerrors.NewInvalidQuery("initial_radius", "must be positive")
	}
	if !finite(s.GrowthRate) {
		return pidxerrors.NewInvalidQuery("growth_rate", "must be finite")
	}
	if s.MaxDepth < 0 {
		return pidxerrors.NewInvalidQuery("max_depth", "must not be negative")
	}
	if s.MaxResults < 1 {
		return pidxerrors.NewInvalidQuery("max_results", "must be at least 1")
	}
	if s.Timeout <= 0 {
		return pidxerrors.NewInvalidQuery("timeout", "must be positive")
	}
	return nil
}

// params returns the curve parameters for the traversal.
func (s *Spec) params() spiral.Params {
	if s.Curve == spiral.Custom {
		return s.Custom
	}
	return spiral.Params{A: s.InitialRadius, B: s.GrowthRate}
}

// cacheKey returns the cache slot for the spec and its canonical form. Every
// field that affects the result except the ID takes part. A hit is confirmed
// against the canonical form so a hash collision reads as a miss.
func (s *Spec) cacheKey() (uint64, string) {
	keys := make([]string, len(s.Criteria))
	for i, c := range s.Criteria {
		keys[i] = c.key()
	}
	slices.Sort(keys)

	floats := []float64{
		s.Start.X, s.Start.Y, s.InitialRadius, s.GrowthRate,
		s.Custom.A, s.Custom.B, s.Custom.C, s.Custom.D,
	}
	var b strings.Builder
	b.WriteString(string(s.Curve))
	for _, f := range floats {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(math.Float64bits(f), 16))
	}
	fmt.Fprintf(&b, "|%d|%d|%d", s.MaxDepth, s.MaxResults, int64(s.Timeout))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(k))
	}

	hash := pidxsync.NewHashBuilder().
		String(string(s.Curve)).
		Floats(floats...).
		Int(s.MaxDepth).
		Strings(keys).
		Int(s.MaxResults).
		Duration(s.Timeout).
		Build()
	return hash, b.String()
}

// prepare validates a Spec, compiles its criteria and assigns an ID.
// The returned spec is a copy.
func prepare(spec Spec) (Spec, error) {
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	compiled, err := compileCriteria(spec.Criteria)
	if err != nil {
		return Spec{}, err
	}
	spec.Criteria = compiled
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	return spec, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
