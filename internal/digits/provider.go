package digits

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/workerpool"
)

var log = logging.Component(constants.ComponentDigits)

// Config holds digit provider configuration.
type Config struct {
	// GuardDigits are extra working digits carried by the series.
	GuardDigits int

	// MaxIterations bounds one series evaluation.
	MaxIterations int

	// ConvergenceRetries is how many times a non-converging series is retried
	// with a doubled bound.
	ConvergenceRetries int

	// SampleInterval is the convergence sampling period.
	SampleInterval int

	// BBPChunkDigits is the number of hex digits per BBP evaluation.
	BBPChunkDigits int

	// UnitTimeout is the per-chunk wait on the worker pool. Zero uses the
	// pool default.
	UnitTimeout time.Duration
}

// DefaultConfig returns default provider configuration.
func DefaultConfig() *Config {
	return &Config{
		GuardDigits:        config.DefaultGuardDigits,
		MaxIterations:      config.DefaultMaxIterations,
		ConvergenceRetries: config.DefaultConvergenceRetries,
		SampleInterval:     config.DefaultSampleInterval,
		BBPChunkDigits:     config.DefaultBBPChunkDigits,
	}
}

// Provider computes and caches digit blocks.
//
// Provider is safe for concurrent use. At most one computation per
// (algorithm, precision) is in flight; concurrent callers share its result.
type Provider struct {
	cfg  Config
	pool *workerpool.Pool

	cache sync.Map // cacheKey -> *Block
	group singleflight.Group

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
	failures     atomic.Int64
	extractions  atomic.Int64
	computeNanos atomic.Int64
}

type cacheKey struct {
	algorithm Algorithm
	precision int
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%s:%d", k.algorithm, k.precision)
}

// New creates a Provider. pool may be nil, in which case BBP chunks run on
// the caller's goroutines.
func New(cfg *Config, pool *workerpool.Pool) *Provider {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.GuardDigits < config.MinGuardDigits {
		c.GuardDigits = config.MinGuardDigits
	}
	if c.MaxIterations < 1 {
		c.MaxIterations = config.DefaultMaxIterations
	}
	if c.ConvergenceRetries < 0 {
		c.ConvergenceRetries = 0
	}
	if c.SampleInterval < 1 {
		c.SampleInterval = config.DefaultSampleInterval
	}
	if c.BBPChunkDigits < 1 || c.BBPChunkDigits > 8 {
		c.BBPChunkDigits = config.DefaultBBPChunkDigits
	}
	return &Provider{cfg: c, pool: pool}
}

// ComputeDigits returns precision fractional digits of π computed with the
// given algorithm. Series algorithms return radix-10 digits, BBP returns
// radix-16 digits. Results are cached.
func (p *Provider) ComputeDigits(ctx context.Context, precision int, algorithm Algorithm) (*Block, error) {
	if !constants.IsValidAlgorithm(string(algorithm)) {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrUnsupportedAlgorithm, "algorithm %q", algorithm)
	}
	if precision < 1 {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidPrecision, "precision %d", precision)
	}
	if algorithm == BBP && precision > MaxBBPPosition {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidPrecision, "precision %d exceeds BBP limit", precision)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey{algorithm: algorithm, precision: precision}
	if v, ok := p.cache.Load(key); ok {
		p.hits.Add(1)
		return v.(*Block), nil
	}
	p.misses.Add(1)

	// The shared computation is detached from any single caller so that one
	// caller giving up does not fail the others.
	ch := p.group.DoChan(key.String(), func() (interface{}, error) {
		if v, ok := p.cache.Load(key); ok {
			return v, nil
		}
		block, err := p.compute(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		p.cache.Store(key, block)
		return block, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Block), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) compute(ctx context.Context, key cacheKey) (*Block, error) {
	start := time.Now()
	p.computations.Add(1)

	var (
		block *Block
		err   error
	)
	if key.algorithm == BBP {
		block, err = p.ExtractSequence(ctx, key.precision)
	} else {
		block, err = p.computeSeries(ctx, key)
	}
	if err != nil {
		p.failures.Add(1)
		log.Warn("digit computation failed",
			"algorithm", key.algorithm,
			"precision", key.precision,
			"error", err)
		return nil, err
	}

	p.computeNanos.Add(int64(time.Since(start)))
	log.Info("digit block computed",
		"algorithm", block.Algorithm,
		"precision", block.Precision,
		"iterations", block.Iterations,
		"convergence_rate", block.ConvergenceRate,
		"duration", block.Duration)
	return block, nil
}

func (p *Provider) computeSeries(ctx context.Context, key cacheKey) (*Block, error) {
	start := time.Now()
	work := key.precision + p.cfg.GuardDigits
	bound := p.cfg.MaxIterations

	run := chudnovsky
	if key.algorithm == Machin {
		run = machin
	}

	for attempt := 0; attempt <= p.cfg.ConvergenceRetries; attempt++ {
		res, err := run(ctx, key.precision, work, bound, p.cfg.SampleInterval)
		if err != nil {
			return nil, err
		}
		if res.converged {
			return &Block{
				Digits:              res.digits,
				Radix:               10,
				Precision:           key.precision,
				Algorithm:           key.algorithm,
				ComputedAt:          time.Now(),
				Iterations:          res.iterations,
				ConvergenceAchieved: true,
				ConvergenceRate:     res.rate,
				Duration:            time.Since(start),
			}, nil
		}

		log.Warn("series did not converge, retrying",
			"algorithm", key.algorithm,
			"precision", key.precision,
			"iterations", res.iterations,
			"attempt", attempt+1)
		bound *= 2
	}

	return nil, pidxerrors.Wrapf(pidxerrors.ErrConvergenceFailed,
		"%s at precision %d after %d attempts", key.algorithm, key.precision, p.cfg.ConvergenceRetries+1)
}

// =============================================================================
// Direct extraction
// =============================================================================

// ExtractDigit returns the value (0-15) of the hexadecimal π digit at the
// 0-based fractional position. Position 0 is 2, since π = 3.243f6a88...
// Earlier digits are never computed.
func (p *Provider) ExtractDigit(position int) (byte, error) {
	if position < 0 || position > MaxBBPPosition {
		return 0, pidxerrors.Wrapf(pidxerrors.ErrInvalidPosition, "position %d", position)
	}
	p.extractions.Add(1)
	x := bbpFraction(position)
	d := byte(16 * x)
	if d > 15 {
		d = 15
	}
	return d, nil
}

// ExtractSequence returns the first length hex digits of π as a radix-16
// block. The range is split into chunks evaluated on the worker pool.
func (p *Provider) ExtractSequence(ctx context.Context, length int) (*Block, error) {
	if length < 1 || length > MaxBBPPosition {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidPrecision, "length %d", length)
	}
	start := time.Now()
	chunk := p.cfg.BBPChunkDigits
	out := make([]byte, length)

	chunks := (length + chunk - 1) / chunk
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())

	for i := 0; i < chunks; i++ {
		offset := i * chunk
		n := chunk
		if offset+n > length {
			n = length - offset
		}
		g.Go(func() error {
			digits, err := workerpool.Do(gctx, p.pool, p.cfg.UnitTimeout, func(context.Context) ([]byte, error) {
				return hexChunk(offset, n), nil
			})
			if err != nil {
				return err
			}
			copy(out[offset:], digits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.extractions.Add(int64(chunks))

	return &Block{
		Digits:              string(out),
		Radix:               16,
		Precision:           length,
		Algorithm:           BBP,
		ComputedAt:          time.Now(),
		Iterations:          chunks,
		ConvergenceAchieved: true,
		ConvergenceRate:     1,
		Duration:            time.Since(start),
	}, nil
}

func (p *Provider) concurrency() int {
	if p.pool == nil {
		return 4
	}
	return p.pool.Stats().Workers
}

// =============================================================================
// Cache management and statistics
// =============================================================================

// Clear drops every cached block.
func (p *Provider) Clear() {
	p.cache.Range(func(k, _ any) bool {
		p.cache.Delete(k)
		return true
	})
}

// Stats reports provider cache and computation counters.
type Stats struct {
	CacheSize        int
	CachedKeys       []string
	Hits             int64
	Misses           int64
	Computations     int64
	Failures         int64
	BBPExtractions   int64
	TotalComputeTime time.Duration
}

// Stats returns current provider statistics.
func (p *Provider) Stats() Stats {
	s := Stats{
		Hits:             p.hits.Load(),
		Misses:           p.misses.Load(),
		Computations:     p.computations.Load(),
		Failures:         p.failures.Load(),
		BBPExtractions:   p.extractions.Load(),
		TotalComputeTime: time.Duration(p.computeNanos.Load()),
	}
	p.cache.Range(func(k, _ any) bool {
		s.CacheSize++
		s.CachedKeys = append(s.CachedKeys, k.(cacheKey).String())
		return true
	})
	return s
}
