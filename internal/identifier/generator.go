package identifier

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	"github.com/xtxerr/pidx/internal/digits"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/spiral"
	pidxsync "github.com/xtxerr/pidx/internal/sync"
	"github.com/xtxerr/pidx/internal/workerpool"
)

var log = logging.Component(constants.ComponentIdentifier)

// DigitSource supplies the digit block identifiers are cut from.
type DigitSource interface {
	ComputeDigits(ctx context.Context, precision int, algorithm digits.Algorithm) (*digits.Block, error)
}

// Config holds generator configuration.
type Config struct {
	// Precision is the size of the digit block.
	Precision int

	// Algorithm computes the digit block.
	Algorithm digits.Algorithm

	// Length is the π component length of pooled identifiers.
	Length int

	// PoolSize is the number of pre-generated identifiers. Zero disables the pool.
	PoolSize int

	// PoolLowWater triggers a background refill, as a fraction of PoolSize.
	PoolLowWater float64

	// IssuedCapacity bounds the remembered π components.
	IssuedCapacity int

	// MaxCollisionRetries bounds linear probing on collision.
	MaxCollisionRetries int

	// MaxPrecision caps digit block growth. Values below Precision disable
	// growth.
	MaxPrecision int

	// SpiralCurve is used for the spiral component.
	SpiralCurve spiral.Curve

	// UnitTimeout is the per-identifier wait on the worker pool in batches.
	UnitTimeout time.Duration
}

// DefaultConfig returns default generator configuration.
func DefaultConfig() *Config {
	return &Config{
		Precision:           config.DefaultPrecision,
		Algorithm:           digits.Algorithm(config.DefaultAlgorithm),
		Length:              config.DefaultIdentifierLength,
		PoolSize:            config.DefaultPoolSize,
		PoolLowWater:        config.DefaultPoolLowWater,
		IssuedCapacity:      config.DefaultIssuedCapacity,
		MaxCollisionRetries: config.DefaultMaxCollisionRetries,
		MaxPrecision:        config.DefaultMaxPrecision,
		SpiralCurve:         spiral.Curve(config.DefaultSpiralCurve),
		UnitTimeout:         config.DefaultUnitTimeout,
	}
}

// Generator issues identifiers.
//
// Generator is safe for concurrent use. The offset cursor and issued set are
// guarded by one mutex; the pre-generated pool has its own.
type Generator struct {
	cfg      Config
	source   DigitSource
	mapper   *spiral.Mapper
	workers  *workerpool.Pool
	recorder Recorder
	clock    *clock

	warm   pidxsync.ResettableOnce
	block  atomic.Pointer[digits.Block]
	growMu sync.Mutex

	mu     sync.Mutex
	cursor int
	issued *lru.Cache[string, int]

	prepared *preparedPool

	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	closed bool
	bg     sync.WaitGroup

	stats generatorStats
}

// NewGenerator creates a Generator. workers may be nil, in which case batch
// units run on the caller's goroutines.
func NewGenerator(cfg *Config, source DigitSource, mapper *spiral.Mapper, workers *workerpool.Pool) (*Generator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Precision < 1 {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidPrecision, "precision %d", c.Precision)
	}
	if c.Length < 1 || c.Length >= c.Precision {
		return nil, pidxerrors.Wrapf(pidxerrors.ErrInvalidLength, "length %d with precision %d", c.Length, c.Precision)
	}
	if _, err := spiral.ParseCurve(string(c.SpiralCurve)); err != nil {
		return nil, err
	}
	if c.IssuedCapacity < 1 {
		c.IssuedCapacity = config.DefaultIssuedCapacity
	}
	if c.MaxCollisionRetries < 0 {
		c.MaxCollisionRetries = 0
	}
	if c.PoolSize < 0 {
		c.PoolSize = 0
	}
	if c.MaxPrecision < c.Precision {
		c.MaxPrecision = c.Precision
	}
	if mapper == nil {
		mapper = spiral.NewMapper(nil)
	}

	issued, err := lru.New[string, int](c.IssuedCapacity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Generator{
		cfg:      c,
		source:   source,
		mapper:   mapper,
		workers:  workers,
		clock:    newClock(),
		issued:   issued,
		prepared: newPreparedPool(c.PoolSize, c.PoolLowWater),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetRecorder sets the collaborator that receives issued identifiers.
// It must be called before the generator is used.
func (g *Generator) SetRecorder(r Recorder) {
	g.recorder = r
}

// Warm computes the digit block if it has not been computed yet. A failure
// leaves the generator cold so the next call retries.
func (g *Generator) Warm(ctx context.Context) error {
	return g.warm.DoWithError(func() error {
		block, err := g.source.ComputeDigits(ctx, g.cfg.Precision, g.cfg.Algorithm)
		if err != nil {
			return err
		}
		g.block.Store(block)
		log.Debug("digit block ready", "precision", block.Precision, "algorithm", block.Algorithm)
		return nil
	})
}

// Generate returns a new identifier whose π component has the given length.
// Requests matching the pooled shape are served from the pre-generated pool
// when it has entries. It fails with ErrInvalidLength for a bad length and
// ErrCollisionLimitExceeded when no unused slice is found.
func (g *Generator) Generate(ctx context.Context, length int, includeSpiral bool) (Identifier, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Identifier{}, err
	}
	if err := g.checkLength(length); err != nil {
		return Identifier{}, err
	}

	if g.pooled(length, includeSpiral) {
		if id, err := g.prepared.pop(); err == nil {
			id = g.stamp(id, start)
			g.stats.poolDraws.Add(1)
			g.afterPoolDraw()
			g.record(ctx, id)
			return id, nil
		}
		g.stats.poolMisses.Add(1)
	}

	if err := g.Warm(ctx); err != nil {
		return Identifier{}, err
	}
	id, err := g.build(ctx, length, includeSpiral, false)
	if err != nil {
		return Identifier{}, err
	}
	id = g.stamp(id, start)
	g.record(ctx, id)
	return id, nil
}

func (g *Generator) checkLength(length int) error {
	if length < 1 || length >= g.cfg.Precision {
		return pidxerrors.Wrapf(pidxerrors.ErrInvalidLength, "length %d with precision %d", length, g.cfg.Precision)
	}
	return nil
}

func (g *Generator) pooled(length int, includeSpiral bool) bool {
	return g.cfg.PoolSize > 0 && includeSpiral && length == g.cfg.Length
}

// build cuts the next unused π component and derives the spiral component.
// The time component is left empty. When probing finds no free slice the
// block is grown and the claim retried. With exhaustive set, a claim at the
// growth ceiling falls back to reclaim.
func (g *Generator) build(ctx context.Context, length int, includeSpiral, exhaustive bool) (Identifier, error) {
	var (
		component string
		offset    int
	)
	for {
		block := g.block.Load()
		if block == nil {
			return Identifier{}, pidxerrors.Wrap(pidxerrors.ErrInvalidPrecision, "digit block not computed")
		}

		var err error
		component, offset, err = g.claim(block.Digits, length, g.cfg.MaxCollisionRetries)
		if err == nil {
			break
		}
		if !pidxerrors.Is(err, pidxerrors.ErrCollisionLimitExceeded) {
			return Identifier{}, err
		}

		grown, gerr := g.grow(ctx, block.Precision)
		if gerr != nil {
			return Identifier{}, gerr
		}
		if grown {
			continue
		}
		if !exhaustive {
			return Identifier{}, err
		}
		component, offset, err = g.reclaim(block.Digits, length)
		if err != nil {
			return Identifier{}, err
		}
		break
	}

	id := Identifier{
		PiComponent:     component,
		Offset:          offset,
		UniquenessScore: UniquenessScore(component, offset),
	}
	if includeSpiral {
		id.SpiralComponent = g.spiralComponent(component)
	}
	return id, nil
}

// grow replaces a block of the given precision with one of twice the
// precision, capped at MaxPrecision. It reports false when the block is
// already at the cap. A block grown concurrently by another caller counts as
// grown.
func (g *Generator) grow(ctx context.Context, from int) (bool, error) {
	g.growMu.Lock()
	defer g.growMu.Unlock()

	if cur := g.block.Load(); cur != nil && cur.Precision > from {
		return true, nil
	}
	if from >= g.cfg.MaxPrecision {
		return false, nil
	}

	target := min(2*from, g.cfg.MaxPrecision)
	block, err := g.source.ComputeDigits(ctx, target, g.cfg.Algorithm)
	if err != nil {
		return false, err
	}

	// Offset from-1 is past the old span for every length, so the next
	// claim cuts into the new digits.
	g.mu.Lock()
	g.cursor = from - 1
	g.mu.Unlock()

	g.block.Store(block)
	g.stats.blockGrowths.Add(1)
	log.Info("digit block grown", "from", from, "to", block.Precision, "algorithm", block.Algorithm)
	return true, nil
}

// claim takes the slice at the cursor, probing forward while the slice is in
// the issued set. At most retries probes follow a collision.
func (g *Generator) claim(block string, length, retries int) (string, int, error) {
	span := len(block) - length
	if span < 1 {
		return "", 0, pidxerrors.Wrapf(pidxerrors.ErrInvalidLength, "length %d with block of %d digits", length, len(block))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	offset := g.cursor % span
	g.cursor = (g.cursor + length) % span

	for attempt := 0; ; attempt++ {
		component := block[offset : offset+length]
		if !g.issued.Contains(component) {
			g.issued.Add(component, offset)
			return component, offset, nil
		}

		g.stats.collisions.Add(1)
		if attempt >= retries {
			g.stats.collisionFailures.Add(1)
			return "", 0, pidxerrors.Wrapf(pidxerrors.ErrCollisionLimitExceeded,
				"length %d after %d probes", length, attempt+1)
		}
		offset = (offset + 1) % span
	}
}

// reclaim scans the whole block for a free slice. If every slice is issued,
// the least recently issued component of the same length is issued again.
func (g *Generator) reclaim(block string, length int) (string, int, error) {
	component, offset, err := g.claim(block, length, len(block))
	if err == nil {
		return component, offset, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range g.issued.Keys() {
		if len(k) != length {
			continue
		}
		off, _ := g.issued.Peek(k)
		g.issued.Add(k, off)
		g.stats.recycled.Add(1)
		return k, off, nil
	}
	return "", 0, err
}

// spiralComponent hashes the π component to an angle in [0, 2π) and encodes
// the point on the configured curve. Points where the curve is undefined
// encode as the origin.
func (g *Generator) spiralComponent(component string) string {
	h := pidxsync.HashString(component)
	theta := float64(h>>11) / float64(uint64(1)<<53) * 2 * math.Pi

	curve := g.cfg.SpiralCurve
	pt := g.mapper.Position(theta, curve, spiral.DefaultParams(curve))
	if !pt.Defined {
		return EncodeSpiral(0, 0, 0)
	}
	return EncodeSpiral(pt.X, pt.Y, g.mapper.ClampBound(curve))
}

func (g *Generator) stamp(id Identifier, start time.Time) Identifier {
	id.TimeComponent = g.clock.nextHex()
	id.GenerationTime = time.Since(start)
	g.stats.observe(id)
	return id
}

func (g *Generator) record(ctx context.Context, id Identifier) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordIdentifier(ctx, id); err != nil {
		log.Warn("identifier not recorded", "identifier", id.String(), "error", err)
	}
}

// Reset forgets the digit block, the issued set, the cursor and the pool.
func (g *Generator) Reset() {
	g.mu.Lock()
	g.cursor = 0
	g.issued.Purge()
	g.mu.Unlock()

	g.prepared.drain()
	g.block.Store(nil)
	g.warm.Reset()
}

// Close stops background refills and waits for them to return.
func (g *Generator) Close() {
	g.bgMu.Lock()
	g.closed = true
	g.bgMu.Unlock()

	g.cancel()
	g.bg.Wait()
}
