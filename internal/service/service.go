// Package service wires the digit provider, identifier generator, query
// engine and optional persistence into one process-level facade.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pidx/internal/analytics"
	"github.com/xtxerr/pidx/internal/config"
	"github.com/xtxerr/pidx/internal/constants"
	"github.com/xtxerr/pidx/internal/digits"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/identifier"
	"github.com/xtxerr/pidx/internal/ledger"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/query"
	"github.com/xtxerr/pidx/internal/spiral"
	"github.com/xtxerr/pidx/internal/workerpool"
)

var log = logging.Component(constants.ComponentService)

// Service owns every component. Construct it once per process.
type Service struct {
	cfg *config.Config

	workers   *workerpool.Pool
	digits    *digits.Provider
	mapper    *spiral.Mapper
	generator *identifier.Generator
	engine    *query.Engine
	ledger    *ledger.Ledger     // nil when disabled
	analytics *analytics.Service // nil when disabled

	startMu   sync.Mutex
	startedAt time.Time
	closed    atomic.Bool
}

// Statistics aggregates the counters of every component.
type Statistics struct {
	Digits      digits.Stats
	Identifiers identifier.Stats
	Queries     query.Stats
	Workers     workerpool.Stats
	Ledger      *ledger.Stats
	Analytics   *analytics.Stats

	Started bool
	Uptime  time.Duration
}

// New validates cfg and constructs every component. A nil cfg uses defaults.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	mapper, err := newMapper(cfg.Spiral)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, mapper: mapper}

	s.workers = workerpool.New(&workerpool.Config{
		Workers:      cfg.Workers.Count,
		QueueSize:    cfg.Workers.QueueSize,
		UnitTimeout:  cfg.Workers.UnitTimeout,
		DrainTimeout: cfg.Workers.DrainTimeout,
	})

	s.digits = digits.New(&digits.Config{
		GuardDigits:        cfg.Digits.GuardDigits,
		MaxIterations:      cfg.Digits.MaxIterations,
		ConvergenceRetries: cfg.Digits.ConvergenceRetries,
		SampleInterval:     cfg.Digits.SampleInterval,
		BBPChunkDigits:     cfg.Digits.BBPChunkDigits,
		UnitTimeout:        cfg.Workers.UnitTimeout,
	}, s.workers)

	s.generator, err = identifier.NewGenerator(&identifier.Config{
		Precision:           cfg.Digits.Precision,
		Algorithm:           digits.Algorithm(cfg.Digits.Algorithm),
		Length:              cfg.Identifiers.Length,
		PoolSize:            cfg.Identifiers.PoolSize,
		PoolLowWater:        cfg.Identifiers.PoolLowWater,
		IssuedCapacity:      cfg.Identifiers.IssuedCapacity,
		MaxCollisionRetries: cfg.Identifiers.MaxCollisionRetries,
		MaxPrecision:        cfg.Identifiers.MaxPrecision,
		SpiralCurve:         spiral.Curve(cfg.Identifiers.SpiralCurve),
		UnitTimeout:         cfg.Workers.UnitTimeout,
	}, s.digits, mapper, s.workers)
	if err != nil {
		s.workers.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	s.engine, err = query.NewEngine(&query.Config{
		AngleStep:      cfg.Query.AngleStep,
		StartNodeLimit: cfg.Query.StartNodeLimit,
		TopK:           cfg.Query.TopK,
		DepthWeight:    cfg.Query.DepthWeight,
		StallLimit:     cfg.Query.StallLimit,
		CacheSize:      cfg.Query.CacheSize,
		HistorySize:    cfg.Query.HistorySize,
		SketchAccuracy: cfg.Query.SketchAccuracy,
	}, mapper)
	if err != nil {
		s.shutdown()
		return nil, fmt.Errorf("create query engine: %w", err)
	}

	if cfg.Ledger.Enabled {
		s.ledger, err = ledger.New(&ledger.Config{
			DataDir:     cfg.Ledger.DataDir,
			FlushRows:   cfg.Ledger.FlushRows,
			Compression: cfg.Ledger.Compression,
			Retention:   cfg.Ledger.Retention,
		})
		if err != nil {
			s.shutdown()
			return nil, fmt.Errorf("create ledger: %w", err)
		}
		s.generator.SetRecorder(s.ledger)
		s.engine.SetRecorder(s.ledger)
	}

	if cfg.Analytics.Enabled {
		s.analytics, err = analytics.New(&analytics.Config{MemoryLimit: cfg.Analytics.MemoryLimit}, s.ledger)
		if err != nil {
			s.shutdown()
			return nil, fmt.Errorf("create analytics: %w", err)
		}
	}

	log.Info("service created",
		"precision", cfg.Digits.Precision,
		"algorithm", cfg.Digits.Algorithm,
		"pool_size", cfg.Identifiers.PoolSize,
		"workers", cfg.Workers.Count,
		"ledger", cfg.Ledger.Enabled,
		"analytics", cfg.Analytics.Enabled)

	return s, nil
}

// newMapper builds the spiral mapper from the configured clamp overrides.
func newMapper(cfg config.SpiralConfig) (*spiral.Mapper, error) {
	overrides := make(map[spiral.Curve]float64, len(cfg.Clamp))
	for name, bound := range cfg.Clamp {
		c, err := spiral.ParseCurve(name)
		if err != nil {
			return nil, pidxerrors.NewInvalidValue("spiral.clamp", name, err.Error())
		}
		overrides[c] = bound
	}
	return spiral.NewMapper(overrides), nil
}

// Start computes the digit block and fills the identifier pool. Calling it
// again after a successful start is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if s.closed.Load() {
		return pidxerrors.ErrPoolClosed
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()
	if !s.startedAt.IsZero() {
		return nil
	}

	begin := time.Now()
	if s.ledger != nil {
		if _, err := s.ledger.PruneExpired(ctx); err != nil {
			return fmt.Errorf("prune ledger: %w", err)
		}
	}
	if err := s.generator.Warm(ctx); err != nil {
		return fmt.Errorf("warm digit block: %w", err)
	}
	n, err := s.generator.Prefill(ctx)
	if err != nil {
		return fmt.Errorf("prefill identifier pool: %w", err)
	}

	s.startedAt = time.Now()
	log.Info("service started", "pooled", n, "duration", s.startedAt.Sub(begin))
	return nil
}

// Digits returns the digit provider.
func (s *Service) Digits() *digits.Provider { return s.digits }

// Generator returns the identifier generator.
func (s *Service) Generator() *identifier.Generator { return s.generator }

// Engine returns the query engine.
func (s *Service) Engine() *query.Engine { return s.engine }

// Mapper returns the configured spiral mapper.
func (s *Service) Mapper() *spiral.Mapper { return s.mapper }

// Ledger returns the ledger, or nil when disabled.
func (s *Service) Ledger() *ledger.Ledger { return s.ledger }

// Analytics returns the analytics service, or nil when disabled.
func (s *Service) Analytics() *analytics.Service { return s.analytics }

// Statistics aggregates component counters.
func (s *Service) Statistics() Statistics {
	st := Statistics{
		Digits:      s.digits.Stats(),
		Identifiers: s.generator.Stats(),
		Queries:     s.engine.Stats(),
		Workers:     s.workers.Stats(),
	}
	if s.ledger != nil {
		ls := s.ledger.Stats()
		st.Ledger = &ls
	}
	if s.analytics != nil {
		as := s.analytics.Stats()
		st.Analytics = &as
	}

	s.startMu.Lock()
	if !s.startedAt.IsZero() {
		st.Started = true
		st.Uptime = time.Since(s.startedAt)
	}
	s.startMu.Unlock()
	return st
}

// Close stops background work, flushes the ledger and releases resources.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.shutdown()
	log.Info("service closed")
	return err
}

// shutdown releases whatever New managed to construct.
func (s *Service) shutdown() error {
	var errs []error
	if s.generator != nil {
		s.generator.Close()
	}
	if s.analytics != nil {
		if err := s.analytics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close analytics: %w", err))
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	if s.workers != nil {
		s.workers.Close()
	}
	return pidxerrors.Join(errs...)
}
