package identifier

import (
	"sync"
	"sync/atomic"
	"time"
)

type generatorStats struct {
	generated         atomic.Int64
	poolDraws         atomic.Int64
	poolMisses        atomic.Int64
	collisions        atomic.Int64
	collisionFailures atomic.Int64
	batchRetries      atomic.Int64
	blockGrowths      atomic.Int64
	recycled          atomic.Int64
	refills           atomic.Int64
	refilling         atomic.Bool

	mu         sync.Mutex
	totalTime  time.Duration
	minTime    time.Duration
	maxTime    time.Duration
	totalScore float64
}

func (s *generatorStats) observe(id Identifier) {
	s.generated.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalTime += id.GenerationTime
	if s.minTime == 0 || id.GenerationTime < s.minTime {
		s.minTime = id.GenerationTime
	}
	if id.GenerationTime > s.maxTime {
		s.maxTime = id.GenerationTime
	}
	s.totalScore += id.UniquenessScore
}

// Stats is a snapshot of generator counters.
type Stats struct {
	Generated         int64
	PoolDraws         int64
	PoolMisses        int64
	Collisions        int64
	CollisionFailures int64
	BatchRetries      int64
	BlockGrowths      int64
	Recycled          int64
	BlockPrecision    int
	Refills           int64
	PoolSize          int
	PoolCapacity      int
	IssuedSize        int
	Cursor            int

	AvgGenerationTime time.Duration
	MinGenerationTime time.Duration
	MaxGenerationTime time.Duration
	AvgUniqueness     float64
}

// Stats returns current generator statistics.
func (g *Generator) Stats() Stats {
	s := Stats{
		Generated:         g.stats.generated.Load(),
		PoolDraws:         g.stats.poolDraws.Load(),
		PoolMisses:        g.stats.poolMisses.Load(),
		Collisions:        g.stats.collisions.Load(),
		CollisionFailures: g.stats.collisionFailures.Load(),
		BatchRetries:      g.stats.batchRetries.Load(),
		BlockGrowths:      g.stats.blockGrowths.Load(),
		Recycled:          g.stats.recycled.Load(),
		Refills:           g.stats.refills.Load(),
		PoolSize:          g.prepared.size(),
		PoolCapacity:      g.cfg.PoolSize,
	}

	if b := g.block.Load(); b != nil {
		s.BlockPrecision = b.Precision
	}

	g.mu.Lock()
	s.IssuedSize = g.issued.Len()
	s.Cursor = g.cursor
	g.mu.Unlock()

	g.stats.mu.Lock()
	if s.Generated > 0 {
		s.AvgGenerationTime = g.stats.totalTime / time.Duration(s.Generated)
		s.AvgUniqueness = g.stats.totalScore / float64(s.Generated)
	}
	s.MinGenerationTime = g.stats.minTime
	s.MaxGenerationTime = g.stats.maxTime
	g.stats.mu.Unlock()

	return s
}
