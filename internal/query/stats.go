package query

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/pidx/internal/spiral"
)

type engineStats struct {
	executions atomic.Int64
	cacheHits  atomic.Int64
	misses     atomic.Int64
	truncated  atomic.Int64
	failures   atomic.Int64
	matched    atomic.Int64

	mu        sync.Mutex
	perCurve  map[spiral.Curve]int64
	sketch    *ddsketch.DDSketch
	totalTime time.Duration
	accuracy  float64
}

func newEngineStats(accuracy float64) (*engineStats, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, err
	}
	return &engineStats{
		perCurve: make(map[spiral.Curve]int64),
		sketch:   sketch,
		accuracy: accuracy,
	}, nil
}

// observe records an executed (non-cached) query.
func (s *engineStats) observe(r Record) {
	s.executions.Add(1)
	s.matched.Add(int64(r.Matched))
	if r.Truncated {
		s.truncated.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.perCurve[r.Curve]++
	s.totalTime += r.ExecutionTime
	// Sketch values are milliseconds; Add only fails on negative input.
	_ = s.sketch.Add(float64(r.ExecutionTime) / float64(time.Millisecond))
}

func (s *engineStats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perCurve = make(map[spiral.Curve]int64)
	s.totalTime = 0
	if sketch, err := ddsketch.NewDefaultDDSketch(s.accuracy); err == nil {
		s.sketch = sketch
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Executions   int64
	CacheHits    int64
	CacheMisses  int64
	CacheSize    int
	Truncated    int64
	Failures     int64
	TotalMatched int64
	HistorySize  int

	PerCurve map[spiral.Curve]int64

	AvgExecutionTime time.Duration
	P50              time.Duration
	P90              time.Duration
	P95              time.Duration
	P99              time.Duration
}

// CacheHitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

func (s *engineStats) snapshot() Stats {
	out := Stats{
		Executions:   s.executions.Load(),
		CacheHits:    s.cacheHits.Load(),
		CacheMisses:  s.misses.Load(),
		Truncated:    s.truncated.Load(),
		Failures:     s.failures.Load(),
		TotalMatched: s.matched.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out.PerCurve = make(map[spiral.Curve]int64, len(s.perCurve))
	for c, n := range s.perCurve {
		out.PerCurve[c] = n
	}
	if out.Executions > 0 {
		out.AvgExecutionTime = s.totalTime / time.Duration(out.Executions)
	}
	if s.sketch.GetCount() > 0 {
		out.P50 = quantile(s.sketch, 0.50)
		out.P90 = quantile(s.sketch, 0.90)
		out.P95 = quantile(s.sketch, 0.95)
		out.P99 = quantile(s.sketch, 0.99)
	}
	return out
}

func quantile(sketch *ddsketch.DDSketch, q float64) time.Duration {
	ms, err := sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
