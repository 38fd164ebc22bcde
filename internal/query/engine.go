package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/spiral"
)

var log = logging.Component(constants.ComponentQuery)

// Recorder receives every executed query, typically to persist it.
type Recorder interface {
	RecordQuery(ctx context.Context, r Record) error
}

// Config holds engine tuning.
type Config struct {
	AngleStep      float64
	StartNodeLimit int
	TopK           int
	DepthWeight    float64
	StallLimit     int // 0 disables stall detection
	CacheSize      int
	HistorySize    int
	SketchAccuracy float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		AngleStep:      config.DefaultAngleStep,
		StartNodeLimit: config.DefaultStartNodeLimit,
		TopK:           config.DefaultTopK,
		DepthWeight:    config.DefaultDepthWeight,
		StallLimit:     config.DefaultStallLimit,
		CacheSize:      config.DefaultQueryCacheSize,
		HistorySize:    config.DefaultHistorySize,
		SketchAccuracy: config.DefaultSketchAccuracy,
	}
}

// Step is one point of the traversal path.
type Step struct {
	Depth      int
	Angle      float64
	Radius     float64
	Position   Position
	Defined    bool
	Candidates int
}

// Result is the outcome of one execution.
type Result struct {
	QueryID       string
	Matched       []*Node
	Path          []Step
	StartNodes    int
	Truncated     bool
	StopReason    string
	ExecutionTime time.Duration
	CacheHit      bool
}

// cachedResult stores node IDs only. They are resolved against the node map
// supplied with the cache hit.
type cachedResult struct {
	canonical  string
	matched    []string
	path       []Step
	startNodes int
	stopReason string
}

// Engine executes spiral queries. Safe for concurrent use.
type Engine struct {
	cfg    Config
	mapper *spiral.Mapper
	cache  *lru.Cache[uint64, cachedResult]

	stats   *engineStats
	history *history

	mu       sync.RWMutex
	recorder Recorder

	now func() time.Time
}

// NewEngine creates an engine. A nil cfg uses defaults and a nil mapper uses
// the default clamp bounds.
func NewEngine(cfg *Config, mapper *spiral.Mapper) (*Engine, error) {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.AngleStep <= 0 || !finite(c.AngleStep) {
		c.AngleStep = def.AngleStep
	}
	if c.StartNodeLimit <= 0 {
		c.StartNodeLimit = def.StartNodeLimit
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.DepthWeight < 0 {
		c.DepthWeight = def.DepthWeight
	}
	if c.StallLimit < 0 {
		c.StallLimit = 0
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		c.SketchAccuracy = def.SketchAccuracy
	}
	if mapper == nil {
		mapper = spiral.NewMapper(nil)
	}

	cache, err := lru.New[uint64, cachedResult](c.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	stats, err := newEngineStats(c.SketchAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create execution sketch: %w", err)
	}

	return &Engine{
		cfg:     c,
		mapper:  mapper,
		cache:   cache,
		stats:   stats,
		history: newHistory(c.HistorySize),
		now:     time.Now,
	}, nil
}

// SetRecorder sets the collaborator that receives executed queries.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

// Execute runs spec over nodes. Timeouts and cancellation truncate the result
// rather than fail; only a malformed spec returns an error.
func (e *Engine) Execute(ctx context.Context, spec Spec, nodes map[string]*Node) (*Result, error) {
	spec, err := prepare(spec)
	if err != nil {
		e.stats.failures.Add(1)
		return nil, err
	}
	ctx = logging.ContextWithQueryID(ctx, spec.ID)

	key, canonical := spec.cacheKey()
	if cached, ok := e.cache.Get(key); ok && cached.canonical == canonical {
		e.stats.cacheHits.Add(1)
		res := cached.resolve(spec.ID, nodes)
		e.finish(ctx, spec, res)
		return res, nil
	}
	e.stats.misses.Add(1)

	start := e.now()
	res := e.traverse(ctx, spec, nodes, start)
	res.ExecutionTime = e.now().Sub(start)

	touched := e.now()
	for _, n := range res.Matched {
		n.Touch(touched)
	}

	if !res.Truncated {
		e.cache.Add(key, newCachedResult(canonical, res))
	}

	logging.WithContext(ctx).Debug("query executed",
		"component", constants.ComponentQuery,
		"curve", spec.Curve,
		"matched", len(res.Matched),
		"steps", len(res.Path),
		"stop_reason", res.StopReason,
		"duration", res.ExecutionTime)

	e.finish(ctx, spec, res)
	return res, nil
}

// traverse walks the spiral and collects matches.
func (e *Engine) traverse(ctx context.Context, spec Spec, nodes map[string]*Node, start time.Time) *Result {
	res := &Result{QueryID: spec.ID}

	seeds := e.startNodes(spec, nodes)
	res.StartNodes = len(seeds)
	if len(seeds) == 0 {
		res.StopReason = constants.StopNoStart
		return res
	}

	visited := make(map[string]struct{}, len(seeds))
	for _, n := range seeds {
		visited[n.ID] = struct{}{}
		if len(res.Matched) < spec.MaxResults && matchAll(spec.Criteria, n.Payload) {
			res.Matched = append(res.Matched, n)
		}
	}
	if len(res.Matched) >= spec.MaxResults {
		res.StopReason = constants.StopMaxResults
		return res
	}

	params := spec.params()
	theta := 0.0
	stalled := 0
	deadline := start.Add(spec.Timeout)

	for depth := 1; depth <= spec.MaxDepth; depth++ {
		if ctx.Err() != nil {
			res.Truncated = true
			res.StopReason = constants.StopCancelled
			return res
		}
		if !e.now().Before(deadline) {
			res.Truncated = true
			res.StopReason = constants.StopTimeout
			logging.WithContext(ctx).Warn("query timed out",
				"component", constants.ComponentQuery,
				"depth", depth,
				"timeout", spec.Timeout)
			return res
		}

		theta += e.cfg.AngleStep
		step := Step{Depth: depth, Angle: theta, Position: spec.Start}

		pt := e.mapper.Position(theta, spec.Curve, params)
		if pt.Defined {
			step.Defined = true
			step.Radius = pt.Radius
			step.Position = Position{X: spec.Start.X + pt.X, Y: spec.Start.Y + pt.Y}

			candidates := e.gather(step.Position, depth, spec.InitialRadius, nodes, visited)
			step.Candidates = len(candidates)
			for _, n := range candidates {
				visited[n.ID] = struct{}{}
				if len(res.Matched) < spec.MaxResults && matchAll(spec.Criteria, n.Payload) {
					res.Matched = append(res.Matched, n)
				}
			}
		}
		res.Path = append(res.Path, step)

		if len(res.Matched) >= spec.MaxResults {
			res.StopReason = constants.StopMaxResults
			return res
		}
		if step.Candidates == 0 {
			stalled++
		} else {
			stalled = 0
		}
		if e.cfg.StallLimit > 0 && stalled >= e.cfg.StallLimit {
			res.StopReason = constants.StopStalled
			return res
		}
	}

	res.StopReason = constants.StopMaxDepth
	return res
}

// startNodes returns the nodes within InitialRadius of Start, nearest first
// with ties broken by ID, limited to StartNodeLimit.
func (e *Engine) startNodes(spec Spec, nodes map[string]*Node) []*Node {
	type ranked struct {
		node *Node
		dist float64
	}
	var in []ranked
	for _, n := range nodes {
		if n == nil {
			continue
		}
		d := spec.Start.Distance(n.Position)
		if d <= spec.InitialRadius {
			in = append(in, ranked{n, d})
		}
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].dist != in[j].dist {
			return in[i].dist < in[j].dist
		}
		return in[i].node.ID < in[j].node.ID
	})
	if len(in) > e.cfg.StartNodeLimit {
		in = in[:e.cfg.StartNodeLimit]
	}

	out := make([]*Node, len(in))
	for i, r := range in {
		out[i] = r.node
	}
	return out
}

// gather ranks unvisited nodes within radius of pos by 1/(1+d+depth·w) and
// returns the top TopK, ties broken by ID.
func (e *Engine) gather(pos Position, depth int, radius float64, nodes map[string]*Node, visited map[string]struct{}) []*Node {
	type scored struct {
		node  *Node
		score float64
	}
	var in []scored
	penalty := float64(depth) * e.cfg.DepthWeight
	for id, n := range nodes {
		if n == nil {
			continue
		}
		if _, seen := visited[id]; seen {
			continue
		}
		d := pos.Distance(n.Position)
		if d > radius || math.IsNaN(d) {
			continue
		}
		in = append(in, scored{n, 1 / (1 + d + penalty)})
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].score != in[j].score {
			return in[i].score > in[j].score
		}
		return in[i].node.ID < in[j].node.ID
	})
	if len(in) > e.cfg.TopK {
		in = in[:e.cfg.TopK]
	}

	out := make([]*Node, len(in))
	for i, s := range in {
		out[i] = s.node
	}
	return out
}

// finish updates stats and history and notifies the recorder.
func (e *Engine) finish(ctx context.Context, spec Spec, res *Result) {
	rec := Record{
		QueryID:       res.QueryID,
		Curve:         spec.Curve,
		MaxDepth:      spec.MaxDepth,
		MaxResults:    spec.MaxResults,
		Matched:       len(res.Matched),
		Steps:         len(res.Path),
		StartNodes:    res.StartNodes,
		Truncated:     res.Truncated,
		StopReason:    res.StopReason,
		CacheHit:      res.CacheHit,
		ExecutionTime: res.ExecutionTime,
		ExecutedAt:    e.now(),
	}
	if !res.CacheHit {
		e.stats.observe(rec)
	}
	e.history.push(rec)

	e.mu.RLock()
	r := e.recorder
	e.mu.RUnlock()
	if r == nil {
		return
	}
	if err := r.RecordQuery(ctx, rec); err != nil {
		log.Warn("failed to record query", "query_id", rec.QueryID, "error", err)
	}
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.cache.Purge()
	log.Debug("query cache cleared")
}

// History returns up to limit of the newest executions, newest first.
// A non-positive limit returns the whole history.
func (e *Engine) History(limit int) []Record {
	return e.history.last(limit)
}

// ResetStats clears counters, percentiles and history. The cache is kept.
func (e *Engine) ResetStats() {
	e.stats.executions.Store(0)
	e.stats.cacheHits.Store(0)
	e.stats.misses.Store(0)
	e.stats.truncated.Store(0)
	e.stats.failures.Store(0)
	e.stats.matched.Store(0)
	e.stats.reset()
	e.history.reset()
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()
	s.CacheSize = e.cache.Len()
	s.HistorySize = e.history.len()
	return s
}

func newCachedResult(canonical string, res *Result) cachedResult {
	ids := make([]string, len(res.Matched))
	for i, n := range res.Matched {
		ids[i] = n.ID
	}
	path := make([]Step, len(res.Path))
	copy(path, res.Path)
	return cachedResult{
		canonical:  canonical,
		matched:    ids,
		path:       path,
		startNodes: res.StartNodes,
		stopReason: res.StopReason,
	}
}

// resolve materializes a cached result. IDs missing from nodes are skipped.
func (c cachedResult) resolve(queryID string, nodes map[string]*Node) *Result {
	res := &Result{
		QueryID:    queryID,
		StartNodes: c.startNodes,
		StopReason: c.stopReason,
		CacheHit:   true,
		Path:       make([]Step, len(c.path)),
	}
	copy(res.Path, c.path)
	for _, id := range c.matched {
		if n, ok := nodes[id]; ok && n != nil {
			res.Matched = append(res.Matched, n)
		}
	}
	return res
}
