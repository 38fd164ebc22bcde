package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/spiral"
)

func newTestEngine(t *testing.T, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(cfg)
	}
	e, err := NewEngine(cfg, spiral.NewMapper(nil))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func testSpec() Spec {
	return Spec{
		Curve:         spiral.Archimedean,
		InitialRadius: 5,
		GrowthRate:    0.5,
		MaxDepth:      3,
		MaxResults:    10,
		Timeout:       time.Second,
	}
}

func nodeSet(nodes ...*Node) map[string]*Node {
	m := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func matchedIDs(res *Result) []string {
	ids := make([]string, len(res.Matched))
	for i, n := range res.Matched {
		ids[i] = n.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Unix(1700000000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestExecute_EmptyNodes(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Execute(context.Background(), testSpec(), map[string]*Node{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Matched) != 0 || len(res.Path) != 0 {
		t.Errorf("got %d matches, %d steps; want none", len(res.Matched), len(res.Path))
	}
	if res.Truncated {
		t.Error("empty result should not be truncated")
	}
	if res.StopReason != constants.StopNoStart {
		t.Errorf("StopReason = %q, want %q", res.StopReason, constants.StopNoStart)
	}
	if res.QueryID == "" {
		t.Error("QueryID should be assigned")
	}
}

func TestExecute_MaxDepthZero(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("b", 2, 0, nil),
		NewNode("a", 1, 0, nil),
		NewNode("far", 100, 100, nil),
	)

	spec := testSpec()
	spec.MaxDepth = 0
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("Matched = %v, want [a b]", got)
	}
	if len(res.Path) != 0 {
		t.Errorf("Path has %d steps, want 0", len(res.Path))
	}
	if res.StartNodes != 2 {
		t.Errorf("StartNodes = %d, want 2", res.StartNodes)
	}
}

func TestExecute_CriteriaGreaterThan(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("n20", 1, 0, map[string]any{"age": 20}),
		NewNode("n25", 0, 1, map[string]any{"age": 25}),
		NewNode("n30", -1, 0, map[string]any{"age": 30}),
		NewNode("n40", 0, -1, map[string]any{"age": 40}),
	)
	criteria, err := ParseCriteria(map[string]any{"age": map[string]any{"$gt": 25}})
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}

	spec := testSpec()
	spec.MaxDepth = 0
	spec.Criteria = criteria
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"n30", "n40"}) {
		t.Errorf("Matched = %v, want [n30 n40]", got)
	}
}

func TestExecute_Traversal(t *testing.T) {
	e := newTestEngine(t)
	// "outer" is outside the start radius but next to the first step of
	// r = 5 + 0.5θ at θ = 0.1.
	nodes := nodeSet(
		NewNode("seed", 0, 0, nil),
		NewNode("outer", 5, 0.5, nil),
	)

	res, err := e.Execute(context.Background(), testSpec(), nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"seed", "outer"}) {
		t.Errorf("Matched = %v, want [seed outer]", got)
	}
	if len(res.Path) != 3 {
		t.Fatalf("Path has %d steps, want 3", len(res.Path))
	}
	first := res.Path[0]
	if first.Depth != 1 || first.Candidates != 1 || !first.Defined {
		t.Errorf("first step = %+v", first)
	}
	if res.Path[1].Candidates != 0 {
		t.Errorf("visited node gathered twice: %+v", res.Path[1])
	}
	if res.StopReason != constants.StopMaxDepth {
		t.Errorf("StopReason = %q, want %q", res.StopReason, constants.StopMaxDepth)
	}
}

func TestExecute_MaxResults(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("a", 1, 0, nil),
		NewNode("b", 2, 0, nil),
		NewNode("c", 3, 0, nil),
	)

	spec := testSpec()
	spec.MaxResults = 2
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"a", "b"}) {
		t.Errorf("Matched = %v, want [a b]", got)
	}
	if res.StopReason != constants.StopMaxResults {
		t.Errorf("StopReason = %q, want %q", res.StopReason, constants.StopMaxResults)
	}
}

func TestExecute_Stall(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.StallLimit = 2 })
	nodes := nodeSet(NewNode("seed", 0, 0, nil))

	spec := testSpec()
	spec.MaxDepth = 100
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Path) != 2 {
		t.Errorf("Path has %d steps, want 2", len(res.Path))
	}
	if res.StopReason != constants.StopStalled {
		t.Errorf("StopReason = %q, want %q", res.StopReason, constants.StopStalled)
	}
	if res.Truncated {
		t.Error("stall is not truncation")
	}
}

func TestExecute_UndefinedSteps(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(NewNode("seed", 0, 0, nil))

	spec := testSpec()
	spec.Curve = spiral.Custom
	spec.Custom = spiral.Params{A: 1, B: -1, C: 0, D: 0.5}
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Path) != 3 {
		t.Fatalf("Path has %d steps, want 3", len(res.Path))
	}
	for _, s := range res.Path {
		if s.Defined || s.Position != spec.Start || s.Candidates != 0 {
			t.Errorf("undefined step = %+v", s)
		}
	}
}

func TestExecute_CacheHit(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("a", 1, 0, nil),
		NewNode("b", 2, 0, nil),
	)
	ctx := context.Background()

	spec := testSpec()
	spec.ID = "first"
	first, err := e.Execute(ctx, spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if first.CacheHit {
		t.Fatal("first execution should miss the cache")
	}

	spec.ID = "second"
	second, err := e.Execute(ctx, spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !second.CacheHit {
		t.Fatal("second execution should hit the cache")
	}
	if second.ExecutionTime != 0 {
		t.Errorf("cache hit ExecutionTime = %v, want 0", second.ExecutionTime)
	}
	if second.QueryID != "second" {
		t.Errorf("QueryID = %q, want second", second.QueryID)
	}
	if !equalIDs(matchedIDs(first), matchedIDs(second)) {
		t.Errorf("cached matches %v differ from %v", matchedIDs(second), matchedIDs(first))
	}
	if len(second.Path) != len(first.Path) {
		t.Errorf("cached path has %d steps, want %d", len(second.Path), len(first.Path))
	}
	if got := nodes["a"].AccessCount(); got != 1 {
		t.Errorf("AccessCount = %d, want 1 (cache hits do not touch)", got)
	}

	stats := e.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 || stats.Executions != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.CacheHitRate() != 0.5 {
		t.Errorf("CacheHitRate = %v, want 0.5", stats.CacheHitRate())
	}

	e.ClearCache()
	third, err := e.Execute(ctx, spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if third.CacheHit {
		t.Error("execution after ClearCache should miss")
	}
}

func TestExecute_CacheSlotCollision(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("a", 1, 0, nil),
		NewNode("b", 2, 0, nil),
		NewNode("ghost", 50, 50, nil),
	)
	ctx := context.Background()

	spec, err := prepare(testSpec())
	if err != nil {
		t.Fatal(err)
	}
	key, canonical := spec.cacheKey()

	// Another spec's result sitting in the same slot.
	e.cache.Add(key, cachedResult{canonical: canonical + "|other", matched: []string{"ghost"}})

	res, err := e.Execute(ctx, spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.CacheHit {
		t.Fatal("a slot holding another spec must read as a miss")
	}
	for _, id := range matchedIDs(res) {
		if id == "ghost" {
			t.Fatalf("result leaked from the colliding entry: %v", matchedIDs(res))
		}
	}
	if stats := e.Stats(); stats.CacheHits != 0 || stats.CacheMisses != 1 {
		t.Errorf("stats = %+v", stats)
	}

	again, err := e.Execute(ctx, spec, nodes)
	if err != nil {
		t.Fatal(err)
	}
	if !again.CacheHit {
		t.Error("the recomputed result should replace the colliding entry")
	}
}

func TestCacheKey_Canonical(t *testing.T) {
	a := testSpec()
	a.Criteria = []Criterion{Gt("age", 25), Eq("name", "ada")}
	b := testSpec()
	b.ID = "other-id"
	b.Criteria = []Criterion{Eq("name", "ada"), Gt("age", 25)}

	ha, ca := a.cacheKey()
	hb, cb := b.cacheKey()
	if ha != hb || ca != cb {
		t.Errorf("criteria order or ID changed the key:\n%s\n%s", ca, cb)
	}

	b.Start.X += 1e-9
	if _, cb = b.cacheKey(); ca == cb {
		t.Error("start position missing from the canonical key")
	}
}

func TestExecute_CacheResolvesAgainstNodes(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("a", 1, 0, nil),
		NewNode("b", 2, 0, nil),
	)
	ctx := context.Background()

	if _, err := e.Execute(ctx, testSpec(), nodes); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	delete(nodes, "a")
	res, err := e.Execute(ctx, testSpec(), nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.CacheHit {
		t.Fatal("expected cache hit")
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"b"}) {
		t.Errorf("Matched = %v, want [b]", got)
	}
}

func TestExecute_Timeout(t *testing.T) {
	e := newTestEngine(t)
	e.now = steppingClock(time.Millisecond)
	nodes := nodeSet(NewNode("seed", 0, 0, nil))

	spec := testSpec()
	spec.MaxDepth = 10
	spec.Timeout = time.Nanosecond
	res, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Truncated || res.StopReason != constants.StopTimeout {
		t.Errorf("Truncated = %v, StopReason = %q; want truncated timeout", res.Truncated, res.StopReason)
	}
	if len(res.Path) != 0 {
		t.Errorf("Path has %d steps, want 0", len(res.Path))
	}
	if got := matchedIDs(res); !equalIDs(got, []string{"seed"}) {
		t.Errorf("Matched = %v, want [seed]", got)
	}

	again, err := e.Execute(context.Background(), spec, nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if again.CacheHit {
		t.Error("truncated results must not be cached")
	}
	if got := e.Stats().Truncated; got != 2 {
		t.Errorf("Truncated count = %d, want 2", got)
	}
}

func TestExecute_Cancelled(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(NewNode("seed", 0, 0, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Execute(ctx, testSpec(), nodes)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Truncated || res.StopReason != constants.StopCancelled {
		t.Errorf("Truncated = %v, StopReason = %q; want truncated cancelled", res.Truncated, res.StopReason)
	}
}

func TestExecute_InvalidSpec(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"unknown curve", func(s *Spec) { s.Curve = "spiralish" }},
		{"zero radius", func(s *Spec) { s.InitialRadius = 0 }},
		{"negative depth", func(s *Spec) { s.MaxDepth = -1 }},
		{"zero results", func(s *Spec) { s.MaxResults = 0 }},
		{"zero timeout", func(s *Spec) { s.Timeout = 0 }},
		{"bad regex", func(s *Spec) { s.Criteria = []Criterion{Regex("name", "(")} }},
		{"unknown operator", func(s *Spec) { s.Criteria = []Criterion{{Field: "age", Op: Operator(42)}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			_, err := e.Execute(context.Background(), spec, nil)
			if !errors.Is(err, pidxerrors.ErrInvalidQuery) {
				t.Errorf("Execute() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
	if got := e.Stats().Failures; got != int64(len(tests)) {
		t.Errorf("Failures = %d, want %d", got, len(tests))
	}
}

type queryRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *queryRecorder) RecordQuery(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func TestExecute_RecorderAndHistory(t *testing.T) {
	e := newTestEngine(t)
	rec := &queryRecorder{}
	e.SetRecorder(rec)
	nodes := nodeSet(NewNode("a", 1, 0, nil))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.Execute(ctx, testSpec(), nodes); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	if len(rec.records) != 2 {
		t.Fatalf("recorded %d queries, want 2", len(rec.records))
	}
	if rec.records[0].CacheHit || !rec.records[1].CacheHit {
		t.Errorf("cache flags = %v, %v", rec.records[0].CacheHit, rec.records[1].CacheHit)
	}
	if rec.records[0].Curve != spiral.Archimedean || rec.records[0].Matched != 1 {
		t.Errorf("record = %+v", rec.records[0])
	}

	hist := e.History(0)
	if len(hist) != 2 || !hist[0].CacheHit {
		t.Errorf("History = %+v, want newest (cache hit) first", hist)
	}
}

func TestExecute_Concurrent(t *testing.T) {
	e := newTestEngine(t)
	nodes := nodeSet(
		NewNode("a", 1, 0, nil),
		NewNode("b", 0, 1, nil),
	)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			spec := testSpec()
			spec.MaxDepth = i % 4
			res, err := e.Execute(context.Background(), spec, nodes)
			if err != nil {
				errs <- err
				return
			}
			if len(res.Matched) != 2 {
				errs <- fmt.Errorf("depth %d matched %d", spec.MaxDepth, len(res.Matched))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	stats := e.Stats()
	if stats.CacheHits+stats.CacheMisses != workers {
		t.Errorf("lookups = %d, want %d", stats.CacheHits+stats.CacheMisses, workers)
	}
	if stats.PerCurve[spiral.Archimedean] != stats.Executions {
		t.Errorf("PerCurve = %v, Executions = %d", stats.PerCurve, stats.Executions)
	}
}

func TestNodeTouch_Concurrent(t *testing.T) {
	n := NewNode("a", 0, 0, nil)
	if !n.LastAccessed().IsZero() {
		t.Error("new node should have zero LastAccessed")
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Touch(time.Now())
		}()
	}
	wg.Wait()

	if got := n.AccessCount(); got != 100 {
		t.Errorf("AccessCount = %d, want 100", got)
	}
	if n.LastAccessed().IsZero() {
		t.Error("LastAccessed not updated")
	}
}

func TestStats_Percentiles(t *testing.T) {
	e := newTestEngine(t)
	e.now = steppingClock(2 * time.Millisecond)
	nodes := nodeSet(NewNode("a", 1, 0, nil))

	for depth := 0; depth < 5; depth++ {
		spec := testSpec()
		spec.MaxDepth = depth
		if _, err := e.Execute(context.Background(), spec, nodes); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	stats := e.Stats()
	if stats.Executions != 5 {
		t.Fatalf("Executions = %d, want 5", stats.Executions)
	}
	if stats.P50 <= 0 || stats.P99 < stats.P50 {
		t.Errorf("percentiles P50=%v P99=%v", stats.P50, stats.P99)
	}
	if stats.AvgExecutionTime <= 0 {
		t.Errorf("AvgExecutionTime = %v", stats.AvgExecutionTime)
	}

	e.ResetStats()
	stats = e.Stats()
	if stats.Executions != 0 || stats.P50 != 0 || stats.HistorySize != 0 {
		t.Errorf("after reset: %+v", stats)
	}
}
