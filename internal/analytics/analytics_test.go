package analytics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/identifier"
	"github.com/xtxerr/pidx/internal/ledger"
	"github.com/xtxerr/pidx/internal/query"
	"github.com/xtxerr/pidx/internal/spiral"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(&ledger.Config{DataDir: t.TempDir(), FlushRows: 1000, Compression: "zstd"})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func newService(t *testing.T, src Source) *Service {
	t.Helper()
	svc, err := New(DefaultConfig(), src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seed(t *testing.T, l *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	base := time.UnixMilli(1767225600000)

	records := []query.Record{
		{QueryID: "a", Curve: spiral.Archimedean, Matched: 2, ExecutionTime: 2 * time.Millisecond, ExecutedAt: base},
		{QueryID: "b", Curve: spiral.Archimedean, Matched: 4, ExecutionTime: 4 * time.Millisecond, ExecutedAt: base.Add(time.Second), Truncated: true},
		{QueryID: "c", Curve: spiral.Fibonacci, Matched: 1, ExecutionTime: time.Millisecond, ExecutedAt: base.Add(2 * time.Second), CacheHit: true},
	}
	for _, r := range records {
		if err := l.RecordQuery(ctx, r); err != nil {
			t.Fatalf("RecordQuery: %v", err)
		}
	}
	for i := 0; i < 7; i++ {
		id := identifier.Identifier{PiComponent: fmt.Sprintf("%020d", i), TimeComponent: "1"}
		if err := l.RecordIdentifier(ctx, id); err != nil {
			t.Fatalf("RecordIdentifier: %v", err)
		}
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestService_EmptyLedger(t *testing.T) {
	svc := newService(t, newLedger(t))
	ctx := context.Background()

	hist, err := svc.QueryHistory(ctx, 10)
	if err != nil || len(hist) != 0 {
		t.Errorf("QueryHistory = %v, %v; want empty", hist, err)
	}
	n, err := svc.IdentifierCount(ctx)
	if err != nil || n != 0 {
		t.Errorf("IdentifierCount = %d, %v; want 0", n, err)
	}
	summary, err := svc.CurveSummary(ctx)
	if err != nil || len(summary) != 0 {
		t.Errorf("CurveSummary = %v, %v; want empty", summary, err)
	}
}

func TestService_QueryHistory(t *testing.T) {
	l := newLedger(t)
	seed(t, l)
	svc := newService(t, l)

	hist, err := svc.QueryHistory(context.Background(), 2)
	if err != nil {
		t.Fatalf("QueryHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d records, want 2", len(hist))
	}
	if hist[0].QueryID != "c" || hist[1].QueryID != "b" {
		t.Errorf("order = %s, %s; want c, b", hist[0].QueryID, hist[1].QueryID)
	}
	if !hist[0].CacheHit || hist[0].Curve != spiral.Fibonacci || hist[0].ExecutionTime != time.Millisecond {
		t.Errorf("record = %+v", hist[0])
	}
}

func TestService_CurveSummary(t *testing.T) {
	l := newLedger(t)
	seed(t, l)
	svc := newService(t, l)

	summary, err := svc.CurveSummary(context.Background())
	if err != nil {
		t.Fatalf("CurveSummary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("got %d curves, want 2", len(summary))
	}
	arch := summary[0]
	if arch.Curve != spiral.Archimedean || arch.Queries != 2 || arch.Truncated != 1 || arch.AvgMatched != 3 {
		t.Errorf("archimedean = %+v", arch)
	}
	if arch.AvgExecutionTime != 3*time.Millisecond {
		t.Errorf("AvgExecutionTime = %v, want 3ms", arch.AvgExecutionTime)
	}
	if summary[1].CacheHits != 1 {
		t.Errorf("fibonacci = %+v", summary[1])
	}
}

func TestService_IdentifierCount(t *testing.T) {
	l := newLedger(t)
	seed(t, l)
	svc := newService(t, l)

	n, err := svc.IdentifierCount(context.Background())
	if err != nil {
		t.Fatalf("IdentifierCount: %v", err)
	}
	if n != 7 {
		t.Errorf("IdentifierCount = %d, want 7", n)
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc := newService(t, newLedger(t))
	ctx := context.Background()

	results, err := svc.ExecuteSQL(ctx, "SELECT 1 AS value")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	if _, err := svc.ExecuteSQL(ctx, "SELECT FROM nowhere"); !errors.Is(err, pidxerrors.ErrDatabase) {
		t.Errorf("bad SQL error = %v, want ErrDatabase", err)
	}

	stats := svc.Stats()
	if stats.QueriesExecuted != 1 || stats.Errors != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNew_NilSource(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); !errors.Is(err, pidxerrors.ErrMissingField) {
		t.Errorf("New(nil) error = %v, want ErrMissingField", err)
	}
}
