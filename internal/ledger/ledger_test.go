package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/identifier"
	"github.com/xtxerr/pidx/internal/query"
	"github.com/xtxerr/pidx/internal/spiral"
	pidxtesting "github.com/xtxerr/pidx/internal/testing"
)

func newTestLedger(t *testing.T, flushRows int) *Ledger {
	t.Helper()
	l, err := New(&Config{
		DataDir:     pidxtesting.TempDir(t, "ledger"),
		FlushRows:   flushRows,
		Compression: "zstd",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func testIdentifier(i int) identifier.Identifier {
	return identifier.Identifier{
		PiComponent:     fmt.Sprintf("1415926535%02d", i),
		SpiralComponent: identifier.EncodeSpiral(1.5, -2.25, 1e4),
		TimeComponent:   strconv.FormatInt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMicro()+int64(i), 16),
		Offset:          i * 20,
		UniquenessScore: 0.75,
		GenerationTime:  time.Duration(i+1) * time.Microsecond,
		FromPool:        i%2 == 0,
	}
}

func testRecord(i int) query.Record {
	return query.Record{
		QueryID:       fmt.Sprintf("q-%d", i),
		Curve:         spiral.Fibonacci,
		MaxDepth:      20,
		MaxResults:    10,
		Matched:       i,
		Steps:         20,
		StartNodes:    3,
		Truncated:     i == 1,
		StopReason:    "max_depth",
		ExecutionTime: time.Duration(i) * time.Millisecond,
		ExecutedAt:    time.UnixMilli(1767225600000 + int64(i)),
	}
}

func TestLedger_IdentifierRoundTrip(t *testing.T) {
	l := newTestLedger(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.RecordIdentifier(ctx, testIdentifier(i)); err != nil {
			t.Fatalf("RecordIdentifier(%d): %v", i, err)
		}
	}

	stats := l.Stats()
	if stats.Segments != 1 || stats.BufferedIdentifiers != 2 || stats.IdentifiersWritten != 3 {
		t.Errorf("after auto flush: %+v", stats)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := l.ReadIdentifiers(ctx)
	if err != nil {
		t.Fatalf("ReadIdentifiers: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("read %d identifiers, want 5", len(got))
	}
	for i, id := range got {
		want := testIdentifier(i)
		if id != want {
			t.Errorf("identifier[%d] = %+v, want %+v", i, id, want)
		}
	}
}

func TestLedger_QueryRoundTrip(t *testing.T) {
	l := newTestLedger(t, 100)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := l.RecordQuery(ctx, testRecord(i)); err != nil {
			t.Fatalf("RecordQuery(%d): %v", i, err)
		}
	}
	if got, _ := l.ReadQueries(ctx); len(got) != 0 {
		t.Errorf("unflushed queries visible: %d", len(got))
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := l.ReadQueries(ctx)
	if err != nil {
		t.Fatalf("ReadQueries: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d records, want 4", len(got))
	}
	for i, r := range got {
		want := testRecord(i)
		if r.QueryID != want.QueryID || r.Curve != want.Curve || r.Matched != want.Matched ||
			r.Truncated != want.Truncated || r.ExecutionTime != want.ExecutionTime ||
			!r.ExecutedAt.Equal(want.ExecutedAt) {
			t.Errorf("record[%d] = %+v, want %+v", i, r, want)
		}
	}
}

func TestLedger_SegmentsAreComplete(t *testing.T) {
	l := newTestLedger(t, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.RecordQuery(ctx, testRecord(i)); err != nil {
			t.Fatalf("RecordQuery: %v", err)
		}
	}

	matches, err := filepath.Glob(l.QueryGlob())
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Errorf("found %d segments, want 3", len(matches))
	}
	entries, err := os.ReadDir(filepath.Dir(l.QueryGlob()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != segmentExt {
			t.Errorf("unexpected file %s", e.Name())
		}
	}

	got, err := l.ReadQueries(ctx)
	if err != nil {
		t.Fatalf("ReadQueries: %v", err)
	}
	for i, r := range got {
		if r.QueryID != fmt.Sprintf("q-%d", i) {
			t.Errorf("segment order: record[%d] = %s", i, r.QueryID)
		}
	}
}

func TestLedger_FailedFlushKeepsRows(t *testing.T) {
	l := newTestLedger(t, 3)
	ctx := context.Background()

	// A file in place of the segment directory makes every write fail.
	dir := filepath.Join(l.cfg.DataDir, identifiersDir)
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, nil, 0644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		err := l.RecordIdentifier(ctx, testIdentifier(i))
		if i >= 2 && err == nil {
			t.Fatalf("RecordIdentifier(%d) should report the failed flush", i)
		}
	}
	stats := l.Stats()
	if stats.BufferedIdentifiers != 4 || stats.IdentifiersWritten != 0 || stats.FlushErrors != 2 {
		t.Fatalf("after failed flushes: %+v", stats)
	}

	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := l.ReadIdentifiers(ctx)
	if err != nil {
		t.Fatalf("ReadIdentifiers: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("read %d identifiers, want 4", len(got))
	}
	for i, id := range got {
		if id != testIdentifier(i) {
			t.Errorf("identifier[%d] = %+v, want %+v", i, id, testIdentifier(i))
		}
	}
}

func TestLedger_Closed(t *testing.T) {
	l := newTestLedger(t, 10)
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	ctx := context.Background()
	if err := l.RecordIdentifier(ctx, testIdentifier(0)); !errors.Is(err, pidxerrors.ErrWriterClosed) {
		t.Errorf("RecordIdentifier after Close = %v, want ErrWriterClosed", err)
	}
	if err := l.RecordQuery(ctx, testRecord(0)); !errors.Is(err, pidxerrors.ErrWriterClosed) {
		t.Errorf("RecordQuery after Close = %v, want ErrWriterClosed", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(&Config{}); !errors.Is(err, pidxerrors.ErrMissingField) {
		t.Errorf("empty data dir: %v", err)
	}
	_, err := New(&Config{DataDir: t.TempDir(), Compression: "brotli"})
	if !pidxerrors.IsConfiguration(err) {
		t.Errorf("bad codec: %v", err)
	}
}

func TestCodec(t *testing.T) {
	for _, name := range []string{"", "zstd", "snappy", "gzip", "none"} {
		if _, err := codec(name); err != nil {
			t.Errorf("codec(%q): %v", name, err)
		}
	}
}
