package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/identifier"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/query"
)

var log = logging.Component(constants.ComponentLedger)

const (
	identifiersDir = "identifiers"
	queriesDir     = "queries"
)

// Config configures the ledger.
type Config struct {
	DataDir     string
	FlushRows   int
	Compression string

	// Retention is the segment age pruned by PruneExpired. Zero keeps
	// segments forever.
	Retention time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     config.DefaultLedgerDir,
		FlushRows:   config.DefaultLedgerFlushRows,
		Compression: config.DefaultLedgerCompression,
		Retention:   config.DefaultLedgerRetention,
	}
}

// Ledger buffers identifiers and queries and flushes them into Parquet
// segments. It implements identifier.Recorder and query.Recorder.
type Ledger struct {
	cfg   Config
	codec compress.Codec

	mu      sync.Mutex
	ioMu    sync.Mutex // serializes segment writes with maintenance
	ids     []IdentifierRow
	queries []QueryRow
	closed  bool

	identifiersWritten atomic.Int64
	queriesWritten     atomic.Int64
	segments           atomic.Int64
	flushErrors        atomic.Int64
}

var (
	_ identifier.Recorder = (*Ledger)(nil)
	_ query.Recorder      = (*Ledger)(nil)
)

// New creates the segment directories and returns a ledger.
func New(c *Config) (*Ledger, error) {
	if c == nil {
		c = DefaultConfig()
	}
	cfg := *c
	if cfg.DataDir == "" {
		return nil, pidxerrors.NewMissingField("ledger.data_dir")
	}
	if cfg.FlushRows <= 0 {
		cfg.FlushRows = config.DefaultLedgerFlushRows
	}
	compression, err := codec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	l := &Ledger{cfg: cfg, codec: compression}
	for _, sub := range []string{identifiersDir, queriesDir} {
		dir := filepath.Join(cfg.DataDir, sub)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		existing, err := listSegments(dir)
		if err != nil {
			return nil, fmt.Errorf("list ledger segments: %w", err)
		}
		l.segments.Add(int64(len(existing)))
	}

	log.Info("ledger opened",
		"data_dir", cfg.DataDir,
		"compression", cfg.Compression,
		"segments", l.segments.Load())
	return l, nil
}

// RecordIdentifier buffers an issued identifier.
func (l *Ledger) RecordIdentifier(_ context.Context, id identifier.Identifier) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return pidxerrors.ErrWriterClosed
	}
	l.ids = append(l.ids, IdentifierToRow(id))
	var batch []IdentifierRow
	if len(l.ids) >= l.cfg.FlushRows {
		batch, l.ids = l.ids, nil
	}
	l.mu.Unlock()

	return l.writeIdentifiers(batch)
}

// RecordQuery buffers an executed query.
func (l *Ledger) RecordQuery(_ context.Context, r query.Record) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return pidxerrors.ErrWriterClosed
	}
	l.queries = append(l.queries, RecordToRow(r))
	var batch []QueryRow
	if len(l.queries) >= l.cfg.FlushRows {
		batch, l.queries = l.queries, nil
	}
	l.mu.Unlock()

	return l.writeQueries(batch)
}

// Flush writes every buffered row.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	ids, queries := l.ids, l.queries
	l.ids, l.queries = nil, nil
	l.mu.Unlock()

	return pidxerrors.Join(l.writeIdentifiers(ids), l.writeQueries(queries))
}

// Close flushes buffered rows and rejects further records.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.Flush()
	log.Info("ledger closed",
		"identifiers", l.identifiersWritten.Load(),
		"queries", l.queriesWritten.Load(),
		"segments", l.segments.Load())
	return err
}

func (l *Ledger) writeIdentifiers(rows []IdentifierRow) error {
	if len(rows) == 0 {
		return nil
	}
	l.ioMu.Lock()
	path, err := writeSegment(filepath.Join(l.cfg.DataDir, identifiersDir), rows, l.codec)
	l.ioMu.Unlock()
	if err != nil {
		l.flushErrors.Add(1)
		l.mu.Lock()
		l.ids = append(rows, l.ids...)
		l.mu.Unlock()
		log.Error("identifier segment failed, rows kept buffered", "rows", len(rows), "error", err)
		return fmt.Errorf("flush identifiers: %w", err)
	}
	l.identifiersWritten.Add(int64(len(rows)))
	l.segments.Add(1)
	log.Debug("identifier segment written", "path", path, "rows", len(rows))
	return nil
}

func (l *Ledger) writeQueries(rows []QueryRow) error {
	if len(rows) == 0 {
		return nil
	}
	l.ioMu.Lock()
	path, err := writeSegment(filepath.Join(l.cfg.DataDir, queriesDir), rows, l.codec)
	l.ioMu.Unlock()
	if err != nil {
		l.flushErrors.Add(1)
		l.mu.Lock()
		l.queries = append(rows, l.queries...)
		l.mu.Unlock()
		log.Error("query segment failed, rows kept buffered", "rows", len(rows), "error", err)
		return fmt.Errorf("flush queries: %w", err)
	}
	l.queriesWritten.Add(int64(len(rows)))
	l.segments.Add(1)
	log.Debug("query segment written", "path", path, "rows", len(rows))
	return nil
}

// ReadIdentifiers reads every flushed identifier, oldest segment first.
func (l *Ledger) ReadIdentifiers(ctx context.Context) ([]identifier.Identifier, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	rows, err := readAll[IdentifierRow](ctx, filepath.Join(l.cfg.DataDir, identifiersDir))
	if err != nil {
		return nil, err
	}
	out := make([]identifier.Identifier, len(rows))
	for i := range rows {
		out[i] = RowToIdentifier(&rows[i])
	}
	return out, nil
}

// ReadQueries reads every flushed query record, oldest segment first.
func (l *Ledger) ReadQueries(ctx context.Context) ([]query.Record, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	rows, err := readAll[QueryRow](ctx, filepath.Join(l.cfg.DataDir, queriesDir))
	if err != nil {
		return nil, err
	}
	out := make([]query.Record, len(rows))
	for i := range rows {
		out[i] = RowToRecord(&rows[i])
	}
	return out, nil
}

func readAll[T any](ctx context.Context, dir string) ([]T, error) {
	paths, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readSegment[T](p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// IdentifierGlob is the glob matching identifier segments.
func (l *Ledger) IdentifierGlob() string {
	return filepath.Join(l.cfg.DataDir, identifiersDir, "*"+segmentExt)
}

// QueryGlob is the glob matching query segments.
func (l *Ledger) QueryGlob() string {
	return filepath.Join(l.cfg.DataDir, queriesDir, "*"+segmentExt)
}

// Stats is a snapshot of ledger counters.
type Stats struct {
	BufferedIdentifiers int
	BufferedQueries     int
	IdentifiersWritten  int64
	QueriesWritten      int64
	Segments            int64
	FlushErrors         int64
}

// Stats returns a snapshot of ledger counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	s := Stats{
		BufferedIdentifiers: len(l.ids),
		BufferedQueries:     len(l.queries),
	}
	l.mu.Unlock()

	s.IdentifiersWritten = l.identifiersWritten.Load()
	s.QueriesWritten = l.queriesWritten.Load()
	s.Segments = l.segments.Load()
	s.FlushErrors = l.flushErrors.Load()
	return s
}
