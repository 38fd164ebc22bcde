// Package analytics runs SQL over ledger segments with DuckDB.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/logging"
	"github.com/xtxerr/pidx/internal/query"
	"github.com/xtxerr/pidx/internal/spiral"
)

var log = logging.Component(constants.ComponentAnalytics)

// Source locates ledger segments. *ledger.Ledger implements it.
type Source interface {
	IdentifierGlob() string
	QueryGlob() string
}

// Config configures the DuckDB connection.
type Config struct {
	MemoryLimit string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{MemoryLimit: config.DefaultAnalyticsMemoryLimit}
}

// Service answers analytical queries over the ledger.
type Service struct {
	db  *sql.DB
	src Source

	queriesExecuted atomic.Int64
	rowsReturned    atomic.Int64
	errors          atomic.Int64
}

// Stats holds analytics counters.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// CurveSummary aggregates recorded queries of one curve.
type CurveSummary struct {
	Curve            spiral.Curve
	Queries          int64
	AvgExecutionTime time.Duration
	AvgMatched       float64
	Truncated        int64
	CacheHits        int64
}

// New opens an in-memory DuckDB database over src. A nil cfg uses defaults.
func New(cfg *Config, src Source) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if src == nil {
		return nil, pidxerrors.NewMissingField("analytics source")
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.MemoryLimit != "" {
		if _, err := db.Exec("SET memory_limit=" + quote(cfg.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{db: db, src: src}, nil
}

// Close closes the database.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// QueryHistory returns up to limit recorded queries, newest first.
func (s *Service) QueryHistory(ctx context.Context, limit int) ([]query.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	glob := s.src.QueryGlob()
	if !hasSegments(glob) {
		return nil, nil
	}

	q := `
		SELECT
			query_id, curve, max_depth, max_results, matched, steps,
			start_nodes, truncated, stop_reason, cache_hit,
			execution_us, executed_at_ms
		FROM read_parquet(` + quote(glob) + `)
		ORDER BY executed_at_ms DESC, query_id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, s.fail("query history", err)
	}
	defer rows.Close()

	var out []query.Record
	for rows.Next() {
		var (
			r           query.Record
			curve       string
			executionUs int64
			executedAt  int64
		)
		if err := rows.Scan(
			&r.QueryID, &curve, &r.MaxDepth, &r.MaxResults, &r.Matched, &r.Steps,
			&r.StartNodes, &r.Truncated, &r.StopReason, &r.CacheHit,
			&executionUs, &executedAt,
		); err != nil {
			return nil, s.fail("scan query history", err)
		}
		r.Curve = spiral.Curve(curve)
		r.ExecutionTime = time.Duration(executionUs) * time.Microsecond
		r.ExecutedAt = time.UnixMilli(executedAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("query history", err)
	}

	s.done(len(out))
	return out, nil
}

// CurveSummary aggregates recorded queries per curve, ordered by curve.
func (s *Service) CurveSummary(ctx context.Context) ([]CurveSummary, error) {
	glob := s.src.QueryGlob()
	if !hasSegments(glob) {
		return nil, nil
	}

	q := `
		SELECT
			curve,
			count(*),
			avg(execution_us),
			avg(matched),
			count(*) FILTER (WHERE truncated),
			count(*) FILTER (WHERE cache_hit)
		FROM read_parquet(` + quote(glob) + `)
		GROUP BY curve
		ORDER BY curve
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, s.fail("curve summary", err)
	}
	defer rows.Close()

	var out []CurveSummary
	for rows.Next() {
		var (
			cs    CurveSummary
			curve string
			avgUs float64
		)
		if err := rows.Scan(&curve, &cs.Queries, &avgUs, &cs.AvgMatched, &cs.Truncated, &cs.CacheHits); err != nil {
			return nil, s.fail("scan curve summary", err)
		}
		cs.Curve = spiral.Curve(curve)
		cs.AvgExecutionTime = time.Duration(avgUs * float64(time.Microsecond))
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("curve summary", err)
	}

	s.done(len(out))
	return out, nil
}

// IdentifierCount returns the number of persisted identifiers.
func (s *Service) IdentifierCount(ctx context.Context) (int64, error) {
	glob := s.src.IdentifierGlob()
	if !hasSegments(glob) {
		return 0, nil
	}

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM read_parquet("+quote(glob)+")").Scan(&n)
	if err != nil {
		return 0, s.fail("identifier count", err)
	}
	s.done(1)
	return n, nil
}

// ExecuteSQL runs an ad-hoc query. Segment globs are available through
// IdentifierGlob and QueryGlob on the source.
func (s *Service) ExecuteSQL(ctx context.Context, q string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, s.fail("execute sql", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.fail("execute sql", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.fail("execute sql", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("execute sql", err)
	}

	s.done(len(results))
	return results, nil
}

// Stats returns analytics counters.
func (s *Service) Stats() Stats {
	return Stats{
		QueriesExecuted: s.queriesExecuted.Load(),
		RowsReturned:    s.rowsReturned.Load(),
		Errors:          s.errors.Load(),
	}
}

func (s *Service) done(rows int) {
	s.queriesExecuted.Add(1)
	s.rowsReturned.Add(int64(rows))
}

func (s *Service) fail(op string, err error) error {
	s.errors.Add(1)
	log.Warn("analytics query failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w: %w", op, pidxerrors.ErrDatabase, err)
}

// hasSegments reports whether glob matches any file. read_parquet fails on
// an empty match.
func hasSegments(glob string) bool {
	matches, err := filepath.Glob(glob)
	return err == nil && len(matches) > 0
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
