package ledger

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
	"github.com/xtxerr/pidx/internal/identifier"
	"github.com/xtxerr/pidx/internal/query"
	"github.com/xtxerr/pidx/internal/spiral"
)

// IdentifierRow is the Parquet layout of an issued identifier.
type IdentifierRow struct {
	ID              string  `parquet:"id"`
	PiComponent     string  `parquet:"pi_component"`
	SpiralComponent string  `parquet:"spiral_component"`
	TimeComponent   string  `parquet:"time_component"`
	Offset          int64   `parquet:"offset"`
	UniquenessScore float64 `parquet:"uniqueness_score"`
	GenerationUs    int64   `parquet:"generation_us"`
	FromPool        bool    `parquet:"from_pool"`
	IssuedAtUs      int64   `parquet:"issued_at_us"`
}

// QueryRow is the Parquet layout of an executed query.
type QueryRow struct {
	QueryID      string `parquet:"query_id"`
	Curve        string `parquet:"curve"`
	MaxDepth     int32  `parquet:"max_depth"`
	MaxResults   int32  `parquet:"max_results"`
	Matched      int32  `parquet:"matched"`
	Steps        int32  `parquet:"steps"`
	StartNodes   int32  `parquet:"start_nodes"`
	Truncated    bool   `parquet:"truncated"`
	StopReason   string `parquet:"stop_reason"`
	CacheHit     bool   `parquet:"cache_hit"`
	ExecutionUs  int64  `parquet:"execution_us"`
	ExecutedAtMs int64  `parquet:"executed_at_ms"`
}

// IdentifierToRow converts an identifier to its row.
func IdentifierToRow(id identifier.Identifier) IdentifierRow {
	row := IdentifierRow{
		ID:              id.String(),
		PiComponent:     id.PiComponent,
		SpiralComponent: id.SpiralComponent,
		TimeComponent:   id.TimeComponent,
		Offset:          int64(id.Offset),
		UniquenessScore: id.UniquenessScore,
		GenerationUs:    id.GenerationTime.Microseconds(),
		FromPool:        id.FromPool,
	}
	if ts, err := id.Timestamp(); err == nil {
		row.IssuedAtUs = ts.UnixMicro()
	}
	return row
}

// RowToIdentifier converts a row back to an identifier.
func RowToIdentifier(r *IdentifierRow) identifier.Identifier {
	return identifier.Identifier{
		PiComponent:     r.PiComponent,
		SpiralComponent: r.SpiralComponent,
		TimeComponent:   r.TimeComponent,
		Offset:          int(r.Offset),
		UniquenessScore: r.UniquenessScore,
		GenerationTime:  time.Duration(r.GenerationUs) * time.Microsecond,
		FromPool:        r.FromPool,
	}
}

// RecordToRow converts a query record to its row.
func RecordToRow(r query.Record) QueryRow {
	return QueryRow{
		QueryID:      r.QueryID,
		Curve:        string(r.Curve),
		MaxDepth:     int32(r.MaxDepth),
		MaxResults:   int32(r.MaxResults),
		Matched:      int32(r.Matched),
		Steps:        int32(r.Steps),
		StartNodes:   int32(r.StartNodes),
		Truncated:    r.Truncated,
		StopReason:   r.StopReason,
		CacheHit:     r.CacheHit,
		ExecutionUs:  r.ExecutionTime.Microseconds(),
		ExecutedAtMs: r.ExecutedAt.UnixMilli(),
	}
}

// RowToRecord converts a row back to a query record.
func RowToRecord(r *QueryRow) query.Record {
	return query.Record{
		QueryID:       r.QueryID,
		Curve:         spiral.Curve(r.Curve),
		MaxDepth:      int(r.MaxDepth),
		MaxResults:    int(r.MaxResults),
		Matched:       int(r.Matched),
		Steps:         int(r.Steps),
		StartNodes:    int(r.StartNodes),
		Truncated:     r.Truncated,
		StopReason:    r.StopReason,
		CacheHit:      r.CacheHit,
		ExecutionTime: time.Duration(r.ExecutionUs) * time.Microsecond,
		ExecutedAt:    time.UnixMilli(r.ExecutedAtMs),
	}
}

// codec maps a configured compression name to a parquet-go codec.
func codec(name string) (compress.Codec, error) {
	switch name {
	case "zstd", "":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, pidxerrors.NewInvalidValue("compression", name, fmt.Sprintf("unsupported codec %q", name))
	}
}
