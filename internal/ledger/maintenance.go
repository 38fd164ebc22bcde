package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go/compress"
)

// MaintenanceResult reports one Prune or Compact pass.
type MaintenanceResult struct {
	FilesRead    int
	FilesDeleted int
	FilesWritten int
	BytesFreed   int64
	FilesSkipped int
	Errors       []error
}

// Prune deletes segments created before now - olderThan. Buffered rows are
// not affected.
func (l *Ledger) Prune(ctx context.Context, olderThan time.Duration) (MaintenanceResult, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	var result MaintenanceResult
	cutoff := time.Now().Add(-olderThan)

	for _, sub := range []string{identifiersDir, queriesDir} {
		paths, err := listSegments(filepath.Join(l.cfg.DataDir, sub))
		if err != nil {
			return result, fmt.Errorf("list %s: %w", sub, err)
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			created, err := segmentTime(p)
			if err != nil || !created.Before(cutoff) {
				result.FilesSkipped++
				continue
			}

			info, statErr := os.Stat(p)
			if err := os.Remove(p); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", filepath.Base(p), err))
				continue
			}
			result.FilesDeleted++
			if statErr == nil {
				result.BytesFreed += info.Size()
			}
		}
	}

	l.segments.Add(-int64(result.FilesDeleted))
	log.Info("ledger pruned",
		"older_than", olderThan,
		"deleted", result.FilesDeleted,
		"bytes_freed", result.BytesFreed,
		"errors", len(result.Errors))
	return result, nil
}

// PruneExpired prunes segments older than the configured retention. It is a
// no-op when retention is zero.
func (l *Ledger) PruneExpired(ctx context.Context) (MaintenanceResult, error) {
	if l.cfg.Retention <= 0 {
		return MaintenanceResult{}, nil
	}
	return l.Prune(ctx, l.cfg.Retention)
}

// Compact merges the segments of each kind into a single segment. Row order
// is preserved. The merged segment is named, and later pruned, by the time
// of compaction.
func (l *Ledger) Compact(ctx context.Context) (MaintenanceResult, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	var result MaintenanceResult
	if err := compactDir[IdentifierRow](ctx, filepath.Join(l.cfg.DataDir, identifiersDir), l.codec, &result); err != nil {
		return result, fmt.Errorf("compact identifiers: %w", err)
	}
	if err := compactDir[QueryRow](ctx, filepath.Join(l.cfg.DataDir, queriesDir), l.codec, &result); err != nil {
		return result, fmt.Errorf("compact queries: %w", err)
	}

	l.segments.Add(int64(result.FilesWritten - result.FilesDeleted))
	log.Info("ledger compacted",
		"read", result.FilesRead,
		"written", result.FilesWritten,
		"deleted", result.FilesDeleted)
	return result, nil
}

func compactDir[T any](ctx context.Context, dir string, c compress.Codec, result *MaintenanceResult) error {
	paths, err := listSegments(dir)
	if err != nil {
		return err
	}
	if len(paths) < 2 {
		return nil
	}

	var rows []T
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := readSegment[T](p)
		if err != nil {
			return err
		}
		rows = append(rows, r...)
		result.FilesRead++
	}

	if _, err := writeSegment(dir, rows, c); err != nil {
		return err
	}
	result.FilesWritten++

	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", filepath.Base(p), err))
			continue
		}
		result.FilesDeleted++
	}
	return nil
}

// segmentTime decodes the creation time from a UUIDv7 segment name.
func segmentTime(path string) (time.Time, error) {
	name := strings.TrimSuffix(filepath.Base(path), segmentExt)
	id, err := uuid.Parse(name)
	if err != nil {
		return time.Time{}, err
	}
	if id.Version() != 7 {
		return time.Time{}, fmt.Errorf("segment %s: not a version 7 UUID", name)
	}
	var ms [8]byte
	copy(ms[2:], id[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:]))), nil
}
