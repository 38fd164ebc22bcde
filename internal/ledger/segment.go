package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

const segmentExt = ".parquet"

// writeSegment writes rows to a new segment in dir and returns its path.
func writeSegment[T any](dir string, rows []T, c compress.Codec) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("segment name: %w", err)
	}
	path := filepath.Join(dir, id.String()+segmentExt)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	w := parquet.NewGenericWriter[T](f, parquet.Compression(c))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename segment: %w", err)
	}
	return path, nil
}

// readSegment reads every row of a segment.
func readSegment[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := parquet.NewGenericReader[T](f)
	defer r.Close()

	rows := make([]T, r.NumRows())
	total := 0
	for total < len(rows) {
		n, err := r.Read(rows[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if n == 0 {
			break
		}
	}
	return rows[:total], nil
}

// listSegments returns the segments in dir, oldest first.
func listSegments(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
