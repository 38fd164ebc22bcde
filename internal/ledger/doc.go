// Package ledger persists issued identifiers and executed queries as Parquet
// segments.
//
// Records are buffered in memory and flushed into immutable segment files
// named by UUIDv7, so lexical order is creation order:
//
//	<data_dir>/identifiers/<uuidv7>.parquet
//	<data_dir>/queries/<uuidv7>.parquet
//
// Segments are written to a temporary name and renamed into place, so
// readers never observe a partial file.
package ledger
