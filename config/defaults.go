// Package config provides configuration defaults for pidx.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml (see internal/config).
package config

import "time"

// =============================================================================
// Digit Provider Defaults
// =============================================================================

const (
	// DefaultPrecision is the number of fractional digits of π computed for
	// identifier generation.
	// Override via config: digits.precision
	DefaultPrecision = 10000

	// DefaultAlgorithm is the series used for the identifier digit block.
	// Override via config: digits.algorithm
	DefaultAlgorithm = "chudnovsky"

	// DefaultGuardDigits is the number of extra working digits carried by the
	// series algorithms to absorb rounding error. Must be at least MinGuardDigits.
	// Override via config: digits.guard_digits
	DefaultGuardDigits = 50

	// MinGuardDigits is the lowest accepted guard.
	MinGuardDigits = 50

	// DefaultMaxIterations bounds a single series evaluation before the
	// provider retries with a larger bound.
	// Override via config: digits.max_iterations
	DefaultMaxIterations = 1000000

	// DefaultConvergenceRetries is how many times a non-converging series is
	// retried with a doubled iteration bound.
	// Override via config: digits.convergence_retries
	DefaultConvergenceRetries = 2

	// DefaultSampleInterval is how often (in iterations) a series samples its
	// term magnitude for the convergence rate.
	// Override via config: digits.sample_interval
	DefaultSampleInterval = 10

	// DefaultBBPChunkDigits is the number of hex digits taken from one BBP
	// evaluation during bulk extraction.
	// Override via config: digits.bbp_chunk_digits
	DefaultBBPChunkDigits = 6
)

// =============================================================================
// Identifier Defaults
// =============================================================================

const (
	// DefaultIdentifierLength is the π component length of pooled identifiers.
	// Override via config: identifiers.length
	DefaultIdentifierLength = 20

	// DefaultPoolSize is the number of pre-generated identifiers. It may not
	// exceed precision - length, the number of distinct slices in the block.
	// Override via config: identifiers.pool_size
	DefaultPoolSize = 1000

	// DefaultPoolLowWater triggers a background refill when the pool shrinks
	// below this fraction of DefaultPoolSize.
	// Override via config: identifiers.pool_low_water
	DefaultPoolLowWater = 0.1

	// DefaultIssuedCapacity bounds the set of remembered π components.
	// Components evicted from the set may be issued again.
	// Override via config: identifiers.issued_capacity
	DefaultIssuedCapacity = 100000

	// DefaultMaxCollisionRetries is how many linear offset advances are tried
	// before giving up with a collision error.
	// Override via config: identifiers.max_collision_retries
	DefaultMaxCollisionRetries = 1000

	// DefaultMaxPrecision caps digit block growth. When the block has no free
	// slice left, the generator doubles its precision up to this bound. It must
	// be zero (no growth) or at least the digit precision.
	// Override via config: identifiers.max_precision
	DefaultMaxPrecision = 160000

	// DefaultSpiralCurve is the curve used for the spiral component.
	// Override via config: identifiers.spiral_curve
	DefaultSpiralCurve = "fibonacci"
)

// =============================================================================
// Worker Pool Defaults
// =============================================================================

const (
	// DefaultWorkers is the number of worker goroutines for batch generation
	// and bulk digit extraction.
	// Override via config: workers.count
	DefaultWorkers = 16

	// DefaultWorkerQueueSize is the job queue capacity. A full queue runs
	// work inline.
	// Override via config: workers.queue_size
	DefaultWorkerQueueSize = 4096

	// DefaultUnitTimeout is how long a caller waits for one work unit before
	// running it inline.
	// Override via config: workers.unit_timeout
	DefaultUnitTimeout = 5 * time.Second

	// DefaultDrainTimeout is how long Close waits for in-flight units.
	// Override via config: workers.drain_timeout
	DefaultDrainTimeout = 10 * time.Second
)

// =============================================================================
// Spiral Defaults
// =============================================================================

const (
	// DefaultGrowthClamp bounds |r| for archimedean, logarithmic, fibonacci and
	// exponential curves.
	// Override via config: spiral.clamp.<curve>
	DefaultGrowthClamp = 1e4

	// DefaultInverseClamp bounds |r| for hyperbolic, lituus and custom curves.
	// Override via config: spiral.clamp.<curve>
	DefaultInverseClamp = 1e3
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultAngleStep is the angular increment per traversal step (radians).
	// Override via config: query.angle_step
	DefaultAngleStep = 0.1

	// DefaultStartNodeLimit is the maximum number of traversal seeds.
	// Override via config: query.start_node_limit
	DefaultStartNodeLimit = 10

	// DefaultTopK is the maximum number of candidates gathered per step.
	// Override via config: query.top_k
	DefaultTopK = 5

	// DefaultDepthWeight penalizes candidates found deeper in the traversal.
	// Override via config: query.depth_weight
	DefaultDepthWeight = 0.1

	// DefaultStallLimit stops a traversal after this many consecutive steps
	// without new candidates. Zero disables the check.
	// Override via config: query.stall_limit
	DefaultStallLimit = 50

	// DefaultQueryCacheSize bounds the query result cache.
	// Override via config: query.cache_size
	DefaultQueryCacheSize = 1024

	// DefaultHistorySize bounds the execution-time history kept for analysis.
	// Override via config: query.history_size
	DefaultHistorySize = 1000

	// DefaultSketchAccuracy is the DDSketch relative accuracy for execution
	// time percentiles.
	// Override via config: query.sketch_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Ledger Defaults
// =============================================================================

const (
	// DefaultLedgerDir is where identifier and query segments are written.
	// Override via config: ledger.data_dir
	DefaultLedgerDir = "/var/lib/pidx/ledger"

	// DefaultLedgerFlushRows is the number of buffered rows that triggers a
	// segment flush.
	// Override via config: ledger.flush_rows
	DefaultLedgerFlushRows = 10000

	// DefaultLedgerCompression is the Parquet compression codec.
	// Override via config: ledger.compression
	DefaultLedgerCompression = "zstd"

	// DefaultLedgerRetention is the segment age pruned at startup. Zero keeps
	// segments forever.
	// Override via config: ledger.retention
	DefaultLedgerRetention = time.Duration(0)

	// DefaultAnalyticsMemoryLimit is the DuckDB memory limit.
	// Override via config: analytics.memory_limit
	DefaultAnalyticsMemoryLimit = "512MB"
)
