// Package config loads the pidx YAML configuration.
//
// Defaults are documented in the top-level config package; a file only needs
// to name the values it overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/pidx/config"
)

// Config represents the complete pidx configuration.
type Config struct {
	// Logging configures the global slog logger.
	Logging LoggingConfig `yaml:"logging"`

	// Digits configures the digit provider.
	Digits DigitsConfig `yaml:"digits"`

	// Identifiers configures identifier generation.
	Identifiers IdentifiersConfig `yaml:"identifiers"`

	// Workers configures the shared worker pool.
	Workers WorkersConfig `yaml:"workers"`

	// Spiral configures the coordinate mapper.
	Spiral SpiralConfig `yaml:"spiral"`

	// Query configures the traversal engine.
	Query QueryConfig `yaml:"query"`

	// Ledger configures Parquet persistence of identifiers and queries.
	Ledger LedgerConfig `yaml:"ledger"`

	// Analytics configures the DuckDB reader over the ledger.
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON selects JSON output instead of text.
	JSON bool `yaml:"json"`
}

// DigitsConfig configures the digit provider.
type DigitsConfig struct {
	// Precision is the number of fractional digits used for identifiers.
	Precision int `yaml:"precision"`

	// Algorithm is chudnovsky or machin.
	Algorithm string `yaml:"algorithm"`

	// GuardDigits are extra working digits for the series algorithms.
	GuardDigits int `yaml:"guard_digits"`

	// MaxIterations bounds one series evaluation.
	MaxIterations int `yaml:"max_iterations"`

	// ConvergenceRetries is the number of doubled-bound retries.
	ConvergenceRetries int `yaml:"convergence_retries"`

	// SampleInterval is the convergence sampling period in iterations.
	SampleInterval int `yaml:"sample_interval"`

	// BBPChunkDigits is the number of hex digits per BBP evaluation.
	BBPChunkDigits int `yaml:"bbp_chunk_digits"`
}

// IdentifiersConfig configures identifier generation.
type IdentifiersConfig struct {
	// Length is the π component length of pooled identifiers.
	Length int `yaml:"length"`

	// PoolSize is the number of pre-generated identifiers. Zero disables the pool.
	PoolSize int `yaml:"pool_size"`

	// PoolLowWater is the refill threshold as a fraction of PoolSize.
	PoolLowWater float64 `yaml:"pool_low_water"`

	// IssuedCapacity bounds the remembered π components.
	IssuedCapacity int `yaml:"issued_capacity"`

	// MaxCollisionRetries bounds linear offset probing.
	MaxCollisionRetries int `yaml:"max_collision_retries"`

	// MaxPrecision caps digit block growth. Zero keeps the block at
	// digits.precision.
	MaxPrecision int `yaml:"max_precision"`

	// SpiralCurve is the curve used for the spiral component.
	SpiralCurve string `yaml:"spiral_curve"`
}

// WorkersConfig configures the worker pool.
type WorkersConfig struct {
	// Count is the number of worker goroutines.
	Count int `yaml:"count"`

	// QueueSize is the job queue capacity.
	QueueSize int `yaml:"queue_size"`

	// UnitTimeout is the wait for one unit before it runs inline.
	UnitTimeout time.Duration `yaml:"unit_timeout"`

	// DrainTimeout bounds Close.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// SpiralConfig configures the coordinate mapper.
type SpiralConfig struct {
	// Clamp overrides the radius bound per curve name.
	Clamp map[string]float64 `yaml:"clamp"`
}

// QueryConfig configures the traversal engine.
type QueryConfig struct {
	AngleStep      float64 `yaml:"angle_step"`
	StartNodeLimit int     `yaml:"start_node_limit"`
	TopK           int     `yaml:"top_k"`
	DepthWeight    float64 `yaml:"depth_weight"`

	// StallLimit stops after this many steps without candidates. Zero disables.
	StallLimit int `yaml:"stall_limit"`

	// CacheSize bounds the result cache.
	CacheSize int `yaml:"cache_size"`

	// HistorySize bounds the execution history used by Analyze.
	HistorySize int `yaml:"history_size"`

	// SketchAccuracy is the DDSketch relative accuracy.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// LedgerConfig configures Parquet persistence.
type LedgerConfig struct {
	// Enabled turns on recording of identifiers and queries.
	Enabled bool `yaml:"enabled"`

	// DataDir is the root directory for segment files.
	DataDir string `yaml:"data_dir"`

	// FlushRows triggers a segment flush.
	FlushRows int `yaml:"flush_rows"`

	// Compression is snappy, zstd, gzip or none.
	Compression string `yaml:"compression"`

	// Retention prunes segments older than this at startup. Zero keeps them.
	Retention time.Duration `yaml:"retention"`
}

// AnalyticsConfig configures the DuckDB reader.
type AnalyticsConfig struct {
	// Enabled opens a DuckDB connection over the ledger. Requires the ledger.
	Enabled bool `yaml:"enabled"`

	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration populated from config.Default*.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Digits: DigitsConfig{
			Precision:          config.DefaultPrecision,
			Algorithm:          config.DefaultAlgorithm,
			GuardDigits:        config.DefaultGuardDigits,
			MaxIterations:      config.DefaultMaxIterations,
			ConvergenceRetries: config.DefaultConvergenceRetries,
			SampleInterval:     config.DefaultSampleInterval,
			BBPChunkDigits:     config.DefaultBBPChunkDigits,
		},
		Identifiers: IdentifiersConfig{
			Length:              config.DefaultIdentifierLength,
			PoolSize:            config.DefaultPoolSize,
			PoolLowWater:        config.DefaultPoolLowWater,
			IssuedCapacity:      config.DefaultIssuedCapacity,
			MaxCollisionRetries: config.DefaultMaxCollisionRetries,
			MaxPrecision:        config.DefaultMaxPrecision,
			SpiralCurve:         config.DefaultSpiralCurve,
		},
		Workers: WorkersConfig{
			Count:        config.DefaultWorkers,
			QueueSize:    config.DefaultWorkerQueueSize,
			UnitTimeout:  config.DefaultUnitTimeout,
			DrainTimeout: config.DefaultDrainTimeout,
		},
		Spiral: SpiralConfig{},
		Query: QueryConfig{
			AngleStep:      config.DefaultAngleStep,
			StartNodeLimit: config.DefaultStartNodeLimit,
			TopK:           config.DefaultTopK,
			DepthWeight:    config.DefaultDepthWeight,
			StallLimit:     config.DefaultStallLimit,
			CacheSize:      config.DefaultQueryCacheSize,
			HistorySize:    config.DefaultHistorySize,
			SketchAccuracy: config.DefaultSketchAccuracy,
		},
		Ledger: LedgerConfig{
			DataDir:     config.DefaultLedgerDir,
			FlushRows:   config.DefaultLedgerFlushRows,
			Compression: config.DefaultLedgerCompression,
			Retention:   config.DefaultLedgerRetention,
		},
		Analytics: AnalyticsConfig{
			MemoryLimit: config.DefaultAnalyticsMemoryLimit,
		},
	}
}
