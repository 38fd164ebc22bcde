package config

import (
	"errors"
	"fmt"

	"github.com/xtxerr/pidx/config"
	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// Validate checks the configuration for errors. All problems are reported
// together and the result matches errors.Is(err, ErrInvalidConfig).
func (c *Config) Validate() error {
	var errs []error

	if err := c.Digits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("digits: %w", err))
	}
	if err := c.Identifiers.Validate(c.Digits.Precision); err != nil {
		errs = append(errs, fmt.Errorf("identifiers: %w", err))
	}
	if err := c.Workers.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("workers: %w", err))
	}
	if err := c.Spiral.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spiral: %w", err))
	}
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}
	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ledger: %w", err))
	}
	if c.Analytics.Enabled && !c.Ledger.Enabled {
		errs = append(errs, pidxerrors.NewValidation("analytics.enabled", "requires ledger.enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the digits configuration.
func (c *DigitsConfig) Validate() error {
	var errs []error

	if c.Precision < 1 {
		errs = append(errs, pidxerrors.NewInvalidValue("precision", c.Precision, "must be at least 1"))
	}
	switch c.Algorithm {
	case constants.AlgorithmChudnovsky, constants.AlgorithmMachin:
	default:
		errs = append(errs, pidxerrors.NewInvalidValue("algorithm", c.Algorithm, "must be chudnovsky or machin"))
	}
	if c.GuardDigits < config.MinGuardDigits {
		errs = append(errs, pidxerrors.NewInvalidValue("guard_digits", c.GuardDigits,
			fmt.Sprintf("must be at least %d", config.MinGuardDigits)))
	}
	if c.MaxIterations < 1 {
		errs = append(errs, pidxerrors.NewValidation("max_iterations", "must be positive"))
	}
	if c.ConvergenceRetries < 0 {
		errs = append(errs, pidxerrors.NewValidation("convergence_retries", "must not be negative"))
	}
	if c.SampleInterval < 1 {
		errs = append(errs, pidxerrors.NewValidation("sample_interval", "must be positive"))
	}
	if c.BBPChunkDigits < 1 || c.BBPChunkDigits > 8 {
		errs = append(errs, pidxerrors.NewInvalidValue("bbp_chunk_digits", c.BBPChunkDigits, "must be 1-8"))
	}

	return errors.Join(errs...)
}

// Validate checks the identifiers configuration against the digit precision.
func (c *IdentifiersConfig) Validate(precision int) error {
	var errs []error

	if c.Length < 1 || c.Length >= precision {
		errs = append(errs, pidxerrors.NewInvalidValue("length", c.Length, "must be in [1, precision)"))
	}
	switch {
	case c.PoolSize < 0:
		errs = append(errs, pidxerrors.NewValidation("pool_size", "must not be negative"))
	case c.Length >= 1 && c.PoolSize > precision-c.Length:
		// Each pooled entry needs a distinct slice of the digit block.
		errs = append(errs, pidxerrors.NewInvalidValue("pool_size", c.PoolSize, "exceeds precision - length"))
	}
	if c.PoolLowWater < 0 || c.PoolLowWater >= 1 {
		errs = append(errs, pidxerrors.NewInvalidValue("pool_low_water", c.PoolLowWater, "must be in [0, 1)"))
	}
	if c.IssuedCapacity < 1 {
		errs = append(errs, pidxerrors.NewValidation("issued_capacity", "must be positive"))
	}
	if c.MaxCollisionRetries < 0 {
		errs = append(errs, pidxerrors.NewValidation("max_collision_retries", "must not be negative"))
	}
	if c.MaxPrecision != 0 && c.MaxPrecision < precision {
		errs = append(errs, pidxerrors.NewInvalidValue("max_precision", c.MaxPrecision, "must be zero or at least precision"))
	}
	if !constants.IsValidCurve(c.SpiralCurve) {
		errs = append(errs, pidxerrors.NewInvalidValue("spiral_curve", c.SpiralCurve, "unknown curve"))
	}

	return errors.Join(errs...)
}

// Validate checks the worker pool configuration.
func (c *WorkersConfig) Validate() error {
	var errs []error

	if c.Count < 1 {
		errs = append(errs, pidxerrors.NewValidation("count", "must be positive"))
	}
	if c.QueueSize < 1 {
		errs = append(errs, pidxerrors.NewValidation("queue_size", "must be positive"))
	}
	if c.UnitTimeout <= 0 {
		errs = append(errs, pidxerrors.NewValidation("unit_timeout", "must be positive"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, pidxerrors.NewValidation("drain_timeout", "must not be negative"))
	}

	return errors.Join(errs...)
}

// Validate checks the spiral configuration.
func (c *SpiralConfig) Validate() error {
	var errs []error

	for name, bound := range c.Clamp {
		if !constants.IsValidCurve(name) {
			errs = append(errs, pidxerrors.NewInvalidValue("clamp", name, "unknown curve"))
			continue
		}
		if bound <= 0 {
			errs = append(errs, pidxerrors.NewInvalidValue("clamp."+name, bound, "must be positive"))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.AngleStep <= 0 {
		errs = append(errs, pidxerrors.NewValidation("angle_step", "must be positive"))
	}
	if c.StartNodeLimit < 1 {
		errs = append(errs, pidxerrors.NewValidation("start_node_limit", "must be positive"))
	}
	if c.TopK < 1 {
		errs = append(errs, pidxerrors.NewValidation("top_k", "must be positive"))
	}
	if c.DepthWeight < 0 {
		errs = append(errs, pidxerrors.NewValidation("depth_weight", "must not be negative"))
	}
	if c.StallLimit < 0 {
		errs = append(errs, pidxerrors.NewValidation("stall_limit", "must not be negative"))
	}
	if c.CacheSize < 1 {
		errs = append(errs, pidxerrors.NewValidation("cache_size", "must be positive"))
	}
	if c.HistorySize < 1 {
		errs = append(errs, pidxerrors.NewValidation("history_size", "must be positive"))
	}
	if c.SketchAccuracy <= 0 || c.SketchAccuracy >= 1 {
		errs = append(errs, pidxerrors.NewInvalidValue("sketch_accuracy", c.SketchAccuracy, "must be in (0, 1)"))
	}

	return errors.Join(errs...)
}

// Validate checks the ledger configuration.
func (c *LedgerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.DataDir == "" {
		errs = append(errs, pidxerrors.NewMissingField("data_dir"))
	}
	if c.FlushRows < 1 {
		errs = append(errs, pidxerrors.NewValidation("flush_rows", "must be positive"))
	}
	switch c.Compression {
	case "snappy", "zstd", "gzip", "none", "":
	default:
		errs = append(errs, pidxerrors.NewInvalidValue("compression", c.Compression, "must be snappy, zstd, gzip or none"))
	}
	if c.Retention < 0 {
		errs = append(errs, pidxerrors.NewValidation("retention", "must not be negative"))
	}

	return errors.Join(errs...)
}
