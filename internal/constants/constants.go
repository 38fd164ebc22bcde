// Package constants provides centralized domain constants for pidx.
package constants

// =============================================================================
// Digit Algorithms
// =============================================================================

const (
	// AlgorithmChudnovsky is the Chudnovsky series (~14 digits per term).
	AlgorithmChudnovsky = "chudnovsky"

	// AlgorithmMachin is Machin's arctangent formula.
	AlgorithmMachin = "machin"

	// AlgorithmBBP is Bailey-Borwein-Plouffe hexadecimal digit extraction.
	AlgorithmBBP = "bbp"
)

// ValidAlgorithms contains all digit algorithms.
var ValidAlgorithms = []string{AlgorithmChudnovsky, AlgorithmMachin, AlgorithmBBP}

// IsValidAlgorithm checks if an algorithm name is known.
func IsValidAlgorithm(name string) bool {
	return contains(ValidAlgorithms, name)
}

// =============================================================================
// Spiral Curves
// =============================================================================

const (
	CurveArchimedean = "archimedean"
	CurveLogarithmic = "logarithmic"
	CurveFibonacci   = "fibonacci"
	CurveHyperbolic  = "hyperbolic"
	CurveLituus      = "lituus"
	CurveExponential = "exponential"
	CurveCustom      = "custom"
)

// ValidCurves contains all spiral curve names.
var ValidCurves = []string{
	CurveArchimedean,
	CurveLogarithmic,
	CurveFibonacci,
	CurveHyperbolic,
	CurveLituus,
	CurveExponential,
	CurveCustom,
}

// IsValidCurve checks if a curve name is known.
func IsValidCurve(name string) bool {
	return contains(ValidCurves, name)
}

// =============================================================================
// Identifier Format
// =============================================================================

const (
	// IdentifierDelimiter separates the π, spiral and time components.
	IdentifierDelimiter = "."

	// IdentifierFields is the number of delimited fields in every identifier.
	IdentifierFields = 3

	// SpiralCoordinateDigits is the zero-padded width of one encoded coordinate.
	SpiralCoordinateDigits = 8

	// SpiralCoordinateScale multiplies coordinates before rounding.
	SpiralCoordinateScale = 1000
)

// =============================================================================
// Query Stop Reasons
// =============================================================================

const (
	StopMaxDepth   = "max_depth"
	StopMaxResults = "max_results"
	StopStalled    = "stalled"
	StopTimeout    = "timeout"
	StopCancelled  = "cancelled"
	StopNoStart    = "no_start_nodes"
)

// =============================================================================
// Component Names (for logging)
// =============================================================================

const (
	ComponentDigits     = "digits"
	ComponentIdentifier = "identifier"
	ComponentQuery      = "query"
	ComponentWorkerPool = "workerpool"
	ComponentLedger     = "ledger"
	ComponentAnalytics  = "analytics"
	ComponentService    = "service"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
