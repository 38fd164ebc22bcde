// Package digits computes blocks of π digits.
//
// Two families are supported. The series algorithms (Chudnovsky, Machin)
// evaluate π in fixed-point decimal arithmetic and return radix-10 fractional
// digits ("14159..."). BBP extracts radix-16 fractional digits ("243f6a88...")
// at arbitrary positions without computing the preceding ones.
//
// Blocks are cached by (algorithm, precision) and computed at most once per
// key at a time.
package digits

import (
	"time"

	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// Algorithm names a digit algorithm.
type Algorithm string

const (
	Chudnovsky Algorithm = constants.AlgorithmChudnovsky
	Machin     Algorithm = constants.AlgorithmMachin
	BBP        Algorithm = constants.AlgorithmBBP
)

// ParseAlgorithm converts a name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	if !constants.IsValidAlgorithm(name) {
		return "", pidxerrors.Wrapf(pidxerrors.ErrUnsupportedAlgorithm, "algorithm %q", name)
	}
	return Algorithm(name), nil
}

// Radix returns the base of the digits the algorithm produces.
func (a Algorithm) Radix() int {
	if a == BBP {
		return 16
	}
	return 10
}

// Block is an immutable run of fractional π digits. The integer part 3 is
// never included.
type Block struct {
	Digits              string
	Radix               int
	Precision           int
	Algorithm           Algorithm
	ComputedAt          time.Time
	Iterations          int
	ConvergenceAchieved bool
	ConvergenceRate     float64
	Duration            time.Duration
}

// Len returns the number of digits in the block.
func (b *Block) Len() int {
	return len(b.Digits)
}
