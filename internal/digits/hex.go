package digits

import (
	"math"
	"math/big"
	"strings"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// MaxHexDigits returns how many radix-16 digits HexDigits can derive exactly
// from a decimal block of the given precision.
func MaxHexDigits(precision int) int {
	n := int(float64(precision)*math.Log(10)/math.Log(16)) - 2
	if n < 0 {
		return 0
	}
	return n
}

// HexDigits converts the first n fractional digits of a radix-10 block to
// radix 16, so that series results can be compared with BBP extraction.
func HexDigits(b *Block, n int) (string, error) {
	if b == nil || b.Radix != 10 {
		return "", pidxerrors.Wrap(pidxerrors.ErrUnsupportedAlgorithm, "hex conversion needs a decimal block")
	}
	if n < 0 || n > MaxHexDigits(len(b.Digits)) {
		return "", pidxerrors.Wrapf(pidxerrors.ErrInvalidPrecision, "%d hex digits from %d decimal digits", n, len(b.Digits))
	}

	f, ok := new(big.Int).SetString(b.Digits, 10)
	if !ok {
		return "", pidxerrors.Wrap(pidxerrors.ErrInvalidPrecision, "block digits are not decimal")
	}
	scale := pow10(len(b.Digits))
	sixteen := big.NewInt(16)
	d := new(big.Int)
	r := new(big.Int)

	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		f.Mul(f, sixteen)
		d.QuoRem(f, scale, r)
		f, r = r, f
		sb.WriteByte(hexAlphabet[d.Int64()])
	}
	return sb.String(), nil
}
