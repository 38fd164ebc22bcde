package identifier

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pidx/internal/constants"
	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// Identifier is a generated identifier. It is never mutated after it is
// returned.
type Identifier struct {
	PiComponent     string
	SpiralComponent string
	TimeComponent   string

	// Offset is where PiComponent starts in the digit block.
	Offset int

	UniquenessScore float64
	GenerationTime  time.Duration

	// FromPool is true when the identifier came from the pre-generated pool.
	FromPool bool
}

// String joins the three components. The result always has exactly three
// fields, the middle one empty when no spiral component was requested.
func (id Identifier) String() string {
	return id.PiComponent + constants.IdentifierDelimiter +
		id.SpiralComponent + constants.IdentifierDelimiter +
		id.TimeComponent
}

// Recorder receives issued identifiers, typically to persist them.
type Recorder interface {
	RecordIdentifier(ctx context.Context, id Identifier) error
}

// Parse splits an identifier string into its components and validates their
// shape. Score and offset are not recoverable from the string.
func Parse(s string) (Identifier, error) {
	parts := strings.Split(s, constants.IdentifierDelimiter)
	if len(parts) != constants.IdentifierFields {
		return Identifier{}, fmt.Errorf("%d fields in %q: %w", len(parts), s, pidxerrors.ErrMalformedIdentifier)
	}

	pi, sp, ts := parts[0], parts[1], parts[2]
	if pi == "" || !isHex(pi) {
		return Identifier{}, fmt.Errorf("π component %q: %w", pi, pidxerrors.ErrMalformedIdentifier)
	}
	if sp != "" {
		if _, _, err := DecodeSpiral(sp); err != nil {
			return Identifier{}, err
		}
	}
	if ts == "" || !isHex(ts) {
		return Identifier{}, fmt.Errorf("time component %q: %w", ts, pidxerrors.ErrMalformedIdentifier)
	}

	return Identifier{PiComponent: pi, SpiralComponent: sp, TimeComponent: ts}, nil
}

// Timestamp decodes the time component.
func (id Identifier) Timestamp() (time.Time, error) {
	us, err := strconv.ParseInt(id.TimeComponent, 16, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("time component %q: %w", id.TimeComponent, pidxerrors.ErrMalformedIdentifier)
	}
	return time.UnixMicro(us), nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// =============================================================================
// Spiral component encoding
// =============================================================================

const coordWidth = 1 + constants.SpiralCoordinateDigits

var maxCoordUnits = math.Pow(10, constants.SpiralCoordinateDigits) - 1

// EncodeSpiral encodes a point as two fixed-width coordinates, each a sign
// character ('p' or 'n') followed by round(|v|·1000) zero-padded to 8 digits.
// |v| is first clamped to bound.
func EncodeSpiral(x, y, bound float64) string {
	return encodeCoord(x, bound) + encodeCoord(y, bound)
}

func encodeCoord(v, bound float64) string {
	sign := byte('p')
	if v < 0 {
		sign = 'n'
	}
	a := math.Abs(v)
	if bound > 0 && a > bound {
		a = bound
	}
	units := math.Round(a * constants.SpiralCoordinateScale)
	if units > maxCoordUnits {
		units = maxCoordUnits
	}
	return fmt.Sprintf("%c%0*d", sign, constants.SpiralCoordinateDigits, int64(units))
}

// DecodeSpiral reverses EncodeSpiral to the 1/1000 resolution of the encoding.
func DecodeSpiral(s string) (x, y float64, err error) {
	if len(s) != 2*coordWidth {
		return 0, 0, fmt.Errorf("spiral component %q: %w", s, pidxerrors.ErrMalformedIdentifier)
	}
	if x, err = decodeCoord(s[:coordWidth]); err != nil {
		return 0, 0, err
	}
	if y, err = decodeCoord(s[coordWidth:]); err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func decodeCoord(s string) (float64, error) {
	var sign float64
	switch s[0] {
	case 'p':
		sign = 1
	case 'n':
		sign = -1
	default:
		return 0, fmt.Errorf("coordinate sign %q: %w", s[0], pidxerrors.ErrMalformedIdentifier)
	}
	n, err := strconv.ParseUint(s[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", s, pidxerrors.ErrMalformedIdentifier)
	}
	return sign * float64(n) / constants.SpiralCoordinateScale, nil
}

// =============================================================================
// Monotonic clock
// =============================================================================

// clock issues strictly increasing microsecond timestamps, even when the wall
// clock stalls or steps backwards.
type clock struct {
	last atomic.Int64
	now  func() time.Time
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) next() int64 {
	for {
		now := c.now().UnixMicro()
		last := c.last.Load()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

func (c *clock) nextHex() string {
	return strconv.FormatInt(c.next(), 16)
}
