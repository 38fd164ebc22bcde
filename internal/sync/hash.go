package sync

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
	"slices"
	"time"
)

// HashBuilder folds typed values into an FNV-64a key. The query engine keys
// its result cache with it:
//
//	key := NewHashBuilder().
//	    String(string(spec.Curve)).
//	    Floats(spec.Start.X, spec.Start.Y).
//	    Int(spec.MaxDepth).
//	    Build()
//
// Call order matters. Strings are NUL-terminated and numbers are fixed
// width, so ("ab","c") and ("a","bc") give different keys.
type HashBuilder struct {
	h   hash.Hash64
	buf [8]byte
}

// NewHashBuilder returns an empty builder.
func NewHashBuilder() *HashBuilder {
	return &HashBuilder{h: fnv.New64a()}
}

func (b *HashBuilder) word(v uint64) *HashBuilder {
	binary.LittleEndian.PutUint64(b.buf[:], v)
	b.h.Write(b.buf[:])
	return b
}

// String adds s followed by a NUL.
func (b *HashBuilder) String(s string) *HashBuilder {
	b.h.Write([]byte(s))
	b.h.Write([]byte{0})
	return b
}

// Strings adds ss as a set: the count, then the sorted members.
func (b *HashBuilder) Strings(ss []string) *HashBuilder {
	sorted := slices.Clone(ss)
	slices.Sort(sorted)
	b.Int(len(sorted))
	for _, s := range sorted {
		b.String(s)
	}
	return b
}

// Int adds i as a 64-bit word.
func (b *HashBuilder) Int(i int) *HashBuilder { return b.word(uint64(i)) }

// Duration adds d in nanoseconds.
func (b *HashBuilder) Duration(d time.Duration) *HashBuilder { return b.word(uint64(d)) }

// Floats adds each value by its IEEE-754 bits, so -0 and +0 differ.
func (b *HashBuilder) Floats(fs ...float64) *HashBuilder {
	for _, f := range fs {
		b.word(math.Float64bits(f))
	}
	return b
}

// Bool adds a single byte.
func (b *HashBuilder) Bool(v bool) *HashBuilder {
	var c byte
	if v {
		c = 1
	}
	b.h.Write([]byte{c})
	return b
}

// Build returns the key.
func (b *HashBuilder) Build() uint64 {
	return b.h.Sum64()
}

// HashString is the key of a single string.
func HashString(s string) uint64 {
	return NewHashBuilder().String(s).Build()
}
