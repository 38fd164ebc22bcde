// Package identifier derives opaque identifiers from the digits of π.
//
// An identifier has three fields joined by ".":
//
//	<π component>.<spiral component>.<time component>
//
// The π component is a slice of a cached digit block taken at an advancing
// offset. The optional spiral component encodes a point on a spiral curve
// whose angle is seeded by a hash of the π component; when it is not
// requested the middle field is empty. The time component is a strictly
// increasing microsecond timestamp in hex.
//
// Uniqueness is probabilistic. The generator remembers a bounded set of issued
// π components and probes forward on collision, but components evicted from
// that set can be issued again, and the scheme offers no cryptographic
// guarantee. Systems that need strict uniqueness must enforce it in an
// external ledger.
package identifier
