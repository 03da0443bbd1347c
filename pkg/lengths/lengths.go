// Package lengths implements the single-byte logarithmic length codec
// used throughout the index to pack a field length (an int that can run
// into the tens of thousands) into one byte of storage in a TermInfo or
// a per-document length column.
//
// The codec has two regions. Values below linearCap map 1:1 onto bytes
// 0..linearCap-1. Values at or above linearCap are packed as a
// (mantissa, exponent) pair into the remaining byte values, the way a
// small floating point number would be, so that the relative error stays
// bounded as lengths grow up to the largest packable length; every longer
// length maps to byte 255.
package lengths

const (
	linearCap = 64 // values 0..63 are stored exactly
	mantBits  = 3  // bits of mantissa in the packed region, excluding the implicit leading bit
	mantMask  = 1<<mantBits - 1
	maxPacked = 255 - linearCap
)

// LengthToByte packs a non-negative length into a single byte. The
// mapping is monotonic non-decreasing: x1 <= x2 implies
// LengthToByte(x1) <= LengthToByte(x2). Lengths below linearCap round-trip
// exactly; above that, values are stored as a floating (mantissa,
// exponent) pair with an implicit leading mantissa bit, the same shape as
// a small-float byte codec, so relative error stays bounded up to the
// largest packable length; longer lengths all map to byte 255.
func LengthToByte(length int) byte {
	if length < 0 {
		length = 0
	}
	if length < linearCap {
		return byte(length)
	}
	v := length
	exp := 0
	for v > 2*mantMask+1 {
		v >>= 1
		exp++
	}
	mant := v - (mantMask + 1)
	if mant < 0 {
		mant = 0
	}
	packed := (exp << mantBits) + mant
	if packed > maxPacked {
		packed = maxPacked
	}
	return byte(linearCap + packed)
}

// ByteToLength unpacks a byte produced by LengthToByte back into an
// approximate length. For length < linearCap the result is exact;
// above that it is the smallest value that would have packed to b.
func ByteToLength(b byte) int {
	if b < linearCap {
		return int(b)
	}
	packed := int(b) - linearCap
	exp := packed >> mantBits
	mant := packed & mantMask
	return (mant + mantMask + 1) << exp
}
