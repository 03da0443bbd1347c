package lengths

import "testing"

func TestExactBelowLinearCap(t *testing.T) {
	for x := 0; x < linearCap; x++ {
		if got := ByteToLength(LengthToByte(x)); got != x {
			t.Errorf("round trip %d = %d; want exact", x, got)
		}
	}
}

func TestMonotonic(t *testing.T) {
	prev := -1
	for x := 0; x < 2_000_000; x += 37 {
		got := ByteToLength(LengthToByte(x))
		if got < prev {
			t.Fatalf("byte_to_length(length_to_byte(%d)) = %d; want >= previous %d", x, got, prev)
		}
		prev = got
	}
}

func TestSaturatesAtByteRange(t *testing.T) {
	b := LengthToByte(1 << 30)
	if b != 255 {
		t.Errorf("LengthToByte(huge) = %d; want 255 (max byte value)", b)
	}
}

func TestNegativeClampedToZero(t *testing.T) {
	if got := LengthToByte(-5); got != 0 {
		t.Errorf("LengthToByte(-5) = %d; want 0", got)
	}
}
