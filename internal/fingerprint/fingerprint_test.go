package fingerprint

import "testing"

func TestHashDeterminism(t *testing.T) {

	raw := []byte("the same bytes in, the same fingerprint out")

	first := Hash(raw)
	second := Hash(raw)

	if first != second {
		t.Errorf("expected identical fingerprints for identical bytes, got '%s' and '%s'", first, second)
	}

	// sha256 hex encodes to 64 chars
	if len(first) != 64 {
		t.Errorf("expected fingerprint length of 64, got %d", len(first))
	}
}

func TestHashDifference(t *testing.T) {

	raw := []byte("the same bytes in, the same fingerprint out")

	// flip a single byte
	flipped := make([]byte, len(raw))
	copy(flipped, raw)
	flipped[0] ^= 0x01

	if Hash(raw) == Hash(flipped) {
		t.Error("expected different fingerprints for one-byte-different buffers")
	}
}

func TestHashEmpty(t *testing.T) {

	// empty input is still a valid, stable fingerprint
	if Hash(nil) != Hash([]byte{}) {
		t.Error("expected nil and empty buffers to yield the same fingerprint")
	}
}
