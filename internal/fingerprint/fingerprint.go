// Package fingerprint computes stable content fingerprints of raw upload
// bytes. The fingerprint is the primary duplicate-detection key and is also
// persisted on the photo record for future lookups.
package fingerprint

import (
	"encoding/hex"

	sha256 "github.com/minio/sha256-simd"
)

// Hash computes the content fingerprint of the provided raw bytes. It is a
// pure function: identical bytes always yield the same fingerprint.
func Hash(raw []byte) string {

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
