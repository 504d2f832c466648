// Package checksum provides content fingerprints for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data. It is used purely
// as a change-detection fingerprint, not for anything security-sensitive.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns a truncated digest suitable for log output.
func Short(data []byte) string {
	return Sum(data)[:12]
}
