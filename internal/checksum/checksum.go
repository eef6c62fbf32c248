// Package checksum computes content digests used as entry ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Text returns the digest of s. Entry texts are compared by this value on update.
func Text(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether etag (quotes allowed) is the digest of s.
// An empty etag always matches.
func Matches(etag, s string) bool {
	if etag == "" {
		return true
	}
	if len(etag) >= 2 && etag[0] == '"' && etag[len(etag)-1] == '"' {
		etag = etag[1 : len(etag)-1]
	}
	return etag == Text(s)
}
