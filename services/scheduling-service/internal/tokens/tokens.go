// Package tokens issues the per-appointment cancellation capability.
// Only the blake2b digest of a token is persisted.
package tokens

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/blake2b"
)

const size = 32

// New returns a fresh token and the digest to store for it.
func New() (token string, digest []byte, err error) {
	var b [size]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", nil, err
	}
	token = base64.RawURLEncoding.EncodeToString(b[:])
	return token, Digest(token), nil
}

func Digest(token string) []byte {
	sum := blake2b.Sum256([]byte(token))
	return sum[:]
}

// Match compares in constant time.
func Match(digest []byte, token string) bool {
	if len(digest) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare(digest, Digest(token)) == 1
}
