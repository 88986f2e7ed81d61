package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const linkTokenBytes = 32

// newLinkToken returns a random URL-safe token and the hash that is stored
// in its place.
func newLinkToken() (raw, hash string, err error) {
	var b [linkTokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b[:])
	return raw, hashLinkToken(raw), nil
}

func hashLinkToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
