package util

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Digest returns the first 16 bytes of sha256(b), hex encoded.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

// RecordKey namespaces a resource URL for byte stores: "res:<ns>:<url>".
func RecordKey(ns, url string) string {
	return "res:" + ns + ":" + url
}

// SafeKey encodes url with unpadded base64url so it only contains
// characters accepted by restrictive key spaces (e.g. NATS KV).
func SafeKey(url string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(url))
}

// FromSafeKey reverses SafeKey.
func FromSafeKey(k string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(k)
	return string(b), err
}
