package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed hashes.
// Version suffix enables future algorithm migration.
const (
	DomainIdentity = "eve/identity/v1"
	DomainTriple   = "eve/triple/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical returns the domain-separated hash of v's canonical JSON.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// TripleHash returns a stable content hash for a triple.
// The journal uses it to group deltas of the same fact across rounds.
func TripleHash(t Triple) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return HashCanonical(DomainTriple, []any{string(t.Entity), t.Attribute, t.Value})
}

// MustTripleHash is like TripleHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTripleHash(t Triple) string {
	h, err := TripleHash(t)
	if err != nil {
		panic(err)
	}
	return h
}
