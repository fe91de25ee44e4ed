// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization of claims and arbitrary values. The canonical bytes of a
// claim are the only input to signing and verification.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// Map keys are sorted by UTF-16 code units at every level, there is no
// insignificant whitespace and HTML characters are not escaped.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v any) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hash of raw bytes as hex.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Claim returns the canonical bytes of c: its map form with the signature
// removed and empty values omitted, keys sorted, no whitespace.
func Claim(c *manifest.Claim) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("jcs: nil claim")
	}
	m, err := c.ToCanonicalMap()
	if err != nil {
		return nil, err
	}
	return JCS(m)
}

// ClaimHash returns the SHA-256 hex digest of Claim(c).
func ClaimHash(c *manifest.Claim) (string, error) {
	b, err := Claim(c)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}
