// Package pqctest provides a deterministic stand-in post-quantum primitive
// for tests. Keys are a shared secret; it offers no security.
package pqctest

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/sha3"
)

// Primitive emits SHAKE256(key || message) truncated to Size bytes.
type Primitive struct {
	Size int
}

func (p Primitive) Sign(message, privateKey []byte) ([]byte, error) {
	return p.expand(privateKey, message), nil
}

func (p Primitive) Verify(message, signature, publicKey []byte) bool {
	return subtle.ConstantTimeCompare(p.expand(publicKey, message), signature) == 1
}

func (p Primitive) expand(key, message []byte) []byte {
	h := sha3.NewShake256()
	_, _ = h.Write(key)
	_, _ = h.Write(message)
	out := make([]byte, p.Size)
	_, _ = h.Read(out)
	return out
}

// Key returns random key material usable as both halves of a key pair.
func Key() []byte {
	k := make([]byte, 32)
	_, _ = rand.Read(k)
	return k
}
