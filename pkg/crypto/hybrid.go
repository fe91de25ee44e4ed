package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// hybridPrefixLen is the size of the big-endian classical length prefix.
const hybridPrefixLen = 4

// Hybrid composes a classical and a post-quantum registry entry. Both halves
// sign the same bytes and both must verify.
type Hybrid struct {
	registry    *Registry
	alg         manifest.Algorithm
	classical   manifest.Algorithm
	postQuantum manifest.Algorithm
}

// NewHybrid binds a hybrid tag to its component entries in r. Components are
// resolved at call time so that replaced registrations take effect.
func NewHybrid(r *Registry, alg manifest.Algorithm) (*Hybrid, error) {
	cl, pq, ok := alg.Components()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a hybrid", ErrUnsupportedAlgorithm, string(alg))
	}
	return &Hybrid{registry: r, alg: alg, classical: cl, postQuantum: pq}, nil
}

func (h *Hybrid) Sign(message []byte, key PrivateKey) ([]byte, error) {
	switch {
	case key.Empty():
		return nil, fmt.Errorf("%w: %s", ErrMissingKeyMaterial, h.alg)
	case key.Classical == nil:
		return nil, fmt.Errorf("%w: %s classical half", ErrMissingKeyMaterial, h.alg)
	case len(key.PostQuantum) == 0:
		return nil, fmt.Errorf("%w: %s post-quantum half", ErrMissingKeyMaterial, h.alg)
	}
	cs, err := h.registry.Lookup(h.classical)
	if err != nil {
		return nil, err
	}
	ps, err := h.registry.Lookup(h.postQuantum)
	if err != nil {
		return nil, err
	}
	classical, err := cs.Sign(message, PrivateKey{Classical: key.Classical})
	if err != nil {
		return nil, err
	}
	postQuantum, err := ps.Sign(message, PrivateKey{PostQuantum: key.PostQuantum})
	if err != nil {
		return nil, err
	}
	return EncodeHybrid(classical, postQuantum), nil
}

func (h *Hybrid) Verify(message, signature []byte, key PublicKey) bool {
	classical, postQuantum, ok := SplitHybrid(signature)
	if !ok {
		return false
	}
	cs, err := h.registry.Lookup(h.classical)
	if err != nil {
		return false
	}
	ps, err := h.registry.Lookup(h.postQuantum)
	if err != nil {
		return false
	}
	classicalOK := cs.Verify(message, classical, PublicKey{Classical: key.Classical})
	postQuantumOK := ps.Verify(message, postQuantum, PublicKey{PostQuantum: key.PostQuantum})
	return classicalOK && postQuantumOK
}

// EncodeHybrid lays out [len(classical) as uint32 BE][classical][postQuantum].
func EncodeHybrid(classical, postQuantum []byte) []byte {
	out := make([]byte, hybridPrefixLen+len(classical)+len(postQuantum))
	binary.BigEndian.PutUint32(out, uint32(len(classical)))
	copy(out[hybridPrefixLen:], classical)
	copy(out[hybridPrefixLen+len(classical):], postQuantum)
	return out
}

// SplitHybrid reverses EncodeHybrid. It fails on a short buffer, a prefix
// longer than the remaining bytes, or an empty half.
func SplitHybrid(sig []byte) (classical, postQuantum []byte, ok bool) {
	if len(sig) < hybridPrefixLen {
		return nil, nil, false
	}
	n := uint64(binary.BigEndian.Uint32(sig))
	rest := sig[hybridPrefixLen:]
	if n == 0 || n >= uint64(len(rest)) {
		return nil, nil, false
	}
	return rest[:n], rest[n:], true
}
