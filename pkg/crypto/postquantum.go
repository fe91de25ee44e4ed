package crypto

import (
	"errors"
	"fmt"

	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto/pqc"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// PostQuantum adapts a pqc.Scheme to the registry contract.
type PostQuantum struct {
	scheme *pqc.Scheme
}

func NewPostQuantum(alg manifest.Algorithm, p pqc.Primitive) (*PostQuantum, error) {
	s, err := pqc.NewScheme(alg, p)
	if err != nil {
		return nil, err
	}
	return &PostQuantum{scheme: s}, nil
}

func (s *PostQuantum) Sign(message []byte, key PrivateKey) ([]byte, error) {
	alg := s.scheme.Params.Algorithm
	if len(key.PostQuantum) == 0 {
		if key.Classical != nil {
			return nil, fmt.Errorf("%w: %s needs a post-quantum key, classical key loaded", ErrKeyMismatch, alg)
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingKeyMaterial, alg)
	}
	sig, err := s.scheme.Sign(message, key.PostQuantum)
	if errors.Is(err, pqc.ErrInvalidKey) {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeyMismatch, alg, err)
	}
	return sig, err
}

func (s *PostQuantum) Verify(message, signature []byte, key PublicKey) bool {
	return s.scheme.Verify(message, signature, key.PostQuantum)
}
