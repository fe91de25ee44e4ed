package pqc

import (
	"fmt"
	"time"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// MLDSA is a FIPS 204 primitive. Signing uses the deterministic variant.
type MLDSA struct {
	scheme sign.Scheme
}

func mldsaScheme(alg manifest.Algorithm) (sign.Scheme, error) {
	switch alg {
	case manifest.AlgMLDSA44:
		return mldsa44.Scheme(), nil
	case manifest.AlgMLDSA65:
		return mldsa65.Scheme(), nil
	case manifest.AlgMLDSA87:
		return mldsa87.Scheme(), nil
	default:
		return nil, fmt.Errorf("%w: %s is not ml-dsa", ErrUnknownParameterSet, alg)
	}
}

// NewMLDSA returns the primitive for an ML-DSA tag.
func NewMLDSA(alg manifest.Algorithm) (*MLDSA, error) {
	s, err := mldsaScheme(alg)
	if err != nil {
		return nil, err
	}
	return &MLDSA{scheme: s}, nil
}

func (m *MLDSA) Sign(message, privateKey []byte) ([]byte, error) {
	sk, err := m.scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return m.scheme.Sign(sk, message, nil), nil
}

func (m *MLDSA) Verify(message, signature, publicKey []byte) bool {
	pk, err := m.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false
	}
	return m.scheme.Verify(pk, message, signature, nil)
}

// PublicKeyOf derives the public key bytes from a packed private key.
func (m *MLDSA) PublicKeyOf(privateKey []byte) ([]byte, error) {
	sk, err := m.scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return sk.Public().(sign.PublicKey).MarshalBinary()
}

// GenerateKey creates a fresh ML-DSA key pair.
func GenerateKey(alg manifest.Algorithm) (*KeyPair, error) {
	s, err := mldsaScheme(alg)
	if err != nil {
		return nil, err
	}
	pk, sk, err := s.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%s keygen failed: %w", alg, err)
	}
	pub, err := pk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	priv, err := sk.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PublicKey:  pub,
		PrivateKey: priv,
		Algorithm:  alg,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
