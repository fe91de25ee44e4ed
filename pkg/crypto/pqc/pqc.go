// Package pqc defines how post-quantum signature primitives plug into the
// signing engine: the calling contract, the parameter sets and their
// signature size classes, and an ML-DSA primitive backed by circl.
package pqc

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var (
	ErrUnknownParameterSet = errors.New("pqc: unknown parameter set")
	ErrSignatureSize       = errors.New("pqc: signature size does not match parameter set")
	ErrInvalidKey          = errors.New("pqc: invalid key material")
)

// Primitive is a post-quantum signature capability. Key material is opaque.
// Sign must be a deterministic function of the message and private key.
type Primitive interface {
	Sign(message, privateKey []byte) ([]byte, error)
	Verify(message, signature, publicKey []byte) bool
}

// ParameterSet describes one strength of a post-quantum family.
type ParameterSet struct {
	Algorithm     manifest.Algorithm
	Family        string
	SignatureSize int
}

// Parameter set families.
const (
	FamilyMLDSA  = "ml-dsa"
	FamilySLHDSA = "slh-dsa"
)

// Signature size classes (FIPS 204, FIPS 205).
const (
	MLDSA44SignatureSize        = 2420
	MLDSA65SignatureSize        = 3309
	MLDSA87SignatureSize        = 4627
	SLHDSASHA2128sSignatureSize = 7856
	SLHDSASHA2256sSignatureSize = 29792
)

var parameterSets = map[manifest.Algorithm]ParameterSet{
	manifest.AlgMLDSA44:        {manifest.AlgMLDSA44, FamilyMLDSA, MLDSA44SignatureSize},
	manifest.AlgMLDSA65:        {manifest.AlgMLDSA65, FamilyMLDSA, MLDSA65SignatureSize},
	manifest.AlgMLDSA87:        {manifest.AlgMLDSA87, FamilyMLDSA, MLDSA87SignatureSize},
	manifest.AlgSLHDSASHA2128s: {manifest.AlgSLHDSASHA2128s, FamilySLHDSA, SLHDSASHA2128sSignatureSize},
	manifest.AlgSLHDSASHA2256s: {manifest.AlgSLHDSASHA2256s, FamilySLHDSA, SLHDSASHA2256sSignatureSize},
}

// Lookup returns the parameter set for a post-quantum tag.
func Lookup(alg manifest.Algorithm) (ParameterSet, error) {
	ps, ok := parameterSets[alg]
	if !ok {
		return ParameterSet{}, fmt.Errorf("%w: %s", ErrUnknownParameterSet, alg)
	}
	return ps, nil
}

// ParameterSets lists every known set.
func ParameterSets() []ParameterSet {
	out := make([]ParameterSet, 0, len(parameterSets))
	for _, alg := range []manifest.Algorithm{
		manifest.AlgMLDSA44, manifest.AlgMLDSA65, manifest.AlgMLDSA87,
		manifest.AlgSLHDSASHA2128s, manifest.AlgSLHDSASHA2256s,
	} {
		out = append(out, parameterSets[alg])
	}
	return out
}

// Scheme binds a primitive to a parameter set and enforces its size class.
type Scheme struct {
	Params    ParameterSet
	primitive Primitive
}

func NewScheme(alg manifest.Algorithm, p Primitive) (*Scheme, error) {
	ps, err := Lookup(alg)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pqc: nil primitive for %s", alg)
	}
	return &Scheme{Params: ps, primitive: p}, nil
}

// Sign signs message and checks the result against the size class.
func (s *Scheme) Sign(message, privateKey []byte) ([]byte, error) {
	if len(privateKey) == 0 {
		return nil, fmt.Errorf("%w: empty private key", ErrInvalidKey)
	}
	sig, err := s.primitive.Sign(message, privateKey)
	if err != nil {
		return nil, err
	}
	if len(sig) != s.Params.SignatureSize {
		return nil, fmt.Errorf("%w: %s produced %d bytes, want %d",
			ErrSignatureSize, s.Params.Algorithm, len(sig), s.Params.SignatureSize)
	}
	return sig, nil
}

// Verify rejects signatures outside the size class before calling the
// primitive.
func (s *Scheme) Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) == 0 || len(signature) != s.Params.SignatureSize {
		return false
	}
	return s.primitive.Verify(message, signature, publicKey)
}

// KeyPair is opaque post-quantum key material.
type KeyPair struct {
	PublicKey  []byte             `json:"public_key"`
	PrivateKey []byte             `json:"private_key"`
	Algorithm  manifest.Algorithm `json:"algorithm"`
	CreatedAt  time.Time          `json:"created_at"`
}
