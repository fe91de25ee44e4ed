package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func hashFor(alg manifest.Algorithm) (gocrypto.Hash, error) {
	switch alg {
	case manifest.AlgPS256, manifest.AlgES256:
		return gocrypto.SHA256, nil
	case manifest.AlgPS384, manifest.AlgES384:
		return gocrypto.SHA384, nil
	case manifest.AlgPS512, manifest.AlgES512:
		return gocrypto.SHA512, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(alg))
	}
}

func digest(h gocrypto.Hash, message []byte) []byte {
	hh := h.New()
	hh.Write(message)
	return hh.Sum(nil)
}

// classicalSigner returns the classical half of key, or the error that
// applies when it is absent.
func classicalSigner(alg manifest.Algorithm, key PrivateKey) (gocrypto.Signer, error) {
	if key.Classical != nil {
		return key.Classical, nil
	}
	if len(key.PostQuantum) > 0 {
		return nil, fmt.Errorf("%w: %s needs a classical key, post-quantum key loaded", ErrKeyMismatch, alg)
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingKeyMaterial, alg)
}

// RSAPSS signs with RSASSA-PSS, MGF1 over the same hash as the digest.
type RSAPSS struct {
	alg  manifest.Algorithm
	hash gocrypto.Hash
}

func NewRSAPSS(alg manifest.Algorithm) (*RSAPSS, error) {
	if !alg.IsRSA() {
		return nil, fmt.Errorf("%w: %q is not RSA-PSS", ErrUnsupportedAlgorithm, string(alg))
	}
	h, err := hashFor(alg)
	if err != nil {
		return nil, err
	}
	return &RSAPSS{alg: alg, hash: h}, nil
}

func (s *RSAPSS) Sign(message []byte, key PrivateKey) ([]byte, error) {
	signer, err := classicalSigner(s.alg, key)
	if err != nil {
		return nil, err
	}
	if _, ok := signer.Public().(*rsa.PublicKey); !ok {
		return nil, fmt.Errorf("%w: %s requires an RSA key, got %T", ErrKeyMismatch, s.alg, signer.Public())
	}
	return signer.Sign(rand.Reader, digest(s.hash, message), &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       s.hash,
	})
}

func (s *RSAPSS) Verify(message, signature []byte, key PublicKey) bool {
	pub, ok := key.Classical.(*rsa.PublicKey)
	if !ok || len(signature) != pub.Size() {
		return false
	}
	err := rsa.VerifyPSS(pub, s.hash, digest(s.hash, message), signature, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       s.hash,
	})
	return err == nil
}

// ECDSA signs with ASN.1 DER encoded ECDSA over the curve paired with the
// tag: P-256, P-384 or P-521.
type ECDSA struct {
	alg   manifest.Algorithm
	hash  gocrypto.Hash
	curve elliptic.Curve
}

func NewECDSA(alg manifest.Algorithm) (*ECDSA, error) {
	var curve elliptic.Curve
	switch alg {
	case manifest.AlgES256:
		curve = elliptic.P256()
	case manifest.AlgES384:
		curve = elliptic.P384()
	case manifest.AlgES512:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("%w: %q is not ECDSA", ErrUnsupportedAlgorithm, string(alg))
	}
	h, err := hashFor(alg)
	if err != nil {
		return nil, err
	}
	return &ECDSA{alg: alg, hash: h, curve: curve}, nil
}

func (s *ECDSA) Sign(message []byte, key PrivateKey) ([]byte, error) {
	signer, err := classicalSigner(s.alg, key)
	if err != nil {
		return nil, err
	}
	pub, ok := signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an ECDSA key, got %T", ErrKeyMismatch, s.alg, signer.Public())
	}
	if pub.Curve != s.curve {
		return nil, fmt.Errorf("%w: %s requires curve %s, got %s",
			ErrKeyMismatch, s.alg, s.curve.Params().Name, pub.Curve.Params().Name)
	}
	return signer.Sign(rand.Reader, digest(s.hash, message), s.hash)
}

func (s *ECDSA) Verify(message, signature []byte, key PublicKey) bool {
	pub, ok := key.Classical.(*ecdsa.PublicKey)
	if !ok || pub.Curve != s.curve {
		return false
	}
	return ecdsa.VerifyASN1(pub, digest(s.hash, message), signature)
}
