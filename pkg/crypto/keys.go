package crypto

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// PEM block types.
const (
	CertificatePEMBlockType = "CERTIFICATE"
	pemPKCS1PrivateKey      = "RSA PRIVATE KEY"
	pemPKCS8PrivateKey      = "PRIVATE KEY"
	pemECPrivateKey         = "EC PRIVATE KEY"
	pemPQPrivateKey         = "PQ PRIVATE KEY"
	pemPQPublicKey          = "PQ PUBLIC KEY"
	pemAlgorithmHeader      = "Algorithm"
)

// PrivateKey is the key material a signer holds. Either half may be empty.
type PrivateKey struct {
	Classical   gocrypto.Signer
	PostQuantum []byte
}

// Empty reports whether no key material is loaded.
func (k PrivateKey) Empty() bool {
	return k.Classical == nil && len(k.PostQuantum) == 0
}

// PublicKey is the verification counterpart of PrivateKey.
type PublicKey struct {
	Classical   gocrypto.PublicKey
	PostQuantum []byte
}

// ParsePrivateKeyPEM returns the first RSA or ECDSA private key found in
// concatenated PEM data. PKCS#1, PKCS#8 and SEC 1 containers are accepted.
func ParsePrivateKeyPEM(data []byte) (gocrypto.Signer, error) {
	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case pemPKCS1PrivateKey:
			if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
				return k, nil
			}
		case pemECPrivateKey:
			if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
				return k, nil
			}
		case pemPKCS8PrivateKey:
			if anyKey, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
				switch k := anyKey.(type) {
				case *rsa.PrivateKey:
					return k, nil
				case *ecdsa.PrivateKey:
					return k, nil
				}
			}
		}
		data = rest
	}
	return nil, errors.New("crypto: no RSA or ECDSA private key in PEM data")
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(key gocrypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPKCS8PrivateKey, Bytes: der}), nil
}

// EncodePostQuantumPEM wraps opaque post-quantum key bytes in a PEM block
// whose Algorithm header names the parameter set.
func EncodePostQuantumPEM(alg manifest.Algorithm, raw []byte, private bool) []byte {
	typ := pemPQPublicKey
	if private {
		typ = pemPQPrivateKey
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:    typ,
		Headers: map[string]string{pemAlgorithmHeader: string(alg)},
		Bytes:   raw,
	})
}

// ParsePostQuantumPEM returns the first post-quantum key block in data.
func ParsePostQuantumPEM(data []byte) (alg manifest.Algorithm, raw []byte, private bool, err error) {
	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == pemPQPrivateKey || block.Type == pemPQPublicKey {
			alg = manifest.Algorithm(block.Headers[pemAlgorithmHeader])
			if alg.Family() != manifest.FamilyPostQuantum {
				return "", nil, false, fmt.Errorf("%w: PEM header names %q", ErrKeyMismatch, alg)
			}
			return alg, block.Bytes, block.Type == pemPQPrivateKey, nil
		}
		data = rest
	}
	return "", nil, false, errors.New("crypto: no post-quantum key in PEM data")
}

// ParseCertificateChainPEM parses consecutive CERTIFICATE blocks in order.
func ParseCertificateChainPEM(data []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	for len(data) > 0 {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != CertificatePEMBlockType {
			if len(chain) == 0 {
				return nil, fmt.Errorf("unexpected pem block type for certificate: %q", block.Type)
			}
			break
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
		data = rest
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("invalid certificate format (expected %q PEM block)", CertificatePEMBlockType)
	}
	return chain, nil
}

// EncodeCertificatePEM returns the PEM text of cert.
func EncodeCertificatePEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: CertificatePEMBlockType, Bytes: cert.Raw}))
}

// CertificateChain builds the chain carried in a signature: one PEM entry
// per certificate, then the base64 post-quantum public key if present.
func CertificateChain(certs []*x509.Certificate, pqPublicKey []byte) []string {
	out := make([]string, 0, len(certs)+1)
	for _, c := range certs {
		out = append(out, EncodeCertificatePEM(c))
	}
	if len(pqPublicKey) > 0 {
		out = append(out, base64.StdEncoding.EncodeToString(pqPublicKey))
	}
	return out
}

// SigningEntries returns the chain entries that carry verification keys,
// in chain order: the first PEM certificate and the first non-PEM entry.
// Later entries are issuers or padding and never verify a signature.
func SigningEntries(chain []string) []string {
	var (
		out              []string
		havePEM, haveRaw bool
	)
	for _, entry := range chain {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-----BEGIN") {
			if havePEM {
				continue
			}
			havePEM = true
		} else {
			if haveRaw {
				continue
			}
			haveRaw = true
		}
		out = append(out, trimmed)
	}
	return out
}

// PublicKeyFromChain resolves verification keys from a signature chain. The
// first PEM certificate supplies the classical key and the first non-PEM
// entry is decoded as the base64 post-quantum key.
func PublicKeyFromChain(chain []string) (PublicKey, error) {
	var pk PublicKey
	for _, entry := range SigningEntries(chain) {
		if strings.HasPrefix(entry, "-----BEGIN") {
			certs, err := ParseCertificateChainPEM([]byte(entry))
			if err != nil {
				return PublicKey{}, fmt.Errorf("crypto: certificate chain entry: %w", err)
			}
			pk.Classical = certs[0].PublicKey
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return PublicKey{}, fmt.Errorf("crypto: post-quantum chain entry: %w", err)
		}
		pk.PostQuantum = raw
	}
	if pk.Classical == nil && len(pk.PostQuantum) == 0 {
		return PublicKey{}, ErrNoPublicKey
	}
	return pk, nil
}

// GenerateRSAKey creates an RSA key of the given size in bits.
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("crypto: RSA key size %d below 2048", bits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// GenerateECDSAKey creates a key on the curve matching an ECDSA tag size
// (256, 384 or 521).
func GenerateECDSAKey(size int) (*ecdsa.PrivateKey, error) {
	var curve elliptic.Curve
	switch size {
	case 256:
		curve = elliptic.P256()
	case 384:
		curve = elliptic.P384()
	case 521:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("crypto: unsupported curve size %d", size)
	}
	return ecdsa.GenerateKey(curve, rand.Reader)
}

// SelfSignedCertificate issues a self-signed certificate for key.
func SelfSignedCertificate(key gocrypto.Signer, commonName, organization string, validity time.Duration) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("crypto: serial: %w", err)
	}
	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{organization},
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}
