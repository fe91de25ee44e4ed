// Package attest issues signed verification receipts: compact JWTs that bind
// a trust report outcome to the manifest it was computed for.
package attest

import (
	gocrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/trust"
)

const (
	DefaultIssuer   = "openmediatrust/verifier"
	receiptAudience = "openmediatrust.receipt"
)

var (
	ErrUnsupportedKey = errors.New("attest: unsupported signing key")
	ErrInvalidReceipt = errors.New("attest: invalid receipt")
)

// Receipt is the claim set carried by a verification receipt.
type Receipt struct {
	jwt.RegisteredClaims
	ManifestID         string      `json:"manifest_id"`
	TrustLevel         trust.Level `json:"trust_level"`
	Valid              bool        `json:"valid"`
	SignatureValid     bool        `json:"signature_valid"`
	CertificateTrusted bool        `json:"certificate_trusted"`
	ReportHash         string      `json:"report_hash"`
	VerifiedAt         time.Time   `json:"verified_at"`
}

// Issuer signs receipts with a single key.
type Issuer struct {
	key    gocrypto.Signer
	method jwt.SigningMethod
	name   string
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

func WithIssuerName(name string) IssuerOption { return func(i *Issuer) { i.name = name } }

func WithClock(now func() time.Time) IssuerOption { return func(i *Issuer) { i.now = now } }

// NewIssuer picks the JWT method from the key: PS256 for RSA, ES256/384/512
// for ECDSA by curve, EdDSA for Ed25519.
func NewIssuer(key gocrypto.Signer, opts ...IssuerOption) (*Issuer, error) {
	method, err := methodFor(key)
	if err != nil {
		return nil, err
	}
	i := &Issuer{key: key, method: method, name: DefaultIssuer, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func methodFor(key gocrypto.Signer) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodPS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jwt.SigningMethodES256, nil
		case elliptic.P384():
			return jwt.SigningMethodES384, nil
		case elliptic.P521():
			return jwt.SigningMethodES512, nil
		}
		return nil, fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// Issue signs a receipt for report valid for ttl.
func (i *Issuer) Issue(report *trust.Report, ttl time.Duration) (string, error) {
	if report == nil {
		return "", fmt.Errorf("%w: nil report", ErrInvalidReceipt)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidReceipt)
	}
	hash, err := canonicalize.CanonicalHash(report)
	if err != nil {
		return "", fmt.Errorf("attest: hash report: %w", err)
	}

	now := i.now().UTC()
	claims := Receipt{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   report.ManifestID,
			Audience:  jwt.ClaimStrings{receiptAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ManifestID:         report.ManifestID,
		TrustLevel:         report.TrustLevel,
		Valid:              report.Valid,
		SignatureValid:     report.SignatureValid,
		CertificateTrusted: report.CertificateTrusted,
		ReportHash:         hash,
		VerifiedAt:         report.VerifiedAt,
	}
	return jwt.NewWithClaims(i.method, claims).SignedString(i.key)
}

// Issue signs a receipt with a one-off issuer.
func Issue(report *trust.Report, key gocrypto.Signer, ttl time.Duration) (string, error) {
	i, err := NewIssuer(key)
	if err != nil {
		return "", err
	}
	return i.Issue(report, ttl)
}

// Parse verifies token against pub and returns its claims. The signing
// method must match the key type.
func Parse(token string, pub gocrypto.PublicKey, opts ...jwt.ParserOption) (*Receipt, error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		if !methodMatches(t.Method, pub) {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	}
	opts = append([]jwt.ParserOption{jwt.WithAudience(receiptAudience), jwt.WithExpirationRequired()}, opts...)

	parsed, err := jwt.ParseWithClaims(token, &Receipt{}, keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	claims, ok := parsed.Claims.(*Receipt)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidReceipt, jwt.ErrTokenSignatureInvalid)
	}
	return claims, nil
}

// Matches reports whether the receipt was issued for report.
func (r *Receipt) Matches(report *trust.Report) bool {
	if report == nil {
		return false
	}
	hash, err := canonicalize.CanonicalHash(report)
	return err == nil && hash == r.ReportHash
}

func methodMatches(m jwt.SigningMethod, pub gocrypto.PublicKey) bool {
	switch pub.(type) {
	case *rsa.PublicKey:
		_, ok := m.(*jwt.SigningMethodRSAPSS)
		return ok
	case *ecdsa.PublicKey:
		_, ok := m.(*jwt.SigningMethodECDSA)
		return ok
	case ed25519.PublicKey:
		_, ok := m.(*jwt.SigningMethodEd25519)
		return ok
	}
	return false
}
