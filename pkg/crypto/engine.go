package crypto

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/observability"
)

// Signer seals claims with a fixed algorithm and key.
type Signer struct {
	alg      manifest.Algorithm
	key      PrivateKey
	chain    []string
	tsa      string
	registry *Registry
	now      func() time.Time
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithCertificateChain sets the credential blobs embedded in signatures.
func WithCertificateChain(chain ...string) SignerOption {
	return func(s *Signer) { s.chain = append([]string(nil), chain...) }
}

// WithTSA records a trusted timestamp authority identifier.
func WithTSA(tsa string) SignerOption { return func(s *Signer) { s.tsa = tsa } }

func WithRegistry(r *Registry) SignerOption { return func(s *Signer) { s.registry = r } }

func WithSignerClock(now func() time.Time) SignerOption { return func(s *Signer) { s.now = now } }

func WithSignerLogger(l *slog.Logger) SignerOption { return func(s *Signer) { s.logger = l } }

func WithSignerMetrics(m *observability.Metrics) SignerOption {
	return func(s *Signer) { s.metrics = m }
}

// NewSigner resolves alg against the registry. Key material is checked at
// signing time.
func NewSigner(alg manifest.Algorithm, key PrivateKey, opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		alg:    alg,
		key:    key,
		now:    time.Now,
		logger: slog.Default().With("component", "signer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		r, err := DefaultRegistry()
		if err != nil {
			return nil, err
		}
		s.registry = r
	}
	if _, err := s.registry.Lookup(alg); err != nil {
		return nil, err
	}
	return s, nil
}

// Algorithm returns the configured tag.
func (s *Signer) Algorithm() manifest.Algorithm { return s.alg }

// Sign computes the signature over the canonical bytes of c and attaches it,
// replacing any previous signature.
func (s *Signer) Sign(ctx context.Context, c *manifest.Claim) (err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "crypto.sign",
		attribute.String("algorithm", string(s.alg)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.RecordSignature(ctx, string(s.alg), err, time.Since(start))
	}()

	if c == nil {
		return fmt.Errorf("%w: nil claim", manifest.ErrInvalidClaim)
	}
	if s.key.Empty() {
		return fmt.Errorf("%w: %s", ErrMissingKeyMaterial, s.alg)
	}
	scheme, err := s.registry.Lookup(s.alg)
	if err != nil {
		return err
	}
	msg, err := canonicalize.Claim(c)
	if err != nil {
		return fmt.Errorf("crypto: canonicalize claim: %w", err)
	}
	value, err := scheme.Sign(msg, s.key)
	if err != nil {
		return err
	}
	c.Signature = &manifest.Signature{
		Algorithm:        s.alg,
		CertificateChain: append([]string(nil), s.chain...),
		Timestamp:        s.now().UTC(),
		TSA:              s.tsa,
		Value:            value,
	}
	s.logger.DebugContext(ctx, "claim signed",
		"instance_id", c.InstanceID,
		"algorithm", s.alg,
		"signature_bytes", len(value),
	)
	return nil
}

// Verifier checks claim signatures.
type Verifier struct {
	registry *Registry
	key      *PublicKey
	logger   *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

func WithVerifierRegistry(r *Registry) VerifierOption {
	return func(v *Verifier) { v.registry = r }
}

// WithPublicKey pins the verification key instead of resolving it from the
// signature's certificate chain.
func WithPublicKey(k PublicKey) VerifierOption {
	return func(v *Verifier) { v.key = &k }
}

func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = l }
}

func NewVerifier(opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{logger: slog.Default().With("component", "verifier")}
	for _, opt := range opts {
		opt(v)
	}
	if v.registry == nil {
		r, err := DefaultRegistry()
		if err != nil {
			return nil, err
		}
		v.registry = r
	}
	return v, nil
}

// Verify reports whether c carries a valid signature. It never panics on
// malformed input and returns false for unsigned claims.
func (v *Verifier) Verify(ctx context.Context, c *manifest.Claim) bool {
	return v.Check(ctx, c) == nil
}

// Check is Verify with the reason for failure.
func (v *Verifier) Check(ctx context.Context, c *manifest.Claim) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidSignature, r)
		}
	}()
	if c == nil || c.Signature == nil || len(c.Signature.Value) == 0 {
		return ErrNoSignature
	}
	sig := c.Signature
	scheme, err := v.registry.Lookup(sig.Algorithm)
	if err != nil {
		return err
	}
	key, err := v.publicKey(sig)
	if err != nil {
		return err
	}
	msg, err := canonicalize.Claim(c)
	if err != nil {
		return fmt.Errorf("crypto: canonicalize claim: %w", err)
	}
	if !scheme.Verify(msg, sig.Value, key) {
		v.logger.DebugContext(ctx, "signature rejected", "instance_id", c.InstanceID, "algorithm", sig.Algorithm)
		return fmt.Errorf("%w: %s", ErrInvalidSignature, sig.Algorithm)
	}
	return nil
}

func (v *Verifier) publicKey(sig *manifest.Signature) (PublicKey, error) {
	if v.key != nil {
		return *v.key, nil
	}
	return PublicKeyFromChain(sig.CertificateChain)
}
