package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/observability"
)

// Evaluator runs the trust pipeline. It is read-only after construction and
// safe for concurrent use.
type Evaluator struct {
	store    TrustStore
	verifier *crypto.Verifier
	custody  []CustodyCheck
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTrustStore sets the trusted credential set. Without one every signed
// claim gets a NO_TRUSTED_CERTS warning.
func WithTrustStore(s TrustStore) Option { return func(e *Evaluator) { e.store = s } }

func WithVerifier(v *crypto.Verifier) Option { return func(e *Evaluator) { e.verifier = v } }

// WithCustodyChecks replaces the default chain-of-custody checks.
func WithCustodyChecks(checks ...CustodyCheck) Option {
	return func(e *Evaluator) { e.custody = append([]CustodyCheck(nil), checks...) }
}

func WithLogger(l *slog.Logger) Option { return func(e *Evaluator) { e.logger = l } }

func WithMetrics(m *observability.Metrics) Option { return func(e *Evaluator) { e.metrics = m } }

func WithClock(now func() time.Time) Option { return func(e *Evaluator) { e.now = now } }

// NewEvaluator builds an evaluator. The default custody check only requires
// an action history.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		custody: []CustodyCheck{ActionsPresent{}},
		logger:  slog.Default().With("component", "trust"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.verifier == nil {
		v, err := crypto.NewVerifier()
		if err != nil {
			return nil, err
		}
		e.verifier = v
	}
	return e, nil
}

// Evaluate runs every stage against c and derives the trust level. Stages
// never short-circuit. A claim is valid when structure, assertions and
// signature pass; strict additionally requires a trusted certificate and a
// complete chain of custody.
func (e *Evaluator) Evaluate(ctx context.Context, c *manifest.Claim, strict bool) *Report {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "trust.evaluate", attribute.Bool("strict", strict))
	defer span.End()

	r := &Report{
		Stages:     make([]StageResult, 0, 5),
		Assertions: []AssertionResult{},
		Issues:     []Issue{},
		Warnings:   []Issue{},
		VerifiedAt: e.now().UTC(),
		TrustLevel: LevelInvalid,
	}
	if c == nil {
		r.addError(CodeMissingClaim, "no claim to evaluate", "")
		for _, name := range []string{StageStructure, StageAssertions, StageSignature, StageCertificateTrust, StageChainOfCustody} {
			r.addStage(name, false)
		}
		e.finish(ctx, r, start)
		return r
	}
	r.ManifestID = c.InstanceID

	structureOK := e.checkStructure(c, r)
	r.addStage(StageStructure, structureOK)

	assertionsOK := e.checkAssertions(c, r)
	r.addStage(StageAssertions, assertionsOK)

	if c.Signature != nil {
		r.SignatureValid = e.checkSignature(ctx, c, r)
		r.CertificateTrusted = e.checkCertificate(c, r)
	} else {
		r.addError(CodeNoSignature, "claim is not signed", "signature")
	}
	r.addStage(StageSignature, r.SignatureValid)
	r.addStage(StageCertificateTrust, r.CertificateTrusted)

	r.ChainComplete = e.checkCustody(ctx, c, r)
	r.addStage(StageChainOfCustody, r.ChainComplete)

	r.TrustLevel = deriveLevel(r.SignatureValid, r.CertificateTrusted, r.ChainComplete, len(r.Issues))
	r.Valid = structureOK && assertionsOK && r.SignatureValid
	if strict {
		r.Valid = r.Valid && r.CertificateTrusted && r.ChainComplete
	}
	r.OrganizationalCompliance = organizationalCompliance(c)

	span.SetAttributes(
		attribute.String("trust_level", string(r.TrustLevel)),
		attribute.Bool("valid", r.Valid),
	)
	e.finish(ctx, r, start)
	return r
}

func (e *Evaluator) finish(ctx context.Context, r *Report, start time.Time) {
	e.metrics.RecordVerification(ctx, string(r.TrustLevel), r.Valid, time.Since(start))
	e.logger.InfoContext(ctx, "claim evaluated",
		"manifest_id", r.ManifestID,
		"trust_level", r.TrustLevel,
		"valid", r.Valid,
		"errors", len(r.Issues),
		"warnings", len(r.Warnings),
	)
}

func (e *Evaluator) checkStructure(c *manifest.Claim, r *Report) bool {
	ok := true
	if c.ClaimGenerator == "" {
		r.addError(CodeMissingClaimGenerator, "claim is missing claim_generator", "claim_generator")
		ok = false
	}
	if c.Format == "" {
		r.addError(CodeMissingFormat, "claim is missing format", "format")
		ok = false
	}
	if c.InstanceID == "" {
		r.addError(CodeMissingInstanceID, "claim is missing instance_id", "instance_id")
		ok = false
	} else if !manifest.HasRecognizedPrefix(c.InstanceID) {
		r.addWarning(CodeInvalidInstanceID,
			fmt.Sprintf("instance_id should start with %q or %q", manifest.PrefixXMP, manifest.PrefixUUID),
			"instance_id")
	}
	return ok
}

// checkAssertions requires a content hash and recommends an action history.
// Malformed hash assertions are errors; other malformed well-known
// assertions are warnings.
func (e *Evaluator) checkAssertions(c *manifest.Claim, r *Report) bool {
	ok := true
	if len(c.Assertions) == 0 {
		r.addWarning(CodeNoAssertions, "claim has no assertions", "assertions")
	}

	var hasHash, hasActions bool
	for i, a := range c.Assertions {
		if a == nil {
			continue
		}
		loc := fmt.Sprintf("assertions[%d]", i)
		res := AssertionResult{Label: a.Label, Verified: true}

		err := assertions.Validate(a)
		switch {
		case err != nil:
			res.Verified = false
			res.Message = err.Error()
			if a.Label == manifest.LabelHash {
				r.addError(CodeInvalidHashAssertion, err.Error(), loc)
				ok = false
			} else {
				r.addWarning(CodeInvalidAssertion, err.Error(), loc)
			}
		case assertions.HasShape(a.Label):
			res.Message = a.Label + " assertion valid"
		default:
			res.Message = "assertion present"
		}

		switch a.Label {
		case manifest.LabelHash:
			hasHash = true
		case manifest.LabelActions:
			hasActions = true
			if p, isActions := a.Data.(*manifest.ActionsPayload); isActions && res.Verified {
				res.Details = map[string]any{"action_count": len(p.Actions)}
			}
		}
		r.Assertions = append(r.Assertions, res)
	}

	if !hasActions {
		r.addWarning(CodeMissingActions, "recommended "+manifest.LabelActions+" assertion not found", "assertions")
	}
	if !hasHash {
		r.addError(CodeMissingHash, "required "+manifest.LabelHash+" assertion not found", "assertions")
		ok = false
	}
	return ok
}

func (e *Evaluator) checkSignature(ctx context.Context, c *manifest.Claim, r *Report) bool {
	err := e.verifier.Check(ctx, c)
	switch {
	case err == nil:
		return true
	case errors.Is(err, crypto.ErrInvalidSignature):
		r.addError(CodeInvalidSignature, "claim signature verification failed", "signature")
	default:
		r.addError(CodeSignatureError, "error verifying signature: "+err.Error(), "signature")
	}
	e.logger.DebugContext(ctx, "signature check failed", "manifest_id", c.InstanceID, "error", err)
	return false
}

// checkCertificate is a flat membership test against the trust store. Only
// the entries that carry verification keys count, so a trusted issuer
// appended after an untrusted leaf does not make the signer trusted.
// Failures are warnings.
func (e *Evaluator) checkCertificate(c *manifest.Claim, r *Report) bool {
	chain := c.Signature.CertificateChain
	if len(chain) == 0 {
		r.addWarning(CodeNoCertificateChain, "no certificate chain provided", "signature.certificate_chain")
		return false
	}
	if e.store == nil || e.store.Len() == 0 {
		r.addWarning(CodeNoTrustedCertificates, "no trusted certificates configured", "signature.certificate_chain")
		return false
	}
	for _, blob := range crypto.SigningEntries(chain) {
		if e.store.Trusted(blob) {
			return true
		}
	}
	r.addWarning(CodeUntrustedCertificate, "signing certificate not in trusted list", "signature.certificate_chain")
	return false
}

func (e *Evaluator) checkCustody(ctx context.Context, c *manifest.Claim, r *Report) bool {
	complete := true
	for _, check := range e.custody {
		if err := check.Check(ctx, c); err != nil {
			r.Warnings = append(r.Warnings, Issue{
				Severity: SeverityWarning,
				Code:     CodeCustodyIncomplete,
				Message:  err.Error(),
				Details:  map[string]any{"check": check.Name()},
			})
			complete = false
		}
	}
	return complete
}

// organizationalCompliance summarizes the workflow assertion. Claims
// without a readable workflow yield nil.
func organizationalCompliance(c *manifest.Claim) map[string]bool {
	w, err := c.Workflow()
	if err != nil {
		return nil
	}
	approved := false
	for _, step := range w.ApprovalChain {
		if step.Status == "approved" {
			approved = true
			break
		}
	}
	return map[string]bool{
		"pdpa_compliant":        w.ComplianceCheck.PDPAApproved,
		"trademark_cleared":     w.ComplianceCheck.TrademarkCleared,
		"legal_review_passed":   w.ComplianceCheck.LegalReview == "passed",
		"workflow_approved":     approved,
		"department_authorized": w.Department() != "",
	}
}
