// Package trust evaluates signed claims and derives a trust level from the
// outcome of five independent checks: structure, assertions, signature,
// certificate trust and chain of custody.
package trust

import (
	"time"
)

// Level is the trust outcome of an evaluation.
type Level string

const (
	LevelInvalid    Level = "invalid"
	LevelBasic      Level = "basic"
	LevelStandard   Level = "standard"
	LevelEnterprise Level = "enterprise"
)

var levelRank = map[Level]int{
	LevelInvalid:    0,
	LevelBasic:      1,
	LevelStandard:   2,
	LevelEnterprise: 3,
}

// Rank orders levels from invalid (0) to enterprise (3).
func (l Level) Rank() int { return levelRank[l] }

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes. They are stable identifiers and appear in reports verbatim.
const (
	CodeMissingClaim          = "MISSING_CLAIM"
	CodeMissingClaimGenerator = "MISSING_CLAIM_GENERATOR"
	CodeMissingFormat         = "MISSING_FORMAT"
	CodeMissingInstanceID     = "MISSING_INSTANCE_ID"
	CodeInvalidInstanceID     = "INVALID_INSTANCE_ID_FORMAT"
	CodeNoAssertions          = "NO_ASSERTIONS"
	CodeMissingActions        = "MISSING_ACTIONS_ASSERTION"
	CodeMissingHash           = "MISSING_HASH_ASSERTION"
	CodeInvalidHashAssertion  = "INVALID_HASH_ASSERTION"
	CodeInvalidAssertion      = "INVALID_ASSERTION"
	CodeNoSignature           = "NO_SIGNATURE"
	CodeInvalidSignature      = "INVALID_SIGNATURE"
	CodeSignatureError        = "SIGNATURE_VERIFICATION_ERROR"
	CodeNoCertificateChain    = "NO_CERTIFICATE_CHAIN"
	CodeNoTrustedCertificates = "NO_TRUSTED_CERTS"
	CodeUntrustedCertificate  = "UNTRUSTED_CERTIFICATE"
	CodeCustodyIncomplete     = "CUSTODY_INCOMPLETE"
)

// Stage names, in evaluation order.
const (
	StageStructure        = "structure"
	StageAssertions       = "assertions"
	StageSignature        = "signature"
	StageCertificateTrust = "certificate_trust"
	StageChainOfCustody   = "chain_of_custody"
)

// Issue is one finding of an evaluation stage.
type Issue struct {
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Location string         `json:"location,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// AssertionResult is the shape check outcome for one assertion.
type AssertionResult struct {
	Label    string         `json:"label"`
	Verified bool           `json:"verified"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// StageResult records whether a stage passed.
type StageResult struct {
	Name string `json:"name"`
	Pass bool   `json:"pass"`
}

// Report is the full outcome of Evaluate. Errors land in Issues and
// warnings in Warnings; every stage always runs.
type Report struct {
	Valid              bool              `json:"valid"`
	TrustLevel         Level             `json:"trust_level"`
	SignatureValid     bool              `json:"signature_valid"`
	CertificateTrusted bool              `json:"certificate_trusted"`
	ChainComplete      bool              `json:"chain_complete"`
	Stages             []StageResult     `json:"stages"`
	Assertions         []AssertionResult `json:"assertions_verified"`
	Issues             []Issue           `json:"issues"`
	Warnings           []Issue           `json:"warnings"`
	VerifiedAt         time.Time         `json:"verified_at"`
	ManifestID         string            `json:"manifest_id"`

	OrganizationalCompliance map[string]bool `json:"organizational_compliance,omitempty"`
}

// Stage returns the result of the named stage.
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// HasCode reports whether an issue or warning carries code.
func (r *Report) HasCode(code string) bool {
	for _, list := range [][]Issue{r.Issues, r.Warnings} {
		for _, is := range list {
			if is.Code == code {
				return true
			}
		}
	}
	return false
}

func (r *Report) addError(code, message, location string) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityError, Code: code, Message: message, Location: location})
}

func (r *Report) addWarning(code, message, location string) {
	r.Warnings = append(r.Warnings, Issue{Severity: SeverityWarning, Code: code, Message: message, Location: location})
}

func (r *Report) addStage(name string, pass bool) {
	r.Stages = append(r.Stages, StageResult{Name: name, Pass: pass})
}

// deriveLevel maps stage outcomes to a trust level. Any recorded error
// forces LevelInvalid.
func deriveLevel(signatureValid, certificateTrusted, chainComplete bool, errorCount int) Level {
	switch {
	case !signatureValid || errorCount > 0:
		return LevelInvalid
	case certificateTrusted && chainComplete:
		return LevelEnterprise
	case certificateTrusted:
		return LevelStandard
	default:
		return LevelBasic
	}
}
