// Package compliance checks claims against enterprise compliance policies
// (PDPA consent, trademark clearance, legal review and the like) recorded in
// the workflow assertion.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var ErrPolicyNotFound = errors.New("compliance: policy not found")

// Status of a check or report.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusPending Status = "pending"
)

// Rule names a compliance check.
type Rule string

const (
	RulePDPAConsent         Rule = "pdpa_consent"
	RuleTrademarkClearance  Rule = "trademark_clearance"
	RuleLegalReview         Rule = "legal_review"
	RuleExportControl       Rule = "export_control"
	RuleClassificationValid Rule = "classification_valid"
	RuleRetentionPolicy     Rule = "retention_policy"
	RulePIIRedaction        Rule = "pii_redaction"
	RuleCopyrightValid      Rule = "copyright_valid"
)

// CheckResult is the outcome of one rule.
type CheckResult struct {
	Rule      Rule           `json:"rule"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	CheckedAt time.Time      `json:"checked_at"`
	CheckedBy string         `json:"checked_by,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Policy lists the rules required for a class of content.
type Policy struct {
	Name                string                  `json:"name"`
	Description         string                  `json:"description"`
	Rules               []Rule                  `json:"rules"`
	Classification      manifest.Classification `json:"classification_level,omitempty"`
	Department          string                  `json:"department,omitempty"`
	RequiredForApproval bool                    `json:"required_for_approval"`
}

// Report aggregates the results of a policy run.
type Report struct {
	ManifestID    string        `json:"manifest_id"`
	PolicyName    string        `json:"policy_name"`
	OverallStatus Status        `json:"overall_status"`
	Results       []CheckResult `json:"results"`
	GeneratedAt   time.Time     `json:"generated_at"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
}

// Check evaluates one rule. It must not modify the claim.
type Check func(c *manifest.Claim) (Status, string)

// Engine runs compliance policies and keeps the latest report per claim.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy
	checks   map[Rule]Check
	reports  map[string]*Report

	reportTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithReportTTL sets the expiry stamped on reports. Zero means none.
func WithReportTTL(d time.Duration) Option { return func(e *Engine) { e.reportTTL = d } }

// NewEngine returns an engine with the default policies and checks.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies: make(map[string]Policy),
		checks:   defaultChecks(),
		reports:  make(map[string]*Report),
		logger:   slog.Default().With("component", "compliance"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range DefaultPolicies() {
		e.policies[p.Name] = p
	}
	return e
}

// DefaultPolicies are the policies every engine starts with.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Name:                "public_content",
			Description:         "Policy for public-facing content",
			Rules:               []Rule{RuleTrademarkClearance, RuleCopyrightValid, RuleLegalReview},
			Classification:      manifest.ClassificationPublic,
			RequiredForApproval: true,
		},
		{
			Name:                "internal_content",
			Description:         "Policy for internal content",
			Rules:               []Rule{RuleClassificationValid, RuleRetentionPolicy},
			Classification:      manifest.ClassificationInternal,
			RequiredForApproval: true,
		},
		{
			Name:        "confidential_content",
			Description: "Policy for confidential content",
			Rules: []Rule{
				RuleClassificationValid,
				RuleExportControl,
				RulePIIRedaction,
				RuleRetentionPolicy,
				RuleLegalReview,
			},
			Classification:      manifest.ClassificationConfidential,
			RequiredForApproval: true,
		},
		{
			Name:                "pdpa_compliance",
			Description:         "PDPA (Personal Data Protection Act) compliance",
			Rules:               []Rule{RulePDPAConsent, RulePIIRedaction},
			RequiredForApproval: true,
		},
	}
}

// AddPolicy installs or replaces a policy.
func (e *Engine) AddPolicy(p Policy) error {
	if p.Name == "" {
		return errors.New("compliance: policy name is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = p
	return nil
}

// SetCheck replaces the implementation of rule.
func (e *Engine) SetCheck(rule Rule, fn Check) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checks[rule] = fn
}

// Policies lists policy names in sorted order.
func (e *Engine) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.policies))
	for n := range e.policies {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// PolicyFor picks the default policy matching a classification.
func PolicyFor(class manifest.Classification) string {
	switch class {
	case manifest.ClassificationPublic:
		return "public_content"
	case manifest.ClassificationInternal:
		return "internal_content"
	default:
		return "confidential_content"
	}
}

// CheckCompliance runs the named policy against c. The overall status is
// failed if any rule failed, otherwise warning if any rule warned or is
// pending, otherwise passed.
func (e *Engine) CheckCompliance(ctx context.Context, c *manifest.Claim, policyName, checkedBy string) (*Report, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil claim", manifest.ErrInvalidClaim)
	}
	e.mu.RLock()
	p, ok := e.policies[policyName]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policyName)
	}

	now := e.now().UTC()
	report := &Report{
		ManifestID:    c.InstanceID,
		PolicyName:    p.Name,
		OverallStatus: StatusPassed,
		Results:       make([]CheckResult, 0, len(p.Rules)),
		GeneratedAt:   now,
	}
	if e.reportTTL > 0 {
		exp := now.Add(e.reportTTL)
		report.ExpiresAt = &exp
	}

	for _, rule := range p.Rules {
		res := e.runCheck(c, rule)
		res.CheckedAt = now
		res.CheckedBy = checkedBy
		report.Results = append(report.Results, res)

		switch res.Status {
		case StatusFailed:
			report.OverallStatus = StatusFailed
		case StatusWarning, StatusPending:
			if report.OverallStatus == StatusPassed {
				report.OverallStatus = StatusWarning
			}
		}
	}

	e.mu.Lock()
	e.reports[c.InstanceID] = report
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "compliance checked",
		"manifest_id", c.InstanceID,
		"policy", p.Name,
		"status", report.OverallStatus,
	)
	return report, nil
}

// runCheck runs one rule. A panicking check fails the rule.
func (e *Engine) runCheck(c *manifest.Claim, rule Rule) (res CheckResult) {
	e.mu.RLock()
	fn, ok := e.checks[rule]
	e.mu.RUnlock()
	if !ok {
		return CheckResult{Rule: rule, Status: StatusWarning, Message: fmt.Sprintf("rule %s not implemented", rule)}
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("compliance check panicked", "rule", rule, "manifest_id", c.InstanceID, "panic", rec)
			res = CheckResult{Rule: rule, Status: StatusFailed, Message: fmt.Sprintf("check error: %v", rec)}
		}
	}()
	status, msg := fn(c)
	return CheckResult{Rule: rule, Status: status, Message: msg}
}

// Report returns the latest report for a manifest, if any.
func (e *Engine) Report(manifestID string) (*Report, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.reports[manifestID]
	return r, ok
}
