package policy

import (
	"time"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// RuleType selects how a rule is evaluated.
type RuleType string

const (
	RuleRequiredAssertion        RuleType = "required_assertion"
	RuleForbiddenAssertion       RuleType = "forbidden_assertion"
	RuleRequiredField            RuleType = "required_field"
	RuleValueConstraint          RuleType = "value_constraint"
	RuleClassificationConstraint RuleType = "classification_constraint"
	RuleCustomFunction           RuleType = "custom_function"
)

// Severity of a violation. Only SeverityError fails a policy.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) valid() bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

// Rule is one declarative constraint. Which parameters apply depends on
// Type.
type Rule struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type        RuleType `json:"rule_type" yaml:"rule_type"`
	Severity    Severity `json:"severity" yaml:"severity"`
	// Enabled defaults to true when unset.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	AssertionLabel       string                    `json:"assertion_label,omitempty" yaml:"assertion_label,omitempty"`
	FieldPath            string                    `json:"field_path,omitempty" yaml:"field_path,omitempty"`
	AllowedValues        []any                     `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	MinValue             *float64                  `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue             *float64                  `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	ClassificationLevels []manifest.Classification `json:"classification_levels,omitempty" yaml:"classification_levels,omitempty"`
	CustomFunction       string                    `json:"custom_function,omitempty" yaml:"custom_function,omitempty"`
}

// Active reports whether the rule takes part in evaluation.
func (r Rule) Active() bool {
	return r.Enabled == nil || *r.Enabled
}

// Policy is a named, versioned set of rules.
type Policy struct {
	Name           string                  `json:"name" yaml:"name"`
	Description    string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Version        string                  `json:"version" yaml:"version"`
	Department     string                  `json:"department,omitempty" yaml:"department,omitempty"`
	Classification manifest.Classification `json:"classification_level,omitempty" yaml:"classification_level,omitempty"`
	Rules          []Rule                  `json:"rules" yaml:"rules"`
}

// Violation records one failed rule.
type Violation struct {
	RuleName string   `json:"rule_name"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
	Expected string   `json:"expected,omitempty"`
	Actual   string   `json:"actual,omitempty"`
}

// Result is the outcome of evaluating one policy against one claim.
type Result struct {
	ManifestID    string      `json:"manifest_id"`
	PolicyName    string      `json:"policy_name"`
	PolicyVersion string      `json:"policy_version"`
	Passed        bool        `json:"passed"`
	Violations    []Violation `json:"violations"`
	EvaluatedAt   time.Time   `json:"evaluated_at"`
}

// BySeverity counts violations per severity.
func (r *Result) BySeverity() map[Severity]int {
	out := map[Severity]int{}
	for _, v := range r.Violations {
		out[v.Severity]++
	}
	return out
}
