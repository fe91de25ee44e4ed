package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

const workflowLocation = "assertions[" + manifest.LabelWorkflow + "]"

func (e *Engine) evaluateRule(c *manifest.Claim, r Rule) []Violation {
	switch r.Type {
	case RuleRequiredAssertion:
		return checkRequiredAssertion(c, r)
	case RuleForbiddenAssertion:
		return checkForbiddenAssertion(c, r)
	case RuleRequiredField:
		return checkRequiredField(c, r)
	case RuleValueConstraint:
		return checkValueConstraint(c, r)
	case RuleClassificationConstraint:
		return checkClassification(c, r)
	case RuleCustomFunction:
		return e.checkCustom(c, r)
	default:
		return nil
	}
}

func violation(r Rule, msg string) Violation {
	return Violation{RuleName: r.Name, Severity: r.Severity, Message: msg}
}

func checkRequiredAssertion(c *manifest.Claim, r Rule) []Violation {
	if c.GetAssertion(r.AssertionLabel) != nil {
		return nil
	}
	v := violation(r, fmt.Sprintf("required assertion %q not found", r.AssertionLabel))
	v.Location = "assertions[" + r.AssertionLabel + "]"
	v.Expected = r.AssertionLabel
	v.Actual = "missing"
	return []Violation{v}
}

func checkForbiddenAssertion(c *manifest.Claim, r Rule) []Violation {
	if c.GetAssertion(r.AssertionLabel) == nil {
		return nil
	}
	v := violation(r, fmt.Sprintf("forbidden assertion %q found", r.AssertionLabel))
	v.Location = "assertions[" + r.AssertionLabel + "]"
	v.Expected = "not present"
	v.Actual = "present"
	return []Violation{v}
}

// checkRequiredField flags a top-level field that is absent from the
// canonical map. Empty values are omitted there and so count as absent.
func checkRequiredField(c *manifest.Claim, r Rule) []Violation {
	if _, ok := c.Field(r.FieldPath); ok {
		return nil
	}
	v := violation(r, fmt.Sprintf("required field %q not found", r.FieldPath))
	v.Location = r.FieldPath
	v.Expected = "value"
	v.Actual = "null"
	return []Violation{v}
}

// checkValueConstraint applies allowed-set and numeric bounds to a present
// field. Absent fields are skipped; bounds on a non-numeric value are a
// violation.
func checkValueConstraint(c *manifest.Claim, r Rule) []Violation {
	value, ok := c.Field(r.FieldPath)
	if !ok {
		return nil
	}
	actual := display(value)
	var out []Violation

	if len(r.AllowedValues) > 0 && !contains(r.AllowedValues, value) {
		v := violation(r, fmt.Sprintf("field %q has invalid value", r.FieldPath))
		v.Location = r.FieldPath
		v.Expected = "one of " + display(r.AllowedValues)
		v.Actual = actual
		out = append(out, v)
	}

	if r.MinValue == nil && r.MaxValue == nil {
		return out
	}
	n, numeric := number(value)
	if !numeric {
		v := violation(r, fmt.Sprintf("field %q is not numeric", r.FieldPath))
		v.Location = r.FieldPath
		v.Expected = "number"
		v.Actual = actual
		return append(out, v)
	}
	if r.MinValue != nil && n < *r.MinValue {
		v := violation(r, fmt.Sprintf("field %q below minimum", r.FieldPath))
		v.Location = r.FieldPath
		v.Expected = fmt.Sprintf(">= %v", *r.MinValue)
		v.Actual = actual
		out = append(out, v)
	}
	if r.MaxValue != nil && n > *r.MaxValue {
		v := violation(r, fmt.Sprintf("field %q above maximum", r.FieldPath))
		v.Location = r.FieldPath
		v.Expected = fmt.Sprintf("<= %v", *r.MaxValue)
		v.Actual = actual
		out = append(out, v)
	}
	return out
}

// checkClassification reads the classification from the workflow
// assertion. A missing workflow or classification is itself a violation.
func checkClassification(c *manifest.Claim, r Rule) []Violation {
	w, err := c.Workflow()
	if err != nil {
		v := violation(r, "no workflow assertion to check classification")
		v.Location = workflowLocation
		return []Violation{v}
	}
	if w.Classification == "" {
		v := violation(r, "no classification specified")
		v.Location = "workflow.classification"
		return []Violation{v}
	}
	if len(r.ClassificationLevels) == 0 {
		return nil
	}
	for _, allowed := range r.ClassificationLevels {
		if w.Classification == allowed {
			return nil
		}
	}
	allowed := make([]string, len(r.ClassificationLevels))
	for i, l := range r.ClassificationLevels {
		allowed[i] = string(l)
	}
	v := violation(r, "invalid classification level")
	v.Location = "workflow.classification"
	v.Expected = "one of [" + strings.Join(allowed, ", ") + "]"
	v.Actual = string(w.Classification)
	return []Violation{v}
}

// checkCustom runs a registered predicate. A missing predicate, an error or
// a panic is always reported at error severity.
func (e *Engine) checkCustom(c *manifest.Claim, r Rule) (out []Violation) {
	e.mu.RLock()
	fn, ok := e.predicates[r.CustomFunction]
	e.mu.RUnlock()
	if !ok {
		v := violation(r, fmt.Sprintf("custom function %q not found", r.CustomFunction))
		v.Severity = SeverityError
		return []Violation{v}
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("custom predicate panicked", "rule", r.Name, "function", r.CustomFunction, "panic", rec)
			v := violation(r, fmt.Sprintf("custom validation error: %v", rec))
			v.Severity = SeverityError
			out = []Violation{v}
		}
	}()
	passed, err := fn(c)
	if err != nil {
		v := violation(r, fmt.Sprintf("custom validation error: %v", err))
		v.Severity = SeverityError
		return []Violation{v}
	}
	if !passed {
		return []Violation{violation(r, fmt.Sprintf("custom validation %q failed", r.CustomFunction))}
	}
	return nil
}

// contains compares canonical encodings so that 5, 5.0 and json.Number("5")
// match.
func contains(set []any, value any) bool {
	want, err := canonicalize.JCS(value)
	if err != nil {
		return false
	}
	for _, candidate := range set {
		got, err := canonicalize.JCS(candidate)
		if err == nil && string(got) == string(want) {
			return true
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func display(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
