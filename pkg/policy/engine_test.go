package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func claimWithWorkflow(t *testing.T, class manifest.Classification) *manifest.Claim {
	t.Helper()
	b := assertions.NewBuilder("Acme")
	c, err := manifest.New("Acme/1.0", "image/jpeg", manifest.WithTitle("Launch photo"))
	require.NoError(t, err)
	h, err := b.Hash(assertions.SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)
	c.Append(
		b.Actions(manifest.ActionCreated, assertions.ActionOptions{}),
		h,
		b.Workflow(assertions.Workflow{CreatorID: "alice", Classification: class}),
	)
	return c
}

func only(rules ...Rule) Policy {
	return Policy{Name: "test", Version: "1.0.0", Rules: rules}
}

func TestClassificationConstraint_SingleViolation(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddPolicy(only(Rule{
		Name:                 "confidential_only",
		Type:                 RuleClassificationConstraint,
		Severity:             SeverityError,
		ClassificationLevels: []manifest.Classification{manifest.ClassificationConfidential, manifest.ClassificationSecret},
	})))

	res, err := e.Evaluate(context.Background(), claimWithWorkflow(t, manifest.ClassificationPublic), "test")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, "confidential_only", v.RuleName)
	assert.Equal(t, SeverityError, v.Severity)
	assert.Equal(t, "public", v.Actual)
	assert.Equal(t, "one of [confidential, secret]", v.Expected)
}

func TestBuiltinPolicies(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	assert.Equal(t, []string{"legal_documents", "marketing_content"}, e.Policies())

	res, err := e.Evaluate(ctx, claimWithWorkflow(t, manifest.ClassificationPublic), "legal_documents")
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "confidential_or_higher", res.Violations[0].RuleName)
	assert.Equal(t, "1.0.0", res.PolicyVersion)

	res, err = e.Evaluate(ctx, claimWithWorkflow(t, manifest.ClassificationSecret), "legal_documents")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)

	// Marketing additionally needs a creative work.
	res, err = e.Evaluate(ctx, claimWithWorkflow(t, manifest.ClassificationPublic), "marketing_content")
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "require_creative_work", res.Violations[0].RuleName)
	assert.Equal(t, "missing", res.Violations[0].Actual)
}

func TestEvaluate_UnknownPolicy(t *testing.T) {
	_, err := newEngine(t).Evaluate(context.Background(), claimWithWorkflow(t, manifest.ClassificationPublic), "nope")
	require.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestEvaluate_DoesNotMutateClaim(t *testing.T) {
	e := newEngine(t)
	c := claimWithWorkflow(t, manifest.ClassificationInternal)
	before, err := canonicalize.Claim(c)
	require.NoError(t, err)
	updated := c.UpdatedAt

	e.EvaluateAll(context.Background(), c)

	after, err := canonicalize.Claim(c)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, updated, c.UpdatedAt)
}

func TestClassificationConstraint_MissingWorkflow(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddPolicy(only(Rule{Name: "class", Type: RuleClassificationConstraint, Severity: SeverityWarning})))

	c, err := manifest.New("Acme/1.0", "image/jpeg")
	require.NoError(t, err)
	res, err := e.Evaluate(context.Background(), c, "test")
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityWarning, res.Violations[0].Severity)
	assert.True(t, res.Passed)

	wf := claimWithWorkflow(t, manifest.ClassificationPublic)
	w, err := wf.Workflow()
	require.NoError(t, err)
	w.Classification = ""
	res, err = e.Evaluate(context.Background(), wf, "test")
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "no classification specified", res.Violations[0].Message)
}

func TestAssertionRules(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.AddPolicy(only(
		Rule{Name: "needs_thumbnail", Type: RuleRequiredAssertion, Severity: SeverityInfo, AssertionLabel: manifest.LabelThumbnail},
		Rule{Name: "no_training", Type: RuleForbiddenAssertion, Severity: SeverityError, AssertionLabel: manifest.LabelTrainingMining},
	)))
	c := claimWithWorkflow(t, manifest.ClassificationPublic)

	res, err := e.Evaluate(context.Background(), c, "test")
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityInfo, res.Violations[0].Severity)
	assert.True(t, res.Passed)

	c.Append(assertions.NewBuilder("Acme").TrainingMining(false, ""))
	res, err = e.Evaluate(context.Background(), c, "test")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, map[Severity]int{SeverityInfo: 1, SeverityError: 1}, res.BySeverity())
}

func TestFieldRules(t *testing.T) {
	ctx := context.Background()
	lo, hi := 1.0, 3.0
	c := claimWithWorkflow(t, manifest.ClassificationPublic)

	cases := []struct {
		name  string
		rule  Rule
		count int
	}{
		{"required present", Rule{Type: RuleRequiredField, FieldPath: "title"}, 0},
		{"required absent", Rule{Type: RuleRequiredField, FieldPath: "organization"}, 1},
		{"allowed", Rule{Type: RuleValueConstraint, FieldPath: "format", AllowedValues: []any{"image/jpeg", "image/png"}}, 0},
		{"not allowed", Rule{Type: RuleValueConstraint, FieldPath: "format", AllowedValues: []any{"video/mp4"}}, 1},
		{"absent skipped", Rule{Type: RuleValueConstraint, FieldPath: "organization", AllowedValues: []any{"x"}}, 0},
		{"bounds on text", Rule{Type: RuleValueConstraint, FieldPath: "format", MinValue: &lo}, 1},
		{"bounds absent skipped", Rule{Type: RuleValueConstraint, FieldPath: "tenant_id", MinValue: &lo, MaxValue: &hi}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t)
			tc.rule.Name = "rule"
			tc.rule.Severity = SeverityError
			require.NoError(t, e.AddPolicy(only(tc.rule)))
			res, err := e.Evaluate(ctx, c, "test")
			require.NoError(t, err)
			assert.Len(t, res.Violations, tc.count)
			assert.Equal(t, tc.count == 0, res.Passed)
		})
	}
}

func TestNumericHelpers(t *testing.T) {
	assert.True(t, contains([]any{5, "x"}, 5.0))
	assert.False(t, contains([]any{"5"}, 5))
	n, ok := number(2)
	assert.True(t, ok)
	assert.Equal(t, 2.0, n)
	_, ok = number("2")
	assert.False(t, ok)
}

func TestCustomPredicates(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	e.RegisterPredicate("has_title", func(c *manifest.Claim) (bool, error) { return c.Title != "", nil })
	e.RegisterPredicate("never", func(*manifest.Claim) (bool, error) { return false, nil })
	e.RegisterPredicate("broken", func(*manifest.Claim) (bool, error) { return false, errors.New("lookup failed") })
	e.RegisterPredicate("panics", func(*manifest.Claim) (bool, error) { panic("boom") })

	rule := func(name, fn string) Rule {
		return Rule{Name: name, Type: RuleCustomFunction, Severity: SeverityInfo, CustomFunction: fn}
	}
	require.NoError(t, e.AddPolicy(only(
		rule("a", "has_title"),
		rule("b", "never"),
		rule("c", "broken"),
		rule("d", "panics"),
		rule("e", "unregistered"),
	)))

	res, err := e.Evaluate(ctx, claimWithWorkflow(t, manifest.ClassificationPublic), "test")
	require.NoError(t, err)
	require.Len(t, res.Violations, 4)
	got := map[string]Severity{}
	for _, v := range res.Violations {
		got[v.RuleName] = v.Severity
	}
	assert.Equal(t, map[string]Severity{
		"b": SeverityInfo,
		"c": SeverityError,
		"d": SeverityError,
		"e": SeverityError,
	}, got)
	assert.False(t, res.Passed)
}

func TestRegisterExpression(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.RegisterExpression("has_hash",
		`claim.assertions.exists(a, a.label == "c2pa.hash.data")`))
	require.NoError(t, e.RegisterExpression("jpeg", `claim.format == "image/jpeg"`))
	require.NoError(t, e.RegisterExpression("titled", `has(claim.title) && size(claim.title) > 3`))
	require.Error(t, e.RegisterExpression("bad", `claim.format ==`))
	require.Error(t, e.RegisterExpression("not_bool", `1 + 2`))

	require.NoError(t, e.AddPolicy(only(
		Rule{Name: "hash", Type: RuleCustomFunction, Severity: SeverityError, CustomFunction: "has_hash"},
		Rule{Name: "jpeg", Type: RuleCustomFunction, Severity: SeverityError, CustomFunction: "jpeg"},
		Rule{Name: "titled", Type: RuleCustomFunction, Severity: SeverityWarning, CustomFunction: "titled"},
	)))

	res, err := e.Evaluate(ctx, claimWithWorkflow(t, manifest.ClassificationPublic), "test")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations)

	c, err := manifest.New("Acme/1.0", "image/png")
	require.NoError(t, err)
	res, err = e.Evaluate(ctx, c, "test")
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Len(t, res.Violations, 3)
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	off := false
	e := newEngine(t)
	require.NoError(t, e.AddPolicy(only(Rule{
		Name: "off", Type: RuleRequiredAssertion, Severity: SeverityError,
		AssertionLabel: manifest.LabelThumbnail, Enabled: &off,
	})))
	res, err := e.Evaluate(context.Background(), claimWithWorkflow(t, manifest.ClassificationPublic), "test")
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestValidate(t *testing.T) {
	good := Rule{Name: "r", Type: RuleRequiredAssertion, Severity: SeverityError, AssertionLabel: "x"}
	cases := map[string]Policy{
		"no name":        {Version: "1.0.0", Rules: []Rule{good}},
		"bad version":    {Name: "p", Version: "one", Rules: []Rule{good}},
		"bad severity":   {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: RuleRequiredAssertion, Severity: "fatal", AssertionLabel: "x"}}},
		"unknown type":   {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: "regex", Severity: SeverityError}}},
		"missing label":  {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: RuleForbiddenAssertion, Severity: SeverityError}}},
		"missing field":  {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: RuleRequiredField, Severity: SeverityError}}},
		"missing func":   {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: RuleCustomFunction, Severity: SeverityError}}},
		"bad level":      {Name: "p", Version: "1.0.0", Rules: []Rule{{Name: "r", Type: RuleClassificationConstraint, Severity: SeverityError, ClassificationLevels: []manifest.Classification{"restricted"}}}},
		"duplicate rule": {Name: "p", Version: "1.0.0", Rules: []Rule{good, good}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, Validate(p), ErrInvalidPolicy)
		})
	}
	require.NoError(t, Validate(Policy{Name: "p", Version: "2.1", Rules: []Rule{good}}))
}

func TestPolicyLookup(t *testing.T) {
	e := newEngine(t)
	p, err := e.Policy("marketing_content")
	require.NoError(t, err)
	assert.Equal(t, "Marketing", p.Department)
	_, err = e.Policy("missing")
	require.ErrorIs(t, err, ErrPolicyNotFound)
}
