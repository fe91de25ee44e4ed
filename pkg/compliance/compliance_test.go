package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newClaim(t *testing.T, class manifest.Classification, author string) *manifest.Claim {
	t.Helper()
	b := assertions.NewBuilder("Acme")
	c, err := manifest.New("Acme/1.0", "image/png", manifest.WithTitle("Q3 deck"))
	require.NoError(t, err)
	c.Append(b.Actions(manifest.ActionCreated, assertions.ActionOptions{}))
	if author != "" {
		c.Append(b.CreativeWork(assertions.CreativeWork{AuthorName: author}))
	}
	if class != "" {
		c.Append(b.Workflow(assertions.Workflow{CreatorID: "u1", Classification: class}))
	}
	return c
}

func setFlags(t *testing.T, c *manifest.Claim, u manifest.ComplianceUpdate) {
	t.Helper()
	require.NoError(t, assertions.UpdateCompliance(c.GetAssertion(manifest.LabelWorkflow), u))
}

func ptr[T any](v T) *T { return &v }

func statuses(r *Report) map[Rule]Status {
	out := make(map[Rule]Status, len(r.Results))
	for _, res := range r.Results {
		out[res.Rule] = res.Status
	}
	return out
}

func TestDefaultPolicies(t *testing.T) {
	e := NewEngine()
	assert.Equal(t,
		[]string{"confidential_content", "internal_content", "pdpa_compliance", "public_content"},
		e.Policies())
}

func TestCheckCompliance_PublicContent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(WithClock(func() time.Time { return fixedNow }))
	c := newClaim(t, manifest.ClassificationPublic, "Alice")

	r, err := e.CheckCompliance(ctx, c, "public_content", "auditor")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.OverallStatus)
	assert.Equal(t, map[Rule]Status{
		RuleTrademarkClearance: StatusFailed,
		RuleCopyrightValid:     StatusPassed,
		RuleLegalReview:        StatusPending,
	}, statuses(r))
	for _, res := range r.Results {
		assert.Equal(t, "auditor", res.CheckedBy)
		assert.Equal(t, fixedNow, res.CheckedAt)
	}

	setFlags(t, c, manifest.ComplianceUpdate{TrademarkCleared: ptr(true)})
	r, err = e.CheckCompliance(ctx, c, "public_content", "auditor")
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, r.OverallStatus, "pending legal review downgrades to warning")

	setFlags(t, c, manifest.ComplianceUpdate{LegalReview: ptr("passed")})
	r, err = e.CheckCompliance(ctx, c, "public_content", "auditor")
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, r.OverallStatus)

	stored, ok := e.Report(c.InstanceID)
	require.True(t, ok)
	assert.Same(t, r, stored)
}

func TestCheckCompliance_Confidential(t *testing.T) {
	ctx := context.Background()
	e := NewEngine()
	c := newClaim(t, manifest.ClassificationConfidential, "")
	setFlags(t, c, manifest.ComplianceUpdate{LegalReview: ptr("passed")})

	r, err := e.CheckCompliance(ctx, c, PolicyFor(manifest.ClassificationConfidential), "")
	require.NoError(t, err)
	got := statuses(r)
	assert.Equal(t, StatusPassed, got[RuleClassificationValid])
	assert.Equal(t, StatusPassed, got[RuleExportControl])
	assert.Equal(t, StatusPassed, got[RulePIIRedaction])
	assert.Equal(t, StatusWarning, got[RuleRetentionPolicy])
	assert.Equal(t, StatusWarning, r.OverallStatus)

	setFlags(t, c, manifest.ComplianceUpdate{ExportControlPassed: ptr(false)})
	r, err = e.CheckCompliance(ctx, c, "confidential_content", "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, statuses(r)[RuleExportControl])
	assert.Equal(t, StatusFailed, r.OverallStatus)
}

func TestCheckCompliance_NoWorkflow(t *testing.T) {
	e := NewEngine()
	c := newClaim(t, "", "")

	r, err := e.CheckCompliance(context.Background(), c, "pdpa_compliance", "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, statuses(r)[RulePDPAConsent])

	r, err = e.CheckCompliance(context.Background(), c, "internal_content", "")
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, statuses(r)[RuleClassificationValid])
	assert.Equal(t, StatusWarning, r.OverallStatus)
}

func TestCheckCompliance_UnknownPolicy(t *testing.T) {
	_, err := NewEngine().CheckCompliance(context.Background(), newClaim(t, "", ""), "nope", "")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestCheckCompliance_NilClaim(t *testing.T) {
	_, err := NewEngine().CheckCompliance(context.Background(), nil, "public_content", "")
	assert.ErrorIs(t, err, manifest.ErrInvalidClaim)
}

func TestCheckCompliance_PanickingCheckFailsRule(t *testing.T) {
	e := NewEngine()
	require.NoError(t, e.AddPolicy(Policy{Name: "pii_only", Rules: []Rule{RulePIIRedaction, RuleClassificationValid}}))
	e.SetCheck(RulePIIRedaction, func(*manifest.Claim) (Status, string) {
		panic("scanner crashed")
	})

	c := newClaim(t, manifest.ClassificationInternal, "Alice")
	var r *Report
	require.NotPanics(t, func() {
		var err error
		r, err = e.CheckCompliance(context.Background(), c, "pii_only", "")
		require.NoError(t, err)
	})
	assert.Equal(t, StatusFailed, r.OverallStatus)
	assert.Equal(t, StatusFailed, statuses(r)[RulePIIRedaction])
	assert.Contains(t, r.Results[0].Message, "scanner crashed")
	assert.Equal(t, StatusPassed, statuses(r)[RuleClassificationValid])

	stored, ok := e.Report(c.InstanceID)
	require.True(t, ok)
	assert.Same(t, r, stored)
}

func TestCustomPolicyAndCheck(t *testing.T) {
	e := NewEngine(WithReportTTL(24 * time.Hour), WithClock(func() time.Time { return fixedNow }))
	require.Error(t, e.AddPolicy(Policy{}))
	require.NoError(t, e.AddPolicy(Policy{Name: "pii_only", Rules: []Rule{RulePIIRedaction, "unknown_rule"}}))

	r, err := e.CheckCompliance(context.Background(), newClaim(t, "", ""), "pii_only", "")
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, statuses(r)["unknown_rule"])
	require.NotNil(t, r.ExpiresAt)
	assert.Equal(t, fixedNow.Add(24*time.Hour), *r.ExpiresAt)

	e.SetCheck(RulePIIRedaction, func(*manifest.Claim) (Status, string) {
		return StatusFailed, "unredacted national id"
	})
	r, err = e.CheckCompliance(context.Background(), newClaim(t, "", ""), "pii_only", "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.OverallStatus)
	assert.Equal(t, "unredacted national id", r.Results[0].Message)
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, "public_content", PolicyFor(manifest.ClassificationPublic))
	assert.Equal(t, "internal_content", PolicyFor(manifest.ClassificationInternal))
	assert.Equal(t, "confidential_content", PolicyFor(manifest.ClassificationTopSecret))
}
