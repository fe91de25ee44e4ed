package manifest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNew_RequiresGeneratorAndFormat(t *testing.T) {
	_, err := New("", "image/jpeg")
	require.ErrorIs(t, err, ErrInvalidClaim)

	_, err = New("Acme/1.0", " ")
	require.ErrorIs(t, err, ErrInvalidClaim)

	c, err := New("Acme/1.0", "image/jpeg")
	require.NoError(t, err)
	assert.True(t, HasRecognizedPrefix(c.InstanceID))
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestNormalizeInstanceID(t *testing.T) {
	assert.Equal(t, "xmp:iid:abc", NormalizeInstanceID("abc"))
	assert.Equal(t, "xmp:iid:abc", NormalizeInstanceID("xmp:iid:abc"))
	assert.Equal(t, "uuid:123", NormalizeInstanceID("uuid:123"))
	assert.Contains(t, NormalizeInstanceID(""), PrefixXMP)
}

func TestAddAssertion_UpdatesTimestampAndKeepsOrder(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	c, err := New("Acme/1.0", "image/jpeg", WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	now = t0.Add(time.Minute)
	_, err = c.AddAssertion("custom.a", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = c.AddAssertion("custom.a", map[string]any{"n": 2})
	require.NoError(t, err)

	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0.Add(time.Minute), c.UpdatedAt)
	require.Len(t, c.Assertions, 2)

	first := c.GetAssertion("custom.a")
	require.NotNil(t, first)
	assert.Equal(t, json.Number("1"), first.Data.(GenericMap)["n"])
	assert.Len(t, c.AssertionsByLabel("custom.a"), 2)
	assert.Nil(t, c.GetAssertion("missing"))
}

func TestAddAssertion_CoercesWellKnownLabels(t *testing.T) {
	c, err := New("Acme/1.0", "image/jpeg")
	require.NoError(t, err)

	a, err := c.AddAssertion(LabelHash, map[string]any{"name": "sha256", "alg": "sha256", "hash": "00"})
	require.NoError(t, err)
	h, ok := a.Data.(*HashPayload)
	require.True(t, ok)
	assert.Equal(t, "sha256", h.Alg)
	assert.True(t, a.Typed())

	// Unknown fields stay generic so nothing is dropped.
	a, err = c.AddAssertion(LabelHash, map[string]any{"name": "sha256", "alg": "sha256", "pad": true})
	require.NoError(t, err)
	assert.False(t, a.Typed())
	assert.Equal(t, true, a.Data.(GenericMap)["pad"])

	_, err = c.AddAssertion("x", "scalar")
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestToCanonicalMap_OmitsSignatureAndEmpties(t *testing.T) {
	c, err := New("Acme/1.0", "image/jpeg", WithClock(fixedClock(time.Unix(0, 0))))
	require.NoError(t, err)
	_, err = c.AddAssertion("custom", map[string]any{"keep": "v", "drop": nil, "empty": map[string]any{}, "list": []any{}})
	require.NoError(t, err)
	c.Signature = &Signature{Algorithm: AlgPS256, Value: []byte{1}}

	m, err := c.ToCanonicalMap()
	require.NoError(t, err)
	assert.NotContains(t, m, "signature")
	assert.NotContains(t, m, "organization")
	assert.NotContains(t, m, "tenant_id")
	assert.Equal(t, "Acme/1.0", m["claim_generator"])

	as := m["assertions"].([]any)
	data := as[0].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, map[string]any{"keep": "v"}, data)

	// The claim itself is untouched.
	require.NotNil(t, c.Signature)
}

func TestField(t *testing.T) {
	c, err := New("Acme/1.0", "image/png", WithOrganization("Acme Corp"))
	require.NoError(t, err)

	v, ok := c.Field("organization")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", v)

	_, ok = c.Field("tenant_id")
	assert.False(t, ok)
}

func TestWorkflowAccessor(t *testing.T) {
	c, err := New("Acme/1.0", "image/png")
	require.NoError(t, err)

	_, err = c.Workflow()
	require.ErrorIs(t, err, ErrWrongAssertionKind)

	hash, err := c.AddAssertion(LabelHash, &HashPayload{Name: "sha256", Alg: "sha256"})
	require.NoError(t, err)
	_, err = hash.Workflow()
	require.ErrorIs(t, err, ErrWrongAssertionKind)

	_, err = c.AddAssertion(LabelWorkflow, &WorkflowPayload{WorkflowID: "wf", Classification: ClassificationSecret})
	require.NoError(t, err)
	w, err := c.Workflow()
	require.NoError(t, err)
	assert.Equal(t, ClassificationSecret, w.Classification)

	broken := NewAssertion(LabelWorkflow, GenericList{"x"})
	_, err = broken.Workflow()
	require.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestJSONRoundTrip_PreservesOrderAndSignature(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8, time.UTC)
	c, err := New("Acme/1.0", "image/jpeg", WithClock(fixedClock(ts)), WithTenant("t1"))
	require.NoError(t, err)
	_, err = c.AddAssertion(LabelActions, &ActionsPayload{Actions: []Action{{Action: ActionCreated, When: ts}}})
	require.NoError(t, err)
	_, err = c.AddAssertion("custom.list", []any{3, "x", nil})
	require.NoError(t, err)
	_, err = c.AddAssertion(LabelHash, &HashPayload{Name: "sha256", Alg: "sha256", Hash: "ab"})
	require.NoError(t, err)
	c.Signature = &Signature{Algorithm: AlgPS384, CertificateChain: []string{"pem"}, Timestamp: ts, Value: []byte{0, 1, 2, 255}}

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var back Claim
	require.NoError(t, json.Unmarshal(b, &back))

	require.Len(t, back.Assertions, 3)
	assert.Equal(t, LabelActions, back.Assertions[0].Label)
	assert.Equal(t, "custom.list", back.Assertions[1].Label)
	assert.Equal(t, LabelHash, back.Assertions[2].Label)
	assert.True(t, back.Assertions[0].Typed())
	assert.Equal(t, []byte{0, 1, 2, 255}, back.Signature.Value)

	want, err := c.ToCanonicalMap()
	require.NoError(t, err)
	got, err := back.ToCanonicalMap()
	require.NoError(t, err)
	wb, _ := json.Marshal(want)
	gb, _ := json.Marshal(got)
	assert.JSONEq(t, string(wb), string(gb))
}

func TestAlgorithmFamily(t *testing.T) {
	assert.Equal(t, FamilyClassical, AlgPS512.Family())
	assert.Equal(t, FamilyClassical, AlgES256.Family())
	assert.Equal(t, FamilyPostQuantum, AlgSLHDSASHA2256s.Family())
	assert.Equal(t, FamilyHybrid, AlgHybridECDSAMLDSA65.Family())
	assert.Equal(t, FamilyUnknown, Algorithm("rot13").Family())

	cl, pq, ok := AlgHybridRSAMLDSA65.Components()
	require.True(t, ok)
	assert.Equal(t, AlgPS256, cl)
	assert.Equal(t, AlgMLDSA65, pq)
}

func TestClassificationRank(t *testing.T) {
	assert.True(t, ClassificationTopSecret.Rank() > ClassificationConfidential.Rank())
	assert.False(t, Classification("restricted").Valid())
	assert.Equal(t, -1, Classification("restricted").Rank())
}

func TestWorkflowMergeCompliance(t *testing.T) {
	w := &WorkflowPayload{ComplianceCheck: DefaultComplianceCheck()}
	yes := true
	review := "passed"
	w.MergeCompliance(ComplianceUpdate{PDPAApproved: &yes, LegalReview: &review})

	assert.True(t, w.ComplianceCheck.PDPAApproved)
	assert.False(t, w.ComplianceCheck.TrademarkCleared)
	assert.True(t, w.ComplianceCheck.ExportControlPassed)
	assert.Equal(t, "passed", w.ComplianceCheck.LegalReview)

	assert.False(t, w.Approved())
	w.AppendStep(WorkflowStep{Role: "approver", Status: "approved"})
	assert.True(t, w.Approved())
}
