package canonicalize_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func buildClaim(labels, values []string) (*manifest.Claim, error) {
	ts := time.Unix(1700000000, 0)
	c, err := manifest.New("Acme/1.0", "image/jpeg", manifest.WithClock(func() time.Time { return ts }))
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(labels) && i < len(values); i++ {
		if _, err := c.AddAssertion("custom."+labels[i], map[string]any{"v": values[i], "i": i}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Property: Claim(c) == Claim(c) for any claim.
func TestClaimCanonicalDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("claim canonicalization is deterministic", prop.ForAll(
		func(labels, values []string) bool {
			c, err := buildClaim(labels, values)
			if err != nil {
				return false
			}
			b1, err1 := canonicalize.Claim(c)
			b2, err2 := canonicalize.Claim(c)
			if err1 != nil || err2 != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

// Property: a claim decoded from its own JSON canonicalizes to the same bytes.
func TestClaimCanonicalSurvivesJSONRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical bytes survive a JSON round trip", prop.ForAll(
		func(labels, values []string) bool {
			c, err := buildClaim(labels, values)
			if err != nil {
				return false
			}
			raw, err := json.Marshal(c)
			if err != nil {
				return false
			}
			var back manifest.Claim
			if err := json.Unmarshal(raw, &back); err != nil {
				return false
			}
			b1, err1 := canonicalize.Claim(c)
			b2, err2 := canonicalize.Claim(&back)
			if err1 != nil || err2 != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
