package trust

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func actionsAt(times ...time.Time) *manifest.Assertion {
	p := &manifest.ActionsPayload{}
	for i, ts := range times {
		action := manifest.ActionEdited
		if i == 0 {
			action = manifest.ActionCreated
		}
		p.Actions = append(p.Actions, manifest.Action{Action: action, When: ts})
	}
	return manifest.NewAssertion(manifest.LabelActions, p)
}

func TestActionsPresent(t *testing.T) {
	ctx := context.Background()
	c := hashOnlyClaim(t)
	require.ErrorIs(t, ActionsPresent{}.Check(ctx, c), ErrCustodyIncomplete)
	c.Append(actionsAt(time.Now()))
	require.NoError(t, ActionsPresent{}.Check(ctx, c))
}

func TestTemporalOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base.Add(time.Hour) }

	newClaim := func(a *manifest.Assertion) *manifest.Claim {
		c, err := manifest.New("Acme/1.0", "image/jpeg", manifest.WithClock(clock))
		require.NoError(t, err)
		c.Append(a)
		return c
	}

	ordered := newClaim(actionsAt(base, time.Time{}, base.Add(time.Minute)))
	require.NoError(t, TemporalOrdering{}.Check(ctx, ordered))

	reversed := newClaim(actionsAt(base.Add(time.Minute), base))
	require.ErrorIs(t, TemporalOrdering{}.Check(ctx, reversed), ErrCustodyIncomplete)

	future := newClaim(actionsAt(base.Add(2 * time.Hour)))
	require.ErrorIs(t, TemporalOrdering{}.Check(ctx, future), ErrCustodyIncomplete)
}

func TestIngredientHashes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "parent.jpg")
	require.NoError(t, os.WriteFile(path, []byte("parent bytes"), 0o600))
	digest, err := assertions.DigestFile(assertions.SHA256, path)
	require.NoError(t, err)

	b := assertions.NewBuilder("Acme")
	c := hashOnlyClaim(t)
	c.Append(b.Ingredient(path, "", &manifest.IngredientHash{Alg: "sha256", Hash: digest}))
	c.Append(b.Ingredient("unhashed.jpg", "componentOf", nil))

	require.NoError(t, IngredientHashes{}.Check(ctx, c))
	require.NoError(t, IngredientHashes{Resolver: FileResolver}.Check(ctx, c))

	require.NoError(t, os.WriteFile(path, []byte("edited bytes"), 0o600))
	require.ErrorIs(t, IngredientHashes{Resolver: FileResolver}.Check(ctx, c), ErrCustodyIncomplete)

	failing := IngredientHashes{Resolver: func(context.Context, string, assertions.HashAlgorithm) (string, error) {
		return "", errors.New("offline")
	}}
	require.ErrorIs(t, failing.Check(ctx, c), ErrCustodyIncomplete)

	malformed := hashOnlyClaim(t)
	malformed.Append(b.Ingredient("x.jpg", "", &manifest.IngredientHash{Alg: "sha256", Hash: "abc"}))
	require.ErrorIs(t, IngredientHashes{}.Check(ctx, malformed), ErrCustodyIncomplete)
}

func TestEvaluate_ExtendedCustody(t *testing.T) {
	id := newIdentity(t)
	c := withActions(t, hashOnlyClaim(t))
	c.Append(assertions.NewBuilder("Acme").Ingredient("gone.jpg", "", &manifest.IngredientHash{Alg: "sha512", Hash: "00"}))
	id.sign(t, c)

	e := evaluator(t,
		WithTrustStore(NewCertificateSet(id.chain...)),
		WithCustodyChecks(ActionsPresent{}, TemporalOrdering{}, IngredientHashes{}),
	)
	r := e.Evaluate(context.Background(), c, false)
	assert.False(t, r.ChainComplete)
	assert.Equal(t, LevelStandard, r.TrustLevel)

	var checks []any
	for _, w := range r.Warnings {
		if w.Code == CodeCustodyIncomplete {
			checks = append(checks, w.Details["check"])
		}
	}
	assert.Equal(t, []any{"ingredient_hashes"}, checks)
}
