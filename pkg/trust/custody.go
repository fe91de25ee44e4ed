package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// ErrCustodyIncomplete is wrapped by custody checks that fail.
var ErrCustodyIncomplete = errors.New("trust: chain of custody incomplete")

// CustodyCheck is one chain-of-custody rule. All configured checks must pass
// for a claim's chain to count as complete.
type CustodyCheck interface {
	Name() string
	Check(ctx context.Context, c *manifest.Claim) error
}

// ActionsPresent requires an action history.
type ActionsPresent struct{}

func (ActionsPresent) Name() string { return "actions_present" }

func (ActionsPresent) Check(_ context.Context, c *manifest.Claim) error {
	if c.GetAssertion(manifest.LabelActions) == nil {
		return fmt.Errorf("%w: no %s assertion", ErrCustodyIncomplete, manifest.LabelActions)
	}
	return nil
}

// TemporalOrdering requires recorded actions to be in non-decreasing time
// order and no later than the claim's last update. Actions without a
// timestamp are skipped.
type TemporalOrdering struct{}

func (TemporalOrdering) Name() string { return "temporal_ordering" }

func (TemporalOrdering) Check(_ context.Context, c *manifest.Claim) error {
	var prev manifest.Action
	for _, a := range c.AssertionsByLabel(manifest.LabelActions) {
		p, ok := a.Data.(*manifest.ActionsPayload)
		if !ok {
			return fmt.Errorf("%w: %s is not readable", ErrCustodyIncomplete, a.InstanceID)
		}
		for _, act := range p.Actions {
			if act.When.IsZero() {
				continue
			}
			if !prev.When.IsZero() && act.When.Before(prev.When) {
				return fmt.Errorf("%w: %s at %s precedes %s at %s", ErrCustodyIncomplete,
					act.Action, act.When.Format(time.RFC3339),
					prev.Action, prev.When.Format(time.RFC3339))
			}
			if !c.UpdatedAt.IsZero() && act.When.After(c.UpdatedAt) {
				return fmt.Errorf("%w: %s is later than updated_at", ErrCustodyIncomplete, act.Action)
			}
			prev = act
		}
	}
	return nil
}

// IngredientResolver returns the current hex digest of an ingredient's
// content using alg.
type IngredientResolver func(ctx context.Context, uri string, alg assertions.HashAlgorithm) (string, error)

// IngredientHashes requires each hashed ingredient to carry a well-formed
// digest. With a Resolver, the digest must also match the ingredient's
// current content.
type IngredientHashes struct {
	Resolver IngredientResolver
}

func (IngredientHashes) Name() string { return "ingredient_hashes" }

func (h IngredientHashes) Check(ctx context.Context, c *manifest.Claim) error {
	for _, a := range c.AssertionsByLabel(manifest.LabelIngredient) {
		ing, ok := a.Data.(*manifest.IngredientPayload)
		if !ok {
			return fmt.Errorf("%w: ingredient %s is not readable", ErrCustodyIncomplete, a.InstanceID)
		}
		if ing.Hash == nil {
			continue
		}
		alg := assertions.HashAlgorithm(ing.Hash.Alg)
		if size := alg.Size(); size == 0 || len(ing.Hash.Hash) != size*2 {
			return fmt.Errorf("%w: ingredient %s has a malformed %q digest", ErrCustodyIncomplete, ing.URI, ing.Hash.Alg)
		}
		if h.Resolver == nil {
			continue
		}
		got, err := h.Resolver(ctx, ing.URI, alg)
		if err != nil {
			return fmt.Errorf("%w: ingredient %s: %v", ErrCustodyIncomplete, ing.URI, err)
		}
		if got != ing.Hash.Hash {
			return fmt.Errorf("%w: ingredient %s content changed", ErrCustodyIncomplete, ing.URI)
		}
	}
	return nil
}

// FileResolver resolves ingredient URIs as local file paths.
func FileResolver(_ context.Context, uri string, alg assertions.HashAlgorithm) (string, error) {
	return assertions.DigestFile(alg, uri)
}
