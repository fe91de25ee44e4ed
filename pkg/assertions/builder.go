// Package assertions builds the well-known provenance assertions with a
// stable field layout, computes streaming content hashes and mutates
// workflow records in place.
package assertions

import (
	"encoding/base64"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// Builder produces assertions. The zero value is usable.
type Builder struct {
	Organization string
	now          func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderClock sets the time source for action, step and ingredient
// timestamps.
func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(organization string, opts ...BuilderOption) *Builder {
	b := &Builder{Organization: organization}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) clock() time.Time {
	if b != nil && b.now != nil {
		return b.now().UTC()
	}
	return time.Now().UTC()
}

// text applies NFC so that visually equal strings serialize identically.
func text(s string) string {
	return norm.NFC.String(s)
}

// ActionOptions are the optional parts of an action record.
type ActionOptions struct {
	SoftwareAgent     string
	DigitalSourceType string
	Parameters        map[string]any
	Changed           []string
}

// Actions returns a c2pa.actions assertion holding a single action.
func (b *Builder) Actions(action string, opts ActionOptions) *manifest.Assertion {
	return manifest.NewAssertion(manifest.LabelActions, &manifest.ActionsPayload{
		Actions: []manifest.Action{{
			Action:            action,
			When:              b.clock(),
			SoftwareAgent:     text(opts.SoftwareAgent),
			DigitalSourceType: opts.DigitalSourceType,
			Parameters:        opts.Parameters,
			Changed:           opts.Changed,
		}},
	})
}

// Hash returns a c2pa.hash.data assertion for a precomputed hex digest.
func (b *Builder) Hash(alg HashAlgorithm, digest string) (*manifest.Assertion, error) {
	if _, err := alg.New(); err != nil {
		return nil, err
	}
	return manifest.NewAssertion(manifest.LabelHash, &manifest.HashPayload{
		Name: string(alg),
		Alg:  string(alg),
		Hash: digest,
	}), nil
}

// HashReader streams r and returns the resulting hash assertion.
func (b *Builder) HashReader(alg HashAlgorithm, r io.Reader) (*manifest.Assertion, error) {
	digest, err := Digest(alg, r)
	if err != nil {
		return nil, err
	}
	return b.Hash(alg, digest)
}

// HashFile hashes the file at path.
func (b *Builder) HashFile(alg HashAlgorithm, path string) (*manifest.Assertion, error) {
	digest, err := DigestFile(alg, path)
	if err != nil {
		return nil, err
	}
	return b.Hash(alg, digest)
}

// CreativeWork describes the authorship of an asset.
type CreativeWork struct {
	AuthorName       string
	AuthorEmail      string
	AuthorCredential string
	AuthorIdentifier string
	Title            string
	DatePublished    time.Time
	Organization     *manifest.OrganizationInfo
}

// CreativeWork returns a stds.schema-org.CreativeWork assertion.
func (b *Builder) CreativeWork(cw CreativeWork) *manifest.Assertion {
	p := &manifest.CreativeWorkPayload{
		Author: []manifest.Author{{
			Type:       "Person",
			Name:       text(cw.AuthorName),
			Identifier: cw.AuthorIdentifier,
			Credential: cw.AuthorCredential,
			Email:      cw.AuthorEmail,
		}},
		Name: text(cw.Title),
	}
	if !cw.DatePublished.IsZero() {
		p.DatePublished = cw.DatePublished.UTC().Format(time.RFC3339)
	}
	if cw.Organization != nil && *cw.Organization != (manifest.OrganizationInfo{}) {
		org := *cw.Organization
		p.OrganizationInfo = &org
	}
	return manifest.NewAssertion(manifest.LabelCreativeWork, p)
}

// Workflow describes a new approval workflow.
type Workflow struct {
	WorkflowID      string
	CreatorID       string
	CreatorName     string
	Classification  manifest.Classification
	Department      string
	Project         string
	RetentionPolicy string
}

// Workflow returns an org.enterprise.workflow assertion whose approval chain
// starts with a "created" step by the creator. Classification defaults to
// internal and the workflow id to a random UUID.
func (b *Builder) Workflow(w Workflow) *manifest.Assertion {
	id := w.WorkflowID
	if id == "" {
		id = uuid.NewString()
	}
	class := w.Classification
	if class == "" {
		class = manifest.ClassificationInternal
	}
	p := &manifest.WorkflowPayload{
		WorkflowID: id,
		ApprovalChain: []manifest.WorkflowStep{{
			Role:      "creator",
			UserID:    w.CreatorID,
			UserName:  text(w.CreatorName),
			Timestamp: b.clock(),
			Status:    "created",
		}},
		ComplianceCheck: manifest.DefaultComplianceCheck(),
		Classification:  class,
		RetentionPolicy: w.RetentionPolicy,
	}
	if w.Department != "" || w.Project != "" {
		p.OrganizationalContext = &manifest.OrganizationalContext{
			Department: text(w.Department),
			Project:    text(w.Project),
		}
	}
	return manifest.NewAssertion(manifest.LabelWorkflow, p)
}

// TrainingMining returns a c2pa.training-mining assertion.
func (b *Builder) TrainingMining(allowed bool, constraintInfo string) *manifest.Assertion {
	return manifest.NewAssertion(manifest.LabelTrainingMining, &manifest.TrainingMiningPayload{
		Use: manifest.TrainingUse{Allowed: allowed, ConstraintInfo: text(constraintInfo)},
	})
}

// Ingredient returns a c2pa.ingredient assertion linking to uri.
// Relationship defaults to parentOf.
func (b *Builder) Ingredient(uri, relationship string, digest *manifest.IngredientHash) *manifest.Assertion {
	if relationship == "" {
		relationship = "parentOf"
	}
	return manifest.NewAssertion(manifest.LabelIngredient, &manifest.IngredientPayload{
		Relationship: relationship,
		URI:          uri,
		Timestamp:    b.clock(),
		Hash:         digest,
	})
}

// Thumbnail returns a c2pa.thumbnail.claim.jpeg assertion with the image
// base64 encoded.
func (b *Builder) Thumbnail(format string, data []byte) *manifest.Assertion {
	return manifest.NewAssertion(manifest.LabelThumbnail, &manifest.ThumbnailPayload{
		Format:    format,
		Thumbnail: base64.StdEncoding.EncodeToString(data),
	})
}

// Generic wraps arbitrary map or list data under label.
func Generic(label string, data any) (*manifest.Assertion, error) {
	p, err := manifest.CoercePayload(label, data)
	if err != nil {
		return nil, err
	}
	return manifest.NewAssertion(label, p), nil
}
