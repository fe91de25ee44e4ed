// Package manifest models provenance claims: the record binding a content
// asset to an ordered list of labeled assertions, optionally sealed by a
// signature over its canonical form.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidClaim = errors.New("manifest: invalid claim")

// Recognized instance id namespaces.
const (
	PrefixXMP  = "xmp:iid:"
	PrefixUUID = "uuid:"
)

// GeneratorInfo describes the software that produced a claim.
type GeneratorInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Claim is a provenance manifest. Callers serialize writes per claim; a
// claim must not be mutated and signed concurrently.
type Claim struct {
	ClaimGenerator     string          `json:"claim_generator"`
	ClaimGeneratorInfo []GeneratorInfo `json:"claim_generator_info,omitempty"`
	Format             string          `json:"format"`
	InstanceID         string          `json:"instance_id"`
	Title              string          `json:"title,omitempty"`
	Assertions         []*Assertion    `json:"assertions"`
	Signature          *Signature      `json:"signature,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Organization       string          `json:"organization,omitempty"`
	TenantID           string          `json:"tenant_id,omitempty"`

	now func() time.Time
}

// Option configures a claim at construction.
type Option func(*Claim)

func WithInstanceID(id string) Option { return func(c *Claim) { c.InstanceID = id } }

func WithTitle(title string) Option { return func(c *Claim) { c.Title = title } }

func WithOrganization(org string) Option { return func(c *Claim) { c.Organization = org } }

func WithTenant(tenantID string) Option { return func(c *Claim) { c.TenantID = tenantID } }

func WithGeneratorInfo(info ...GeneratorInfo) Option {
	return func(c *Claim) { c.ClaimGeneratorInfo = append(c.ClaimGeneratorInfo, info...) }
}

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option { return func(c *Claim) { c.now = now } }

// New builds an unsigned claim. A missing generator or format is rejected.
// An instance id without a recognized namespace is re-prefixed with
// PrefixXMP; an empty one is generated.
func New(generator, format string, opts ...Option) (*Claim, error) {
	if strings.TrimSpace(generator) == "" {
		return nil, fmt.Errorf("%w: claim_generator is required", ErrInvalidClaim)
	}
	if strings.TrimSpace(format) == "" {
		return nil, fmt.Errorf("%w: format is required", ErrInvalidClaim)
	}
	c := &Claim{
		ClaimGenerator: generator,
		Format:         format,
		Assertions:     []*Assertion{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.InstanceID = NormalizeInstanceID(c.InstanceID)
	ts := c.clock()
	c.CreatedAt = ts
	c.UpdatedAt = ts
	return c, nil
}

// NormalizeInstanceID applies the namespace rules used by New.
func NormalizeInstanceID(id string) string {
	switch {
	case id == "":
		return PrefixXMP + uuid.NewString()
	case HasRecognizedPrefix(id):
		return id
	default:
		return PrefixXMP + id
	}
}

// HasRecognizedPrefix reports whether id carries a known namespace.
func HasRecognizedPrefix(id string) bool {
	return strings.HasPrefix(id, PrefixXMP) || strings.HasPrefix(id, PrefixUUID)
}

func (c *Claim) clock() time.Time {
	if c.now != nil {
		return c.now().UTC()
	}
	return time.Now().UTC()
}

// Touch records a mutation.
func (c *Claim) Touch() {
	c.UpdatedAt = c.clock()
}

// AddAssertion appends a new assertion carrying data under label. Data may
// be a typed payload, a generic map or list, or any JSON-encodable value.
func (c *Claim) AddAssertion(label string, data any) (*Assertion, error) {
	p, err := CoercePayload(label, data)
	if err != nil {
		return nil, err
	}
	a := NewAssertion(label, p)
	c.Append(a)
	return a, nil
}

// Append adds pre-built assertions in order.
func (c *Claim) Append(as ...*Assertion) {
	if len(as) == 0 {
		return
	}
	c.Assertions = append(c.Assertions, as...)
	c.Touch()
}

// GetAssertion returns the first assertion with label, or nil.
func (c *Claim) GetAssertion(label string) *Assertion {
	for _, a := range c.Assertions {
		if a != nil && a.Label == label {
			return a
		}
	}
	return nil
}

// AssertionsByLabel returns every assertion with label, in order.
func (c *Claim) AssertionsByLabel(label string) []*Assertion {
	var out []*Assertion
	for _, a := range c.Assertions {
		if a != nil && a.Label == label {
			out = append(out, a)
		}
	}
	return out
}

// Workflow returns the payload of the first workflow assertion.
func (c *Claim) Workflow() (*WorkflowPayload, error) {
	a := c.GetAssertion(LabelWorkflow)
	if a == nil {
		return nil, fmt.Errorf("%w: no %s assertion", ErrWrongAssertionKind, LabelWorkflow)
	}
	return a.Workflow()
}

// ToCanonicalMap returns the claim as a generic map with the signature
// removed and nil or empty values omitted. Numbers are json.Number.
func (c *Claim) ToCanonicalMap() (map[string]any, error) {
	shadow := *c
	shadow.Signature = nil
	b, err := json.Marshal(&shadow)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode claim: %w", err)
	}
	v, err := decodeNumbers(b)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode claim: %w", err)
	}
	m, _ := Prune(v).(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Field resolves a top-level field of the canonical map.
func (c *Claim) Field(name string) (any, bool) {
	m, err := c.ToCanonicalMap()
	if err != nil {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

// Signed reports whether a signature is attached.
func (c *Claim) Signed() bool {
	return c.Signature != nil && len(c.Signature.Value) > 0
}
