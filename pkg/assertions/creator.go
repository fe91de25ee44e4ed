package assertions

import (
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

const (
	generatorName    = "OpenMediaTrust"
	generatorVersion = "1.0.0"
	defaultFormat    = "application/octet-stream"
)

// Creator assembles unsigned claims for files on disk.
type Creator struct {
	Generator    string
	Organization string
	TenantID     string
	HashAlg      HashAlgorithm

	builder *Builder
	now     func() time.Time
	logger  *slog.Logger
}

// CreatorOption configures a Creator.
type CreatorOption func(*Creator)

func WithCreatorClock(now func() time.Time) CreatorOption {
	return func(c *Creator) { c.now = now }
}

func WithCreatorLogger(l *slog.Logger) CreatorOption {
	return func(c *Creator) { c.logger = l }
}

func WithHashAlgorithm(alg HashAlgorithm) CreatorOption {
	return func(c *Creator) { c.HashAlg = alg }
}

func NewCreator(generator, organization, tenantID string, opts ...CreatorOption) *Creator {
	c := &Creator{
		Generator:    generator,
		Organization: organization,
		TenantID:     tenantID,
		HashAlg:      SHA256,
		logger:       slog.Default().With("component", "creator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.builder = NewBuilder(organization)
	if c.now != nil {
		c.builder.now = c.now
	}
	return c
}

// CreateRequest describes the asset and the person claiming it.
type CreateRequest struct {
	Path string
	// Format is the asset MIME type. When empty it is guessed from the
	// file extension.
	Format            string
	Creator           string
	CreatorName       string
	Title             string
	Department        string
	Project           string
	Classification    manifest.Classification
	Action            string
	SoftwareAgent     string
	DigitalSourceType string
}

// Create builds a claim with action, content hash and authorship
// assertions. A workflow assertion is added unless the content is public and
// has no department or project.
func (c *Creator) Create(req CreateRequest) (*manifest.Claim, error) {
	hashAssertion, err := c.builder.HashFile(c.HashAlg, req.Path)
	if err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = guessFormat(req.Path)
	}
	title := req.Title
	if title == "" {
		title = filepath.Base(req.Path)
	}
	opts := []manifest.Option{
		manifest.WithTitle(title),
		manifest.WithOrganization(c.Organization),
		manifest.WithTenant(c.TenantID),
		manifest.WithGeneratorInfo(manifest.GeneratorInfo{Name: generatorName, Version: generatorVersion}),
	}
	if c.now != nil {
		opts = append(opts, manifest.WithClock(c.now))
	}
	claim, err := manifest.New(c.Generator, format, opts...)
	if err != nil {
		return nil, err
	}

	action := req.Action
	if action == "" {
		action = manifest.ActionCreated
	}
	name := req.CreatorName
	if name == "" {
		name = req.Creator
	}
	cw := CreativeWork{
		AuthorName:    name,
		Title:         claim.Title,
		DatePublished: c.builder.clock(),
	}
	if strings.Contains(req.Creator, "@") {
		cw.AuthorEmail = req.Creator
	} else {
		cw.AuthorCredential = req.Creator
	}
	if req.Department != "" || req.Project != "" {
		cw.Organization = &manifest.OrganizationInfo{Department: req.Department, Project: req.Project}
	}

	claim.Append(
		c.builder.Actions(action, ActionOptions{
			SoftwareAgent:     req.SoftwareAgent,
			DigitalSourceType: req.DigitalSourceType,
		}),
		hashAssertion,
		c.builder.CreativeWork(cw),
	)

	class := req.Classification
	if class == "" {
		class = manifest.ClassificationInternal
	}
	if req.Department != "" || req.Project != "" || class != manifest.ClassificationPublic {
		claim.Append(c.builder.Workflow(Workflow{
			WorkflowID:     c.workflowID(),
			CreatorID:      req.Creator,
			CreatorName:    name,
			Classification: class,
			Department:     req.Department,
			Project:        req.Project,
		}))
	}

	c.logger.Debug("claim created",
		"instance_id", claim.InstanceID,
		"format", format,
		"assertions", len(claim.Assertions),
	)
	return claim, nil
}

func (c *Creator) workflowID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("WF-%s-%s", c.builder.clock().Format("20060102"), id[:8])
}

// AddIngredient links another asset to the claim.
func (c *Creator) AddIngredient(claim *manifest.Claim, uri, relationship string, digest *manifest.IngredientHash) *manifest.Assertion {
	a := c.builder.Ingredient(uri, relationship, digest)
	claim.Append(a)
	return a
}

// AddApproval appends an approval step to the claim's workflow.
func (c *Creator) AddApproval(claim *manifest.Claim, ap Approval) error {
	a := claim.GetAssertion(manifest.LabelWorkflow)
	if a == nil {
		return fmt.Errorf("%w: claim has no workflow assertion", manifest.ErrWrongAssertionKind)
	}
	if err := c.builder.AddApproval(a, ap); err != nil {
		return err
	}
	claim.Touch()
	return nil
}

// UpdateCompliance merges compliance flags into the claim's workflow.
func (c *Creator) UpdateCompliance(claim *manifest.Claim, u manifest.ComplianceUpdate) error {
	a := claim.GetAssertion(manifest.LabelWorkflow)
	if a == nil {
		return fmt.Errorf("%w: claim has no workflow assertion", manifest.ErrWrongAssertionKind)
	}
	if err := UpdateCompliance(a, u); err != nil {
		return err
	}
	claim.Touch()
	return nil
}

func guessFormat(path string) string {
	t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if t == "" {
		return defaultFormat
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
