package manifest

import "time"

// Classification is the sensitivity level recorded on a workflow assertion.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationSecret       Classification = "secret"
	ClassificationTopSecret    Classification = "top_secret"
)

var classificationRank = map[Classification]int{
	ClassificationPublic:       0,
	ClassificationInternal:     1,
	ClassificationConfidential: 2,
	ClassificationSecret:       3,
	ClassificationTopSecret:    4,
}

// Valid reports whether c is one of the known levels.
func (c Classification) Valid() bool {
	_, ok := classificationRank[c]
	return ok
}

// Rank orders classifications from public (0) upwards. Unknown levels rank -1.
func (c Classification) Rank() int {
	if r, ok := classificationRank[c]; ok {
		return r
	}
	return -1
}

// Action types recorded in c2pa.actions.
const (
	ActionCreated    = "c2pa.created"
	ActionEdited     = "c2pa.edited"
	ActionCropped    = "c2pa.cropped"
	ActionFiltered   = "c2pa.filtered"
	ActionTranscoded = "c2pa.transcoded"
	ActionPublished  = "c2pa.published"
	ActionReviewed   = "c2pa.reviewed"
	ActionApproved   = "c2pa.approved"
)

// Action is one entry of an action history.
type Action struct {
	Action            string         `json:"action"`
	When              time.Time      `json:"when"`
	SoftwareAgent     string         `json:"software_agent,omitempty"`
	DigitalSourceType string         `json:"digital_source_type,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Changed           []string       `json:"changed,omitempty"`
	InstanceID        string         `json:"instance_id,omitempty"`
}

// ActionsPayload is the c2pa.actions assertion body.
type ActionsPayload struct {
	Actions []Action `json:"actions"`
}

func (*ActionsPayload) Kind() Kind { return KindActions }

// HashPayload is the c2pa.hash.data assertion body.
type HashPayload struct {
	Exclusions []string `json:"exclusions,omitempty"`
	Name       string   `json:"name"`
	Alg        string   `json:"alg"`
	Hash       string   `json:"hash,omitempty"`
}

func (*HashPayload) Kind() Kind { return KindHash }

// Author is a schema.org author entry.
type Author struct {
	Type       string `json:"@type"`
	Name       string `json:"name"`
	Identifier string `json:"identifier,omitempty"`
	Credential string `json:"credential,omitempty"`
	Email      string `json:"email,omitempty"`
}

// OrganizationInfo carries enterprise metadata attached to a creative work.
type OrganizationInfo struct {
	Department   string `json:"department,omitempty"`
	Project      string `json:"project,omitempty"`
	CostCenter   string `json:"cost_center,omitempty"`
	Approver     string `json:"approver,omitempty"`
	BusinessUnit string `json:"business_unit,omitempty"`
}

// CreativeWorkPayload is the stds.schema-org.CreativeWork assertion body.
type CreativeWorkPayload struct {
	Author           []Author          `json:"author"`
	Name             string            `json:"name,omitempty"`
	DatePublished    string            `json:"datePublished,omitempty"`
	OrganizationInfo *OrganizationInfo `json:"organizationInfo,omitempty"`
}

func (*CreativeWorkPayload) Kind() Kind { return KindCreativeWork }

// TrainingUse states whether the asset may be used for AI training or mining.
type TrainingUse struct {
	Allowed        bool   `json:"allowed"`
	ConstraintInfo string `json:"constraint_info,omitempty"`
}

// TrainingMiningPayload is the c2pa.training-mining assertion body.
type TrainingMiningPayload struct {
	Use TrainingUse `json:"use"`
}

func (*TrainingMiningPayload) Kind() Kind { return KindTrainingMining }

// IngredientHash pins the content of a referenced ingredient.
type IngredientHash struct {
	Alg  string `json:"alg"`
	Hash string `json:"hash"`
}

// IngredientPayload is the c2pa.ingredient assertion body.
type IngredientPayload struct {
	Relationship string          `json:"relationship"`
	URI          string          `json:"uri"`
	Timestamp    time.Time       `json:"timestamp"`
	Hash         *IngredientHash `json:"hash,omitempty"`
}

func (*IngredientPayload) Kind() Kind { return KindIngredient }

// ThumbnailPayload is the c2pa.thumbnail.claim.jpeg assertion body.
type ThumbnailPayload struct {
	Format    string `json:"format"`
	Thumbnail string `json:"thumbnail"`
}

func (*ThumbnailPayload) Kind() Kind { return KindThumbnail }

// GenericMap is an opaque keyed payload for labels with no typed form.
type GenericMap map[string]any

func (GenericMap) Kind() Kind { return KindGeneric }

// GenericList is an opaque ordered payload.
type GenericList []any

func (GenericList) Kind() Kind { return KindGeneric }
