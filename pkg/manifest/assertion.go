package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Well-known assertion labels.
const (
	LabelActions        = "c2pa.actions"
	LabelHash           = "c2pa.hash.data"
	LabelCreativeWork   = "stds.schema-org.CreativeWork"
	LabelWorkflow       = "org.enterprise.workflow"
	LabelTrainingMining = "c2pa.training-mining"
	LabelIngredient     = "c2pa.ingredient"
	LabelThumbnail      = "c2pa.thumbnail.claim.jpeg"
)

var (
	ErrWrongAssertionKind = errors.New("manifest: wrong assertion kind")
	ErrMalformedPayload   = errors.New("manifest: malformed assertion payload")
)

// Kind is the closed set of assertion variants.
type Kind int

const (
	KindGeneric Kind = iota
	KindActions
	KindHash
	KindCreativeWork
	KindWorkflow
	KindTrainingMining
	KindIngredient
	KindThumbnail
)

var kindNames = map[Kind]string{
	KindGeneric:        "generic",
	KindActions:        "actions",
	KindHash:           "hash",
	KindCreativeWork:   "creative_work",
	KindWorkflow:       "workflow",
	KindTrainingMining: "training_mining",
	KindIngredient:     "ingredient",
	KindThumbnail:      "thumbnail",
}

func (k Kind) String() string { return kindNames[k] }

// KindForLabel maps a label to its variant. Unrecognized labels are generic.
func KindForLabel(label string) Kind {
	switch label {
	case LabelActions:
		return KindActions
	case LabelHash:
		return KindHash
	case LabelCreativeWork:
		return KindCreativeWork
	case LabelWorkflow:
		return KindWorkflow
	case LabelTrainingMining:
		return KindTrainingMining
	case LabelIngredient:
		return KindIngredient
	case LabelThumbnail:
		return KindThumbnail
	default:
		return KindGeneric
	}
}

// Payload is the body of an assertion.
type Payload interface {
	Kind() Kind
}

// Assertion is a labeled fact attached to a claim.
type Assertion struct {
	Label      string  `json:"label"`
	Data       Payload `json:"data,omitempty"`
	InstanceID string  `json:"instance_id"`
}

// NewAssertion wraps a payload under label with a fresh instance id.
func NewAssertion(label string, data Payload) *Assertion {
	return &Assertion{
		Label:      label,
		Data:       data,
		InstanceID: "assertion:" + uuid.NewString(),
	}
}

// Kind returns the variant implied by the label.
func (a *Assertion) Kind() Kind { return KindForLabel(a.Label) }

// Typed reports whether the payload decoded into the variant its label
// implies.
func (a *Assertion) Typed() bool {
	return a.Data != nil && a.Data.Kind() == a.Kind()
}

// Workflow returns the typed workflow payload.
func (a *Assertion) Workflow() (*WorkflowPayload, error) {
	if a == nil || a.Kind() != KindWorkflow {
		return nil, ErrWrongAssertionKind
	}
	w, ok := a.Data.(*WorkflowPayload)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, a.Label)
	}
	return w, nil
}

func (a *Assertion) UnmarshalJSON(b []byte) error {
	var raw struct {
		Label      string          `json:"label"`
		Data       json.RawMessage `json:"data"`
		InstanceID string          `json:"instance_id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodePayload(raw.Label, raw.Data)
	if err != nil {
		return err
	}
	a.Label = raw.Label
	a.Data = data
	a.InstanceID = raw.InstanceID
	return nil
}

// DecodePayload interprets raw JSON as the payload for label. A well-known
// label decodes into its typed variant only when the typed form re-encodes
// to the same canonical content; anything else is kept as a generic payload
// so that signed bytes survive a round trip.
func DecodePayload(label string, raw json.RawMessage) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if typed := newTyped(KindForLabel(label)); typed != nil {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(typed); err == nil && sameContent(raw, typed) {
			return typed, nil
		}
	}
	return decodeGeneric(raw)
}

// CoercePayload converts caller-supplied data into a payload for label.
func CoercePayload(label string, data any) (Payload, error) {
	if data == nil {
		return nil, nil
	}
	if p, ok := data.(Payload); ok && p.Kind() == KindForLabel(label) {
		return p, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode assertion %q: %w", label, err)
	}
	return DecodePayload(label, raw)
}

func newTyped(k Kind) Payload {
	switch k {
	case KindActions:
		return &ActionsPayload{}
	case KindHash:
		return &HashPayload{}
	case KindCreativeWork:
		return &CreativeWorkPayload{}
	case KindWorkflow:
		return &WorkflowPayload{}
	case KindTrainingMining:
		return &TrainingMiningPayload{}
	case KindIngredient:
		return &IngredientPayload{}
	case KindThumbnail:
		return &ThumbnailPayload{}
	default:
		return nil
	}
}

func decodeGeneric(raw json.RawMessage) (Payload, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch t := v.(type) {
	case map[string]any:
		return GenericMap(t), nil
	case []any:
		return GenericList(t), nil
	default:
		return nil, fmt.Errorf("%w: data must be an object or array", ErrMalformedPayload)
	}
}

func sameContent(raw json.RawMessage, typed Payload) bool {
	b, err := json.Marshal(typed)
	if err != nil {
		return false
	}
	want, err := prunedJSON(raw)
	if err != nil {
		return false
	}
	got, err := prunedJSON(b)
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}
