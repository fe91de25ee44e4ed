package assertions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// ErrInvalidShape reports an assertion payload that does not match the shape
// expected for its label.
var ErrInvalidShape = errors.New("assertions: invalid shape")

var shapes = map[string]string{
	manifest.LabelActions: `{
		"type": "object",
		"required": ["actions"],
		"properties": {
			"actions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["action"],
					"properties": {"action": {"type": "string", "minLength": 1}}
				}
			}
		}
	}`,
	manifest.LabelHash: `{
		"type": "object",
		"required": ["name", "alg"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"alg": {"type": "string", "minLength": 1},
			"hash": {"type": "string", "pattern": "^[0-9a-f]*$"},
			"exclusions": {"type": "array"}
		}
	}`,
	manifest.LabelCreativeWork: `{
		"type": "object",
		"required": ["author"],
		"properties": {
			"author": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "object", "required": ["name"]}
			}
		}
	}`,
	manifest.LabelWorkflow: `{
		"type": "object",
		"required": ["workflow_id", "approval_chain", "compliance_check"],
		"properties": {
			"workflow_id": {"type": "string", "minLength": 1},
			"approval_chain": {
				"type": "array",
				"items": {"type": "object", "required": ["role", "user_id", "status"]}
			},
			"compliance_check": {"type": "object"},
			"classification": {"enum": ["public", "internal", "confidential", "secret", "top_secret"]}
		}
	}`,
	manifest.LabelTrainingMining: `{
		"type": "object",
		"required": ["use"],
		"properties": {
			"use": {
				"type": "object",
				"required": ["allowed"],
				"properties": {"allowed": {"type": "boolean"}}
			}
		}
	}`,
	manifest.LabelIngredient: `{
		"type": "object",
		"required": ["relationship", "uri"],
		"properties": {
			"relationship": {"type": "string", "minLength": 1},
			"uri": {"type": "string", "minLength": 1}
		}
	}`,
	manifest.LabelThumbnail: `{
		"type": "object",
		"required": ["format", "thumbnail"],
		"properties": {"thumbnail": {"type": "string", "contentEncoding": "base64"}}
	}`,
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileShapes() {
	compiled = make(map[string]*jsonschema.Schema, len(shapes))
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for label, src := range shapes {
		url := fmt.Sprintf("https://openmediatrust.local/assertions/%s.schema.json", label)
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			compileErr = fmt.Errorf("assertions: load schema %s: %w", label, err)
			return
		}
		s, err := c.Compile(url)
		if err != nil {
			compileErr = fmt.Errorf("assertions: compile schema %s: %w", label, err)
			return
		}
		compiled[label] = s
	}
}

// HasShape reports whether label has a shape check.
func HasShape(label string) bool {
	_, ok := shapes[label]
	return ok
}

// Validate checks a well-known assertion against its shape. Generic labels
// always pass.
func Validate(a *manifest.Assertion) error {
	if a == nil {
		return fmt.Errorf("%w: nil assertion", ErrInvalidShape)
	}
	compileOnce.Do(compileShapes)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[a.Label]
	if !ok {
		return nil
	}
	if a.Data == nil {
		return fmt.Errorf("%w: %s has no data", ErrInvalidShape, a.Label)
	}
	raw, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, a.Label, err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, a.Label, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, a.Label, err)
	}
	if a.Label == manifest.LabelHash {
		return validateHashAlg(a)
	}
	return nil
}

func validateHashAlg(a *manifest.Assertion) error {
	h, ok := a.Data.(*manifest.HashPayload)
	if !ok {
		return nil
	}
	alg := HashAlgorithm(h.Alg)
	size := alg.Size()
	if size == 0 {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, a.Label, fmt.Errorf("%w: %q", ErrUnsupportedHashAlg, h.Alg))
	}
	if h.Hash != "" && len(h.Hash) != size*2 {
		return fmt.Errorf("%w: %s: digest length %d does not match %s", ErrInvalidShape, a.Label, len(h.Hash), h.Alg)
	}
	return nil
}
