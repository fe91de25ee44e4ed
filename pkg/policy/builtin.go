package policy

import "github.com/Nontawatt/OpenMediaTrust/pkg/manifest"

// Builtins returns the policies every engine starts with.
func Builtins() []Policy {
	return []Policy{
		{
			Name:        "marketing_content",
			Description: "Policy for marketing and public relations content",
			Version:     "1.0.0",
			Department:  "Marketing",
			Rules: []Rule{
				{
					Name:           "require_creative_work",
					Description:    "Must have CreativeWork assertion with author",
					Type:           RuleRequiredAssertion,
					Severity:       SeverityError,
					AssertionLabel: manifest.LabelCreativeWork,
				},
				{
					Name:           "require_workflow",
					Description:    "Must have enterprise workflow",
					Type:           RuleRequiredAssertion,
					Severity:       SeverityError,
					AssertionLabel: manifest.LabelWorkflow,
				},
				{
					Name:                 "public_classification",
					Description:          "Marketing content must be classified as public",
					Type:                 RuleClassificationConstraint,
					Severity:             SeverityError,
					ClassificationLevels: []manifest.Classification{manifest.ClassificationPublic},
				},
			},
		},
		{
			Name:        "legal_documents",
			Description: "Policy for legal and compliance documents",
			Version:     "1.0.0",
			Department:  "Legal",
			Rules: []Rule{
				{
					Name:           "require_hash",
					Description:    "Must have hash assertion for integrity",
					Type:           RuleRequiredAssertion,
					Severity:       SeverityError,
					AssertionLabel: manifest.LabelHash,
				},
				{
					Name:           "require_actions",
					Description:    "Must have complete action history",
					Type:           RuleRequiredAssertion,
					Severity:       SeverityError,
					AssertionLabel: manifest.LabelActions,
				},
				{
					Name:        "confidential_or_higher",
					Description: "Legal docs must be confidential or higher",
					Type:        RuleClassificationConstraint,
					Severity:    SeverityError,
					ClassificationLevels: []manifest.Classification{
						manifest.ClassificationConfidential,
						manifest.ClassificationSecret,
						manifest.ClassificationTopSecret,
					},
				},
			},
		},
	}
}
