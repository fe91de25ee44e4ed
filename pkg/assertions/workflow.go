package assertions

import (
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// Approval is a step appended to an existing workflow.
type Approval struct {
	ApproverID   string
	ApproverName string
	Role         string
	Status       string
	Comments     string
}

// AddApproval appends a step to the approval chain of a workflow assertion.
// Any other assertion yields manifest.ErrWrongAssertionKind.
func (b *Builder) AddApproval(a *manifest.Assertion, ap Approval) error {
	w, err := a.Workflow()
	if err != nil {
		return err
	}
	w.AppendStep(manifest.WorkflowStep{
		Role:      ap.Role,
		UserID:    ap.ApproverID,
		UserName:  text(ap.ApproverName),
		Timestamp: b.clock(),
		Status:    ap.Status,
		Comments:  text(ap.Comments),
	})
	return nil
}

// UpdateCompliance merges flag changes into a workflow assertion.
func UpdateCompliance(a *manifest.Assertion, u manifest.ComplianceUpdate) error {
	w, err := a.Workflow()
	if err != nil {
		return err
	}
	w.MergeCompliance(u)
	return nil
}
