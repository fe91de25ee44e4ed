package manifest

import "time"

// WorkflowStep is one entry of an approval chain.
type WorkflowStep struct {
	Role      string    `json:"role"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Comments  string    `json:"comments,omitempty"`
}

// ComplianceCheck records the compliance gates a workflow has cleared.
type ComplianceCheck struct {
	PDPAApproved           bool   `json:"pdpa_approved"`
	TrademarkCleared       bool   `json:"trademark_cleared"`
	LegalReview            string `json:"legal_review,omitempty"`
	ExportControlPassed    bool   `json:"export_control_passed"`
	ClassificationVerified bool   `json:"classification_verified"`
}

// DefaultComplianceCheck is the record a new workflow starts with.
func DefaultComplianceCheck() ComplianceCheck {
	return ComplianceCheck{
		ExportControlPassed:    true,
		ClassificationVerified: true,
	}
}

// ComplianceUpdate carries partial compliance changes. Nil fields are left
// untouched by MergeCompliance.
type ComplianceUpdate struct {
	PDPAApproved           *bool
	TrademarkCleared       *bool
	LegalReview            *string
	ExportControlPassed    *bool
	ClassificationVerified *bool
}

// OrganizationalContext ties a workflow to a department and project.
type OrganizationalContext struct {
	Department string `json:"department,omitempty"`
	Project    string `json:"project,omitempty"`
}

// WorkflowPayload is the org.enterprise.workflow assertion body.
type WorkflowPayload struct {
	WorkflowID            string                 `json:"workflow_id"`
	ApprovalChain         []WorkflowStep         `json:"approval_chain"`
	ComplianceCheck       ComplianceCheck        `json:"compliance_check"`
	Classification        Classification         `json:"classification,omitempty"`
	RetentionPolicy       string                 `json:"retention_policy,omitempty"`
	OrganizationalContext *OrganizationalContext `json:"organizational_context,omitempty"`
}

func (*WorkflowPayload) Kind() Kind { return KindWorkflow }

// AppendStep adds a step to the end of the approval chain.
func (w *WorkflowPayload) AppendStep(step WorkflowStep) {
	w.ApprovalChain = append(w.ApprovalChain, step)
}

// MergeCompliance applies the non-nil fields of u.
func (w *WorkflowPayload) MergeCompliance(u ComplianceUpdate) {
	if u.PDPAApproved != nil {
		w.ComplianceCheck.PDPAApproved = *u.PDPAApproved
	}
	if u.TrademarkCleared != nil {
		w.ComplianceCheck.TrademarkCleared = *u.TrademarkCleared
	}
	if u.LegalReview != nil {
		w.ComplianceCheck.LegalReview = *u.LegalReview
	}
	if u.ExportControlPassed != nil {
		w.ComplianceCheck.ExportControlPassed = *u.ExportControlPassed
	}
	if u.ClassificationVerified != nil {
		w.ComplianceCheck.ClassificationVerified = *u.ClassificationVerified
	}
}

// Approved reports whether the chain has at least one step and its latest
// step is approved.
func (w *WorkflowPayload) Approved() bool {
	if len(w.ApprovalChain) == 0 {
		return false
	}
	return w.ApprovalChain[len(w.ApprovalChain)-1].Status == "approved"
}

// Department returns the organizational department, if any.
func (w *WorkflowPayload) Department() string {
	if w.OrganizationalContext == nil {
		return ""
	}
	return w.OrganizationalContext.Department
}
