package cli

import (
	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/authz"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
)

var (
	approveOut       string
	approveStep      assertions.Approval
	approvePDPA      bool
	approveTM        bool
	approveExport    bool
	approveLegal     string
	approveRetention string
)

var approveCmd = &cobra.Command{
	Use:   "approve MANIFEST",
	Short: "Record an approval step and compliance flags",
	Long: `Append a step to the manifest's workflow approval chain and update its
compliance record. Only flags that are set change the record. A signed
manifest must be signed again afterwards.

When access control is enabled the approver needs workflow:approve, or
workflow:reject for a rejected step.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	f := approveCmd.Flags()
	f.StringVarP(&approveOut, "out", "o", "", "write the manifest here (default: overwrite input)")
	f.StringVar(&approveStep.ApproverID, "approver", "", "approver id")
	f.StringVar(&approveStep.ApproverName, "approver-name", "", "approver display name")
	f.StringVar(&approveStep.Role, "role", "reviewer", "approver role")
	f.StringVar(&approveStep.Status, "status", "approved", "step status: approved, rejected, pending")
	f.StringVar(&approveStep.Comments, "comments", "", "free-text comments")
	f.BoolVar(&approvePDPA, "pdpa", false, "mark PDPA consent as approved")
	f.BoolVar(&approveTM, "trademark", false, "mark trademarks as cleared")
	f.BoolVar(&approveExport, "export-control", true, "export control passed")
	f.StringVar(&approveLegal, "legal-review", "", "legal review outcome: passed, failed, pending")
	f.StringVar(&approveRetention, "retention", "", "retention policy name")
	_ = approveCmd.MarkFlagRequired("approver")
	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	c, err := readClaim(args[0])
	if err != nil {
		return err
	}
	err = approveClaim(cmd, c)
	if err == nil {
		err = writeClaim(orDefault(approveOut, args[0]), c)
	}
	details := map[string]any{"status": approveStep.Status}
	if approveStep.Comments != "" {
		details["comments"] = approveStep.Comments
	}
	return recordAudit(cmd, store.AuditEntry{
		ManifestID: c.InstanceID,
		Operation:  store.OpApprove,
		UserID:     approveStep.ApproverID,
		UserName:   approveStep.ApproverName,
		UserRole:   approveStep.Role,
		Details:    details,
	}, err)
}

// approvePermission is the permission a step with the given status needs.
func approvePermission(status string) authz.Permission {
	if status == "rejected" {
		return authz.WorkflowReject
	}
	return authz.WorkflowApprove
}

func approveClaim(cmd *cobra.Command, c *manifest.Claim) error {
	if err := authorize(cmd, approveStep.ApproverID, approvePermission(approveStep.Status)); err != nil {
		return err
	}
	creator := assertions.NewCreator(cfg.Generator, cfg.Organization, cfg.TenantID)
	if err := creator.AddApproval(c, approveStep); err != nil {
		return err
	}

	var u manifest.ComplianceUpdate
	flags := cmd.Flags()
	if flags.Changed("pdpa") {
		u.PDPAApproved = &approvePDPA
	}
	if flags.Changed("trademark") {
		u.TrademarkCleared = &approveTM
	}
	if flags.Changed("export-control") {
		u.ExportControlPassed = &approveExport
	}
	if flags.Changed("legal-review") {
		u.LegalReview = &approveLegal
	}
	if err := creator.UpdateCompliance(c, u); err != nil {
		return err
	}
	if approveRetention != "" {
		w, err := c.Workflow()
		if err != nil {
			return err
		}
		w.RetentionPolicy = approveRetention
	}
	return nil
}
