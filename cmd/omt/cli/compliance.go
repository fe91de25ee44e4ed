package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/compliance"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
)

var (
	complianceName    string
	complianceChecker string
)

var errComplianceFailed = errors.New("compliance check failed")

var complianceCmd = &cobra.Command{
	Use:   "compliance MANIFEST",
	Short: "Run a compliance policy against a manifest",
	Long: `Run a compliance policy (PDPA, trademark, legal review and similar
checks) against a manifest. Without --policy the policy is chosen from the
workflow classification.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompliance,
}

func init() {
	complianceCmd.Flags().StringVar(&complianceName, "policy", "", "compliance policy name")
	complianceCmd.Flags().StringVar(&complianceChecker, "checked-by", "", "auditor recorded on each result")
	rootCmd.AddCommand(complianceCmd)
}

func runCompliance(cmd *cobra.Command, args []string) error {
	c, err := readClaim(args[0])
	if err != nil {
		return err
	}
	report, err := checkClaimCompliance(cmd, c)
	entry := store.AuditEntry{
		ManifestID: c.InstanceID,
		Operation:  store.OpCompliance,
		UserID:     orDefault(complianceChecker, currentActor()),
	}
	if report != nil {
		entry.Details = map[string]any{
			"policy": report.PolicyName,
			"status": string(report.OverallStatus),
		}
	}
	return recordAudit(cmd, entry, err)
}

func checkClaimCompliance(cmd *cobra.Command, c *manifest.Claim) (*compliance.Report, error) {
	name := complianceName
	if name == "" {
		class := manifest.ClassificationInternal
		if w, err := c.Workflow(); err == nil && w.Classification != "" {
			class = w.Classification
		}
		name = compliance.PolicyFor(class)
	}

	report, err := compliance.NewEngine().CheckCompliance(cmd.Context(), c, name, complianceChecker)
	if err != nil {
		return nil, err
	}
	if jsonOut {
		if err := printJSON(report); err != nil {
			return report, err
		}
	} else {
		fmt.Printf("%s: %s\n", report.PolicyName, report.OverallStatus)
		for _, r := range report.Results {
			fmt.Printf("  %-8s %-22s %s\n", r.Status, r.Rule, r.Message)
		}
	}
	if report.OverallStatus == compliance.StatusFailed {
		return report, errComplianceFailed
	}
	return report, nil
}
