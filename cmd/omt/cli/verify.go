package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/attest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
	"github.com/Nontawatt/OpenMediaTrust/pkg/trust"
)

var errNotValid = errors.New("manifest is not valid")

var (
	verifyTrusted    []string
	verifyPubKeys    []string
	verifyStrict     bool
	verifyCustody    bool
	verifyReceiptKey string
	verifyReceiptOut string
)

var verifyCmd = &cobra.Command{
	Use:   "verify MANIFEST",
	Short: "Evaluate the trust level of a manifest",
	Long: `Run the structural, assertion, signature, certificate and custody checks
and print the trust report. The command fails when the manifest is not valid.

With --pubkey the signature is checked against pinned keys instead of the
keys in its certificate chain. Pass one classical file (certificate or
private key) and, for post-quantum or hybrid signatures, one post-quantum
key file.

With --receipt-key the report is also sealed in a signed JWT receipt that
"omt receipt" can check later.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringSliceVar(&verifyTrusted, "trusted", nil, "trusted certificate PEM files (default from config)")
	f.StringSliceVar(&verifyPubKeys, "pubkey", nil, "pinned verification key PEM files")
	f.BoolVar(&verifyStrict, "strict", false, "treat warnings as failures")
	f.BoolVar(&verifyCustody, "full-custody", false, "also check action ordering and ingredient hashes")
	f.StringVar(&verifyReceiptKey, "receipt-key", "", "private key PEM used to sign a verification receipt")
	f.StringVar(&verifyReceiptOut, "receipt-out", "", "also write the receipt token to this file")
	rootCmd.AddCommand(verifyCmd)
}

func newEvaluator() (*trust.Evaluator, error) {
	paths := verifyTrusted
	if len(paths) == 0 {
		paths = cfg.Trust.TrustedCerts
	}
	certs := trust.NewCertificateSet()
	for _, p := range paths {
		if err := certs.AddFile(p); err != nil {
			return nil, err
		}
	}
	opts := []trust.Option{
		trust.WithTrustStore(certs),
		trust.WithMetrics(provider.Metrics()),
	}
	if len(verifyPubKeys) > 0 {
		pk, err := loadPublicKey(verifyPubKeys...)
		if err != nil {
			return nil, err
		}
		v, err := crypto.NewVerifier(crypto.WithPublicKey(pk))
		if err != nil {
			return nil, err
		}
		opts = append(opts, trust.WithVerifier(v))
	}
	if verifyCustody {
		opts = append(opts, trust.WithCustodyChecks(
			trust.ActionsPresent{},
			trust.TemporalOrdering{},
			trust.IngredientHashes{Resolver: trust.FileResolver},
		))
	}
	return trust.NewEvaluator(opts...)
}

func runVerify(cmd *cobra.Command, args []string) error {
	c, err := readClaim(args[0])
	if err != nil {
		return err
	}
	report, err := verifyClaim(cmd, c)
	entry := store.AuditEntry{
		ManifestID: c.InstanceID,
		Operation:  store.OpVerify,
		UserID:     currentActor(),
	}
	if report != nil {
		entry.Details = map[string]any{
			"trust_level": string(report.TrustLevel),
			"valid":       report.Valid,
			"pinned_key":  len(verifyPubKeys) > 0,
		}
	}
	return recordAudit(cmd, entry, err)
}

func verifyClaim(cmd *cobra.Command, c *manifest.Claim) (*trust.Report, error) {
	ev, err := newEvaluator()
	if err != nil {
		return nil, err
	}
	report := ev.Evaluate(cmd.Context(), c, verifyStrict || cfg.Trust.Strict)

	var receipt string
	if verifyReceiptKey != "" {
		if receipt, err = issueReceipt(report); err != nil {
			return report, err
		}
		if verifyReceiptOut != "" {
			if err := os.WriteFile(verifyReceiptOut, []byte(receipt+"\n"), 0o644); err != nil {
				return report, fmt.Errorf("writing receipt: %w", err)
			}
		}
	}

	if jsonOut {
		out := map[string]any{"report": report}
		if receipt != "" {
			out["receipt"] = receipt
		}
		if err := printJSON(out); err != nil {
			return report, err
		}
	} else {
		printReport(c, report)
		if receipt != "" {
			fmt.Printf("\nReceipt: %s\n", receipt)
		}
	}
	if !report.Valid {
		return report, errNotValid
	}
	return report, nil
}

func issueReceipt(report *trust.Report) (string, error) {
	data, err := os.ReadFile(verifyReceiptKey)
	if err != nil {
		return "", fmt.Errorf("reading receipt key: %w", err)
	}
	key, err := crypto.ParsePrivateKeyPEM(data)
	if err != nil {
		return "", err
	}
	return attest.Issue(report, key, cfg.Signing.ReceiptTTL)
}

func printReport(c *manifest.Claim, r *trust.Report) {
	fmt.Printf("Manifest:    %s\n", r.ManifestID)
	fmt.Printf("Format:      %s\n", c.Format)
	fmt.Printf("Trust level: %s\n", r.TrustLevel)
	fmt.Printf("Valid:       %t\n\n", r.Valid)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tRESULT")
	for _, s := range r.Stages {
		result := "pass"
		if !s.Pass {
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\n", s.Name, result)
	}
	_ = w.Flush()

	for _, i := range r.Issues {
		fmt.Printf("error   %s: %s\n", i.Code, i.Message)
	}
	for _, i := range r.Warnings {
		fmt.Printf("warning %s: %s\n", i.Code, i.Message)
	}
}
