package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
)

var (
	storeTenant      string
	storeLimit       int
	storeAuditLimit  int
	storeAuditVerify bool
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Persist manifests in the configured database",
}

var storePutCmd = &cobra.Command{
	Use:   "put MANIFEST...",
	Short: "Store manifests, replacing any with the same instance id",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStorePut,
}

var storeGetCmd = &cobra.Command{
	Use:   "get INSTANCE_ID",
	Short: "Print a stored manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored manifests, newest first",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete INSTANCE_ID",
	Short: "Delete a stored manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreDelete,
}

var storeAuditCmd = &cobra.Command{
	Use:   "audit INSTANCE_ID",
	Short: "Show the audit trail of a manifest, newest first",
	Long: `Show the audit trail recorded for a manifest by sign, approve, verify
and compliance when auditing is enabled. With --verify the hash chain of
the whole trail is checked first.`,
	Args: cobra.ExactArgs(1),
	RunE: runStoreAudit,
}

func init() {
	storeAuditCmd.Flags().IntVar(&storeAuditLimit, "limit", 100, "maximum entries")
	storeAuditCmd.Flags().BoolVar(&storeAuditVerify, "verify", false, "check the audit hash chain")
	storeListCmd.Flags().StringVar(&storeTenant, "tenant", "", "only list this tenant (default from config)")
	storeListCmd.Flags().IntVar(&storeLimit, "limit", 50, "maximum rows")
	storeCmd.AddCommand(storePutCmd, storeGetCmd, storeListCmd, storeDeleteCmd, storeAuditCmd)
	rootCmd.AddCommand(storeCmd)
}

func openStore(cmd *cobra.Command) (*store.SQLStore, error) {
	return store.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.DSN)
}

func runStorePut(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for _, path := range args {
		c, err := readClaim(path)
		if err != nil {
			return err
		}
		rec, err := s.Put(cmd.Context(), c)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", rec.InstanceID, rec.ClaimHash)
	}
	return nil
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	rec, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeClaim("-", rec.Claim)
}

func runStoreList(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	recs, err := s.List(cmd.Context(), orDefault(storeTenant, cfg.TenantID), storeLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		type row struct {
			InstanceID string    `json:"instance_id"`
			TenantID   string    `json:"tenant_id,omitempty"`
			Format     string    `json:"format"`
			Signed     bool      `json:"signed"`
			ClaimHash  string    `json:"claim_hash"`
			StoredAt   time.Time `json:"stored_at"`
		}
		rows := make([]row, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, row{r.InstanceID, r.TenantID, r.Format, r.Signed, r.ClaimHash, r.StoredAt})
		}
		return printJSON(rows)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE ID\tFORMAT\tSIGNED\tSTORED")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.InstanceID, r.Format, r.Signed, r.StoredAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.Delete(cmd.Context(), args[0])
}

func runStoreAudit(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if storeAuditVerify {
		if err := s.VerifyAuditChain(cmd.Context(), args[0]); err != nil {
			return err
		}
	}
	entries, err := s.AuditLogs(cmd.Context(), args[0], storeAuditLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(entries)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tOPERATION\tUSER\tROLE\tSTATUS\tTIME")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Sequence, e.Operation, e.UserID, e.UserRole, e.Status, e.Timestamp.Format(time.RFC3339))
	}
	return w.Flush()
}
