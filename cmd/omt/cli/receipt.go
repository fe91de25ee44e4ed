package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/attest"
)

var receiptPubKey string

var receiptCmd = &cobra.Command{
	Use:   "receipt TOKEN",
	Short: "Check a verification receipt",
	Long: `Check the signature, audience and expiry of a receipt issued by
"omt verify --receipt-key" and print what it attests. TOKEN is the token
itself or a file holding it.`,
	Args: cobra.ExactArgs(1),
	RunE: runReceipt,
}

func init() {
	receiptCmd.Flags().StringVar(&receiptPubKey, "pubkey", "", "certificate or private key PEM of the receipt issuer")
	_ = receiptCmd.MarkFlagRequired("pubkey")
	rootCmd.AddCommand(receiptCmd)
}

func readToken(arg string) string {
	if data, err := os.ReadFile(arg); err == nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(arg)
}

func runReceipt(cmd *cobra.Command, args []string) error {
	pk, err := loadPublicKey(receiptPubKey)
	if err != nil {
		return err
	}
	if pk.Classical == nil {
		return errors.New("receipts are signed with classical keys; --pubkey holds a post-quantum key")
	}
	r, err := attest.Parse(readToken(args[0]), pk.Classical)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(r)
	}
	fmt.Printf("Manifest:    %s\n", r.ManifestID)
	fmt.Printf("Trust level: %s\n", r.TrustLevel)
	fmt.Printf("Valid:       %t\n", r.Valid)
	fmt.Printf("Verified at: %s\n", r.VerifiedAt.Format(time.RFC3339))
	fmt.Printf("Issuer:      %s\n", r.Issuer)
	if r.ExpiresAt != nil {
		fmt.Printf("Expires:     %s\n", r.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
