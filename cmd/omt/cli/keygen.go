package cli

import (
	gocrypto "crypto"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto/pqc"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var (
	keygenAlg  string
	keygenOut  string
	keygenName string
	keygenDays int
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate signing keys",
	Long: `Generate the key material for a signing algorithm into a directory.

Classical and hybrid algorithms produce signer.key and a self-signed
signer.crt. Post-quantum and hybrid algorithms produce pq.key and pq.pub.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenAlg, "alg", "", "signing algorithm (default from config)")
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "keys", "output directory")
	keygenCmd.Flags().StringVar(&keygenName, "cn", "OpenMediaTrust signer", "certificate common name")
	keygenCmd.Flags().IntVar(&keygenDays, "days", 365, "certificate validity in days")
	rootCmd.AddCommand(keygenCmd)
}

func classicalKeySize(alg manifest.Algorithm) (rsaBits, curve int) {
	switch alg {
	case manifest.AlgPS256:
		return 2048, 0
	case manifest.AlgPS384:
		return 3072, 0
	case manifest.AlgPS512:
		return 4096, 0
	case manifest.AlgES384:
		return 0, 384
	case manifest.AlgES512:
		return 0, 521
	default:
		return 0, 256
	}
}

func runKeygen(cmd *cobra.Command, args []string) error {
	alg := cfg.Signing.Algorithm
	if keygenAlg != "" {
		alg = manifest.Algorithm(keygenAlg)
	}
	classical, postQuantum := splitAlgorithm(alg)
	if classical == "" && postQuantum == "" {
		return fmt.Errorf("%w: %q", crypto.ErrUnsupportedAlgorithm, alg)
	}
	if postQuantum != "" {
		if _, err := mldsaFor(postQuantum); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(keygenOut, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", keygenOut, err)
	}

	var written []string
	write := func(name string, data []byte, mode os.FileMode) error {
		path := filepath.Join(keygenOut, name)
		if err := os.WriteFile(path, data, mode); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
		return nil
	}

	if classical != "" {
		var key gocrypto.Signer
		bits, curve := classicalKeySize(classical)
		var err error
		if bits > 0 {
			key, err = crypto.GenerateRSAKey(bits)
		} else {
			key, err = crypto.GenerateECDSAKey(curve)
		}
		if err != nil {
			return err
		}
		cert, err := crypto.SelfSignedCertificate(key, keygenName, cfg.Organization, time.Duration(keygenDays)*24*time.Hour)
		if err != nil {
			return err
		}
		keyPEM, err := crypto.EncodePrivateKeyPEM(key)
		if err != nil {
			return err
		}
		if err := write("signer.key", keyPEM, 0o600); err != nil {
			return err
		}
		chain := crypto.CertificateChain([]*x509.Certificate{cert}, nil)
		if err := write("signer.crt", []byte(chain[0]), 0o644); err != nil {
			return err
		}
	}

	if postQuantum != "" {
		kp, err := pqc.GenerateKey(postQuantum)
		if err != nil {
			return err
		}
		if err := write("pq.key", crypto.EncodePostQuantumPEM(postQuantum, kp.PrivateKey, true), 0o600); err != nil {
			return err
		}
		if err := write("pq.pub", crypto.EncodePostQuantumPEM(postQuantum, kp.PublicKey, false), 0o644); err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(map[string]any{"algorithm": alg, "files": written})
	}
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
