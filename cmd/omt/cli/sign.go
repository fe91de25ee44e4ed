package cli

import (
	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/authz"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/store"
)

var (
	signAlg   string
	signKey   string
	signPQKey string
	signCert  string
	signOut   string
)

var signCmd = &cobra.Command{
	Use:   "sign MANIFEST",
	Short: "Sign a manifest",
	Long: `Sign a manifest over its canonical form. Any existing signature is
replaced. Hybrid algorithms need both --key and --pq-key.

Without --cert the signature carries no certificate chain and verifiers
must pin the key with "omt verify --pubkey". When access control is
enabled the --actor needs the manifest:sign permission.`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func init() {
	f := signCmd.Flags()
	f.StringVar(&signAlg, "alg", "", "signing algorithm (default from config)")
	f.StringVar(&signKey, "key", "", "classical private key PEM (default from config)")
	f.StringVar(&signPQKey, "pq-key", "", "post-quantum private key PEM (default from config)")
	f.StringVar(&signCert, "cert", "", "certificate chain PEM (default from config)")
	f.StringVarP(&signOut, "out", "o", "", "write the signed manifest here (default: overwrite input)")
	rootCmd.AddCommand(signCmd)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func runSign(cmd *cobra.Command, args []string) error {
	c, err := readClaim(args[0])
	if err != nil {
		return err
	}
	alg := manifest.Algorithm(orDefault(signAlg, string(cfg.Signing.Algorithm)))
	err = signClaim(cmd, c, alg)
	if err == nil {
		err = writeClaim(orDefault(signOut, args[0]), c)
	}
	return recordAudit(cmd, store.AuditEntry{
		ManifestID: c.InstanceID,
		Operation:  store.OpSign,
		UserID:     currentActor(),
		Details:    map[string]any{"algorithm": string(alg)},
	}, err)
}

func signClaim(cmd *cobra.Command, c *manifest.Claim, alg manifest.Algorithm) error {
	if err := authorize(cmd, actor, authz.ManifestSign); err != nil {
		return err
	}
	material, err := loadSigningMaterial(alg,
		orDefault(signKey, cfg.Signing.PrivateKeyPath),
		orDefault(signPQKey, cfg.Signing.PostQuantumKey),
		orDefault(signCert, cfg.Signing.CertificateChain),
	)
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(alg, material.key,
		crypto.WithCertificateChain(material.chain...),
		crypto.WithTSA(cfg.Signing.TSA),
		crypto.WithSignerMetrics(provider.Metrics()),
	)
	if err != nil {
		return err
	}
	return signer.Sign(cmd.Context(), c)
}
