package cli

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto/pqc"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func readClaim(path string) (*manifest.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var c manifest.Claim
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &c, nil
}

// writeClaim writes c to path, or to stdout when path is empty or "-".
func writeClaim(path string, c *manifest.Claim) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signingMaterial is the loaded key material and the certificate chain
// embedded in signatures.
type signingMaterial struct {
	key   crypto.PrivateKey
	chain []string
}

func loadSigningMaterial(alg manifest.Algorithm, keyPath, pqPath, certPath string) (*signingMaterial, error) {
	var (
		m     signingMaterial
		certs []*x509.Certificate
		pqPub []byte
	)
	classical, postQuantum := splitAlgorithm(alg)

	if classical != "" {
		if keyPath == "" {
			return nil, fmt.Errorf("%s needs a private key (--key)", alg)
		}
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		k, err := crypto.ParsePrivateKeyPEM(data)
		if err != nil {
			return nil, err
		}
		m.key.Classical = k
		if certPath != "" {
			data, err := os.ReadFile(certPath)
			if err != nil {
				return nil, fmt.Errorf("reading certificate chain: %w", err)
			}
			if certs, err = crypto.ParseCertificateChainPEM(data); err != nil {
				return nil, err
			}
		}
	}

	if postQuantum != "" {
		if _, err := mldsaFor(postQuantum); err != nil {
			return nil, err
		}
		if pqPath == "" {
			return nil, fmt.Errorf("%s needs a post-quantum key (--pq-key)", alg)
		}
		data, err := os.ReadFile(pqPath)
		if err != nil {
			return nil, fmt.Errorf("reading post-quantum key: %w", err)
		}
		keyAlg, raw, private, err := crypto.ParsePostQuantumPEM(data)
		if err != nil {
			return nil, err
		}
		if !private || keyAlg != postQuantum {
			return nil, fmt.Errorf("%w: %s holds a %s key", crypto.ErrKeyMismatch, pqPath, keyAlg)
		}
		m.key.PostQuantum = raw
		if pqPub, err = publicKeyOf(keyAlg, raw); err != nil {
			return nil, err
		}
	}

	m.chain = crypto.CertificateChain(certs, pqPub)
	return &m, nil
}

func splitAlgorithm(alg manifest.Algorithm) (classical, postQuantum manifest.Algorithm) {
	switch alg.Family() {
	case manifest.FamilyClassical:
		return alg, ""
	case manifest.FamilyPostQuantum:
		return "", alg
	case manifest.FamilyHybrid:
		c, p, _ := alg.Components()
		return c, p
	}
	return "", ""
}

// mldsaFor returns the ML-DSA primitive for alg. The CLI carries no SLH-DSA
// primitive, so those tags fail before any key file is read.
func mldsaFor(alg manifest.Algorithm) (*pqc.MLDSA, error) {
	ps, err := pqc.Lookup(alg)
	if err != nil {
		return nil, err
	}
	if ps.Family != pqc.FamilyMLDSA {
		return nil, fmt.Errorf("%w: no primitive registered for %s (%s)", crypto.ErrPrimitiveUnavailable, ps.Family, alg)
	}
	return pqc.NewMLDSA(alg)
}

func publicKeyOf(alg manifest.Algorithm, private []byte) ([]byte, error) {
	m, err := mldsaFor(alg)
	if err != nil {
		return nil, err
	}
	return m.PublicKeyOf(private)
}

// loadPublicKey reads pinned verification keys. Each file holds a
// certificate, a classical private key or a post-quantum key; a hybrid
// signature needs one classical and one post-quantum file.
func loadPublicKey(paths ...string) (crypto.PublicKey, error) {
	var pk crypto.PublicKey
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return crypto.PublicKey{}, fmt.Errorf("reading key: %w", err)
		}
		if alg, raw, private, err := crypto.ParsePostQuantumPEM(data); err == nil {
			if private {
				if raw, err = publicKeyOf(alg, raw); err != nil {
					return crypto.PublicKey{}, err
				}
			}
			pk.PostQuantum = raw
			continue
		}
		if certs, err := crypto.ParseCertificateChainPEM(data); err == nil {
			pk.Classical = certs[0].PublicKey
			continue
		}
		k, err := crypto.ParsePrivateKeyPEM(data)
		if err != nil {
			return crypto.PublicKey{}, fmt.Errorf("%s holds neither a certificate nor a key", path)
		}
		pk.Classical = k.Public()
	}
	if pk.Classical == nil && len(pk.PostQuantum) == 0 {
		return crypto.PublicKey{}, crypto.ErrNoPublicKey
	}
	return pk, nil
}
