package manifest

import (
	"strings"
	"time"
)

// Algorithm identifies a signature scheme by its wire tag.
type Algorithm string

const (
	AlgPS256 Algorithm = "ps256"
	AlgPS384 Algorithm = "ps384"
	AlgPS512 Algorithm = "ps512"
	AlgES256 Algorithm = "es256"
	AlgES384 Algorithm = "es384"
	AlgES512 Algorithm = "es512"

	AlgMLDSA44 Algorithm = "ml-dsa-44"
	AlgMLDSA65 Algorithm = "ml-dsa-65"
	AlgMLDSA87 Algorithm = "ml-dsa-87"

	AlgSLHDSASHA2128s Algorithm = "slh-dsa-sha2-128s"
	AlgSLHDSASHA2256s Algorithm = "slh-dsa-sha2-256s"

	AlgHybridRSAMLDSA65   Algorithm = "hybrid-rsa-ml-dsa-65"
	AlgHybridECDSAMLDSA65 Algorithm = "hybrid-ecdsa-ml-dsa-65"
)

// Family groups algorithms by how their key material and signature bytes
// are shaped.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyClassical
	FamilyPostQuantum
	FamilyHybrid
)

func (f Family) String() string {
	switch f {
	case FamilyClassical:
		return "classical"
	case FamilyPostQuantum:
		return "post-quantum"
	case FamilyHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Family reports the algorithm family of a tag. Unknown tags map to
// FamilyUnknown.
func (a Algorithm) Family() Family {
	switch a {
	case AlgPS256, AlgPS384, AlgPS512, AlgES256, AlgES384, AlgES512:
		return FamilyClassical
	case AlgMLDSA44, AlgMLDSA65, AlgMLDSA87, AlgSLHDSASHA2128s, AlgSLHDSASHA2256s:
		return FamilyPostQuantum
	case AlgHybridRSAMLDSA65, AlgHybridECDSAMLDSA65:
		return FamilyHybrid
	default:
		return FamilyUnknown
	}
}

// Components returns the classical and post-quantum halves of a hybrid tag.
func (a Algorithm) Components() (classical, postQuantum Algorithm, ok bool) {
	switch a {
	case AlgHybridRSAMLDSA65:
		return AlgPS256, AlgMLDSA65, true
	case AlgHybridECDSAMLDSA65:
		return AlgES256, AlgMLDSA65, true
	default:
		return "", "", false
	}
}

// IsRSA reports whether a classical tag uses RSA-PSS.
func (a Algorithm) IsRSA() bool {
	return strings.HasPrefix(string(a), "ps")
}

// Signature seals a claim. Value is computed over the canonical bytes of the
// claim with this field removed.
type Signature struct {
	Algorithm Algorithm `json:"alg"`
	// CertificateChain holds PEM certificates for classical keys and base64
	// public key blobs for post-quantum keys. Hybrid chains carry both.
	CertificateChain []string  `json:"certificate_chain"`
	Timestamp        time.Time `json:"timestamp"`
	TSA              string    `json:"tsa,omitempty"`
	Value            []byte    `json:"signature_value"`
}
