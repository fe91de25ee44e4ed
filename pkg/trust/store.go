package trust

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
)

// TrustStore answers whether a credential blob from a signature's
// certificate chain is trusted.
type TrustStore interface {
	Trusted(blob string) bool
	Len() int
}

// CertificateSet is a flat set of trusted credential blobs. Membership is
// exact after trimming surrounding whitespace; no path validation or expiry
// check is performed.
type CertificateSet struct {
	mu    sync.RWMutex
	blobs map[string]struct{}
}

// NewCertificateSet returns a set holding blobs.
func NewCertificateSet(blobs ...string) *CertificateSet {
	s := &CertificateSet{blobs: make(map[string]struct{}, len(blobs))}
	s.Add(blobs...)
	return s
}

// Add inserts blobs. Empty entries are ignored.
func (s *CertificateSet) Add(blobs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range blobs {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		s.blobs[b] = struct{}{}
	}
}

// AddFile loads every certificate of a PEM bundle. Each certificate is
// stored in the encoding signers embed in chains.
func (s *CertificateSet) AddFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("trust: read %s: %w", path, err)
	}
	certs, err := crypto.ParseCertificateChainPEM(data)
	if err != nil {
		return fmt.Errorf("trust: %s: %w", path, err)
	}
	for _, c := range certs {
		s.Add(crypto.EncodeCertificatePEM(c))
	}
	return nil
}

func (s *CertificateSet) Trusted(blob string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[strings.TrimSpace(blob)]
	return ok
}

func (s *CertificateSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
