// Package crypto produces and verifies claim signatures. Algorithms are
// dispatched through a registry of schemes: classical RSA-PSS and ECDSA,
// post-quantum primitives and hybrids composed from two registry entries.
package crypto

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto/pqc"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

// Scheme signs and verifies canonical bytes for one algorithm tag.
type Scheme interface {
	Sign(message []byte, key PrivateKey) ([]byte, error)
	Verify(message, signature []byte, key PublicKey) bool
}

// Registry maps algorithm tags to schemes. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemes map[manifest.Algorithm]Scheme
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemes: make(map[manifest.Algorithm]Scheme)}
}

// Register installs or replaces the scheme for alg.
func (r *Registry) Register(alg manifest.Algorithm, s Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[alg] = s
}

// Lookup returns the scheme for alg.
func (r *Registry) Lookup(alg manifest.Algorithm) (Scheme, error) {
	r.mu.RLock()
	s, ok := r.schemes[alg]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	if alg.Family() == manifest.FamilyPostQuantum {
		return nil, fmt.Errorf("%w: %s", ErrPrimitiveUnavailable, alg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, string(alg))
}

// Algorithms lists the registered tags in sorted order.
func (r *Registry) Algorithms() []manifest.Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]manifest.Algorithm, 0, len(r.schemes))
	for alg := range r.schemes {
		out = append(out, alg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegistryOption customizes DefaultRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	primitives map[manifest.Algorithm]pqc.Primitive
}

// WithPrimitive injects a post-quantum primitive for alg, replacing the
// built-in one if any.
func WithPrimitive(alg manifest.Algorithm, p pqc.Primitive) RegistryOption {
	return func(c *registryConfig) { c.primitives[alg] = p }
}

// DefaultRegistry registers RSA-PSS, ECDSA, ML-DSA and both hybrids.
// SLH-DSA tags are registered only when a primitive is injected.
func DefaultRegistry(opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{primitives: make(map[manifest.Algorithm]pqc.Primitive)}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := NewRegistry()
	for _, alg := range []manifest.Algorithm{manifest.AlgPS256, manifest.AlgPS384, manifest.AlgPS512} {
		s, err := NewRSAPSS(alg)
		if err != nil {
			return nil, err
		}
		r.Register(alg, s)
	}
	for _, alg := range []manifest.Algorithm{manifest.AlgES256, manifest.AlgES384, manifest.AlgES512} {
		s, err := NewECDSA(alg)
		if err != nil {
			return nil, err
		}
		r.Register(alg, s)
	}

	for _, ps := range pqc.ParameterSets() {
		prim, ok := cfg.primitives[ps.Algorithm]
		if !ok && ps.Family == pqc.FamilyMLDSA {
			m, err := pqc.NewMLDSA(ps.Algorithm)
			if err != nil {
				return nil, err
			}
			prim = m
		}
		if prim == nil {
			continue
		}
		s, err := NewPostQuantum(ps.Algorithm, prim)
		if err != nil {
			return nil, err
		}
		r.Register(ps.Algorithm, s)
	}

	for _, alg := range []manifest.Algorithm{manifest.AlgHybridRSAMLDSA65, manifest.AlgHybridECDSAMLDSA65} {
		h, err := NewHybrid(r, alg)
		if err != nil {
			return nil, err
		}
		r.Register(alg, h)
	}
	return r, nil
}
