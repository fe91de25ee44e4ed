// Package policyloader loads policy bundles from disk so that policies can
// change without a rebuild.
//
// A bundle is a YAML or JSON file holding policies and named CEL
// expressions. Each bundle is content addressed: Hash is the SHA-256 of the
// canonical JSON of the bundle with Hash cleared.
package policyloader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/policy"
)

// ErrHashMismatch reports a bundle whose declared hash does not match its
// content.
var ErrHashMismatch = errors.New("policyloader: bundle hash mismatch")

// Bundle is a versioned collection of policies and expressions.
type Bundle struct {
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Policies    []policy.Policy   `json:"policies" yaml:"policies"`
	Expressions map[string]string `json:"expressions,omitempty" yaml:"expressions,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Hash        string            `json:"hash,omitempty" yaml:"hash,omitempty"`
}

// ContentHash computes the bundle's content address.
func (b *Bundle) ContentHash() (string, error) {
	cp := *b
	cp.Hash = ""
	return canonicalize.CanonicalHash(&cp)
}

// Loader loads and keeps bundles from a directory.
type Loader struct {
	mu        sync.RWMutex
	bundles   map[string]*Bundle
	bundleDir string
	onReload  func(bundle *Bundle)
}

// NewLoader creates a loader reading from bundleDir.
func NewLoader(bundleDir string) *Loader {
	return &Loader{
		bundles:   make(map[string]*Bundle),
		bundleDir: bundleDir,
	}
}

// OnReload registers a callback invoked after a bundle is loaded.
func (l *Loader) OnReload(fn func(bundle *Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

func isBundleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadAll loads every .json, .yaml and .yml file of the directory in name
// order.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.bundleDir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.bundleDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isBundleFile(entry.Name()) {
			continue
		}
		if err := l.LoadFile(filepath.Join(l.bundleDir, entry.Name())); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile parses one bundle, validates its policies and checks or fills in
// its hash.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var bundle Bundle
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &bundle)
	} else {
		err = yaml.Unmarshal(data, &bundle)
	}
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}
	if bundle.Name == "" {
		bundle.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, p := range bundle.Policies {
		if err := policy.Validate(p); err != nil {
			return err
		}
	}

	sum, err := bundle.ContentHash()
	if err != nil {
		return fmt.Errorf("hash bundle: %w", err)
	}
	if bundle.Hash != "" && bundle.Hash != sum {
		return fmt.Errorf("%w: %s declares %s, content is %s", ErrHashMismatch, bundle.Name, bundle.Hash, sum)
	}
	bundle.Hash = sum

	l.mu.Lock()
	l.bundles[bundle.Name] = &bundle
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(&bundle)
	}
	return nil
}

// GetBundle returns a loaded bundle by name.
func (l *Loader) GetBundle(name string) (*Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[name]
	return b, ok
}

// AllBundles returns the loaded bundles sorted by name.
func (l *Loader) AllBundles() []*Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Bundle, 0, len(l.bundles))
	for _, b := range l.bundles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Install registers every bundle's expressions, then its policies, into e.
func (l *Loader) Install(e *policy.Engine) error {
	for _, b := range l.AllBundles() {
		if err := InstallBundle(e, b); err != nil {
			return err
		}
	}
	return nil
}

// InstallBundle registers one bundle into e.
func InstallBundle(e *policy.Engine, b *Bundle) error {
	names := make([]string, 0, len(b.Expressions))
	for n := range b.Expressions {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := e.RegisterExpression(n, b.Expressions[n]); err != nil {
			return fmt.Errorf("policyloader: bundle %s: %w", b.Name, err)
		}
	}
	for _, p := range b.Policies {
		if err := e.AddPolicy(p); err != nil {
			return fmt.Errorf("policyloader: bundle %s: %w", b.Name, err)
		}
	}
	return nil
}
