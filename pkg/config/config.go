// Package config loads signer, verifier and storage settings from a YAML
// profile and OMT_* environment variables. Environment values win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nontawatt/OpenMediaTrust/pkg/authz"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
	"github.com/Nontawatt/OpenMediaTrust/pkg/observability"
)

// Config holds runtime configuration.
type Config struct {
	Generator    string `yaml:"claim_generator"`
	Organization string `yaml:"organization"`
	TenantID     string `yaml:"tenant_id"`

	Signing   SigningConfig   `yaml:"signing"`
	Trust     TrustConfig     `yaml:"trust"`
	PolicyDir string          `yaml:"policy_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
	Access    AccessConfig    `yaml:"access"`
}

// SigningConfig selects the algorithm and key material.
type SigningConfig struct {
	Algorithm        manifest.Algorithm `yaml:"algorithm"`
	PrivateKeyPath   string             `yaml:"private_key"`
	PostQuantumKey   string             `yaml:"post_quantum_key"`
	CertificateChain string             `yaml:"certificate_chain"`
	TSA              string             `yaml:"tsa"`
	ReceiptTTL       time.Duration      `yaml:"receipt_ttl"`
}

// TrustConfig controls verification.
type TrustConfig struct {
	TrustedCerts []string `yaml:"trusted_certs"`
	Strict       bool     `yaml:"strict"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuditConfig turns on the audit trail written by sign, approve, verify and
// compliance. Entries go to the configured database.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AccessConfig gates sign and approve on role-based permissions. Roles
// extend the built-in set.
type AccessConfig struct {
	Enabled bool         `yaml:"enabled"`
	Roles   []authz.Role `yaml:"roles"`
	Users   []authz.User `yaml:"users"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Insecure bool    `yaml:"insecure"`
	Sample   float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Generator: "OpenMediaTrust/1.0",
		Signing: SigningConfig{
			Algorithm:  manifest.AlgPS256,
			ReceiptTTL: 24 * time.Hour,
		},
		PolicyDir: "policies",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:omt.db",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Endpoint: "localhost:4317",
			Sample:   1.0,
		},
	}
}

// Load returns the defaults overlaid with the environment.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile reads a YAML profile over the defaults, then applies the
// environment. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Generator, "OMT_CLAIM_GENERATOR")
	setString(&c.Organization, "OMT_ORGANIZATION")
	setString(&c.TenantID, "OMT_TENANT_ID")
	if v := os.Getenv("OMT_SIGNING_ALGORITHM"); v != "" {
		c.Signing.Algorithm = manifest.Algorithm(strings.ToLower(v))
	}
	setString(&c.Signing.PrivateKeyPath, "OMT_PRIVATE_KEY")
	setString(&c.Signing.PostQuantumKey, "OMT_PQ_KEY")
	setString(&c.Signing.CertificateChain, "OMT_CERT_CHAIN")
	setString(&c.Signing.TSA, "OMT_TSA")
	if v := os.Getenv("OMT_RECEIPT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OMT_RECEIPT_TTL: %w", err)
		}
		c.Signing.ReceiptTTL = d
	}
	if v := os.Getenv("OMT_TRUSTED_CERTS"); v != "" {
		c.Trust.TrustedCerts = splitList(v)
	}
	if err := setBool(&c.Trust.Strict, "OMT_STRICT"); err != nil {
		return err
	}
	setString(&c.PolicyDir, "OMT_POLICY_DIR")
	setString(&c.Database.Driver, "OMT_DB_DRIVER")
	setString(&c.Database.DSN, "OMT_DB_DSN")
	setString(&c.Log.Level, "OMT_LOG_LEVEL")
	setString(&c.Log.Format, "OMT_LOG_FORMAT")
	if err := setBool(&c.Telemetry.Enabled, "OMT_OTEL_ENABLED"); err != nil {
		return err
	}
	setString(&c.Telemetry.Endpoint, "OMT_OTEL_ENDPOINT")
	if err := setBool(&c.Telemetry.Insecure, "OMT_OTEL_INSECURE"); err != nil {
		return err
	}
	if err := setBool(&c.Audit.Enabled, "OMT_AUDIT_ENABLED"); err != nil {
		return err
	}
	return setBool(&c.Access.Enabled, "OMT_ACCESS_ENABLED")
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Generator) == "" {
		return fmt.Errorf("config: claim_generator is required")
	}
	if c.Signing.Algorithm.Family() == manifest.FamilyUnknown {
		return fmt.Errorf("config: unknown signing algorithm %q", c.Signing.Algorithm)
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Telemetry.Sample < 0 || c.Telemetry.Sample > 1 {
		return fmt.Errorf("config: sample_rate %v outside [0, 1]", c.Telemetry.Sample)
	}
	if _, err := c.Authorizer(); err != nil {
		return fmt.Errorf("config: access: %w", err)
	}
	return nil
}

// Authorizer builds the access engine from the built-in roles plus the
// configured roles and users.
func (c *Config) Authorizer() (*authz.Engine, error) {
	e := authz.NewEngine()
	for _, r := range c.Access.Roles {
		if err := e.AddRole(r); err != nil {
			return nil, err
		}
	}
	for _, u := range c.Access.Users {
		if err := e.AddUser(u); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Observability converts telemetry settings for observability.New.
func (c *Config) Observability(version string) *observability.Config {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = version
	oc.Enabled = c.Telemetry.Enabled
	oc.OTLPEndpoint = c.Telemetry.Endpoint
	oc.Insecure = c.Telemetry.Insecure
	oc.SampleRate = c.Telemetry.Sample
	return oc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
