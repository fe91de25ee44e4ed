package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nontawatt/OpenMediaTrust/pkg/authz"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

var envKeys = []string{
	"OMT_CLAIM_GENERATOR", "OMT_ORGANIZATION", "OMT_TENANT_ID",
	"OMT_SIGNING_ALGORITHM", "OMT_PRIVATE_KEY", "OMT_PQ_KEY", "OMT_CERT_CHAIN",
	"OMT_TSA", "OMT_RECEIPT_TTL", "OMT_TRUSTED_CERTS", "OMT_STRICT",
	"OMT_POLICY_DIR", "OMT_DB_DRIVER", "OMT_DB_DSN", "OMT_LOG_LEVEL",
	"OMT_LOG_FORMAT", "OMT_OTEL_ENABLED", "OMT_OTEL_ENDPOINT", "OMT_OTEL_INSECURE",
	"OMT_AUDIT_ENABLED", "OMT_ACCESS_ENABLED",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "OpenMediaTrust/1.0", cfg.Generator)
	assert.Equal(t, manifest.AlgPS256, cfg.Signing.Algorithm)
	assert.Equal(t, 24*time.Hour, cfg.Signing.ReceiptTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.Trust.Strict)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Audit.Enabled)
	assert.False(t, cfg.Access.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OMT_SIGNING_ALGORITHM", "HYBRID-RSA-ML-DSA-65")
	t.Setenv("OMT_TRUSTED_CERTS", "a.pem, b.pem,,")
	t.Setenv("OMT_STRICT", "true")
	t.Setenv("OMT_DB_DRIVER", "postgres")
	t.Setenv("OMT_DB_DSN", "postgres://omt@db:5432/omt?sslmode=disable")
	t.Setenv("OMT_RECEIPT_TTL", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, manifest.AlgHybridRSAMLDSA65, cfg.Signing.Algorithm)
	assert.Equal(t, []string{"a.pem", "b.pem"}, cfg.Trust.TrustedCerts)
	assert.True(t, cfg.Trust.Strict)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 90*time.Minute, cfg.Signing.ReceiptTTL)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := map[string]string{
		"OMT_STRICT":            "sometimes",
		"OMT_RECEIPT_TTL":       "a day",
		"OMT_SIGNING_ALGORITHM": "rs256",
		"OMT_LOG_LEVEL":         "verbose",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_EnvWins(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "omt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
claim_generator: Newsroom/2.3
organization: Acme
signing:
  algorithm: es384
  private_key: keys/signer.pem
  receipt_ttl: 2h
trust:
  trusted_certs: [certs/root.pem]
policy_dir: /etc/omt/policies
log:
  level: debug
  format: json
telemetry:
  sample_rate: 0.25
`), 0o600))
	t.Setenv("OMT_ORGANIZATION", "Acme Thailand")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Newsroom/2.3", cfg.Generator)
	assert.Equal(t, "Acme Thailand", cfg.Organization)
	assert.Equal(t, manifest.AlgES384, cfg.Signing.Algorithm)
	assert.Equal(t, "keys/signer.pem", cfg.Signing.PrivateKeyPath)
	assert.Equal(t, 2*time.Hour, cfg.Signing.ReceiptTTL)
	assert.Equal(t, []string{"certs/root.pem"}, cfg.Trust.TrustedCerts)
	assert.Equal(t, "/etc/omt/policies", cfg.PolicyDir)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Database.Driver, "unset keys keep defaults")

	oc := cfg.Observability("1.2.3")
	assert.Equal(t, "1.2.3", oc.ServiceVersion)
	assert.InDelta(t, 0.25, oc.SampleRate, 1e-9)
	assert.False(t, oc.Enabled)
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("signing: [unterminated"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)

	rate := filepath.Join(t.TempDir(), "rate.yaml")
	require.NoError(t, os.WriteFile(rate, []byte("telemetry:\n  sample_rate: 3\n"), 0o600))
	_, err = LoadFile(rate)
	assert.Error(t, err)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "OpenMediaTrust/1.0", cfg.Generator)
}

func TestLoadFile_AccessControl(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "omt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audit:
  enabled: true
access:
  enabled: true
  roles:
    - name: desk-editor
      permissions: ["manifest:sign"]
      inherits: [editor]
  users:
    - id: somchai
      name: Somchai P.
      roles: [desk-editor]
    - id: intern
      roles: [creator]
`), 0o600))
	t.Setenv("OMT_AUDIT_ENABLED", "false")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.Audit.Enabled, "env wins")
	assert.True(t, cfg.Access.Enabled)

	az, err := cfg.Authorizer()
	require.NoError(t, err)
	assert.True(t, az.Check("somchai", authz.ManifestSign, authz.ManifestUpdate, authz.ManifestCreate))
	assert.False(t, az.Check("intern", authz.ManifestSign))
}

func TestLoadFile_AccessControlErrors(t *testing.T) {
	for name, body := range map[string]string{
		"unknown role":       "access:\n  users:\n    - id: u\n      roles: [janitor]\n",
		"unknown permission": "access:\n  roles:\n    - name: r\n      permissions: [\"manifest:teleport\"]\n",
	} {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(t.TempDir(), "omt.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := LoadFile(path)
			assert.ErrorContains(t, err, "config: access")
		})
	}
}
