package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  listenAddress: ":9090"
site:
  name: "Diaspora Enterprise"
  tagline: "Your partner in real estate investments"
mail:
  host: smtp.office365.com
  port: 587
  tlsMode: starttls
  senderAddress: noreply@diasporaenterprise.com
  adminAddress: admin@diasporaenterprise.com
identity:
  clientID: client-123
  tenantID: tenant-456
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "Diaspora Enterprise", cfg.Site.Name)
	assert.Equal(t, "smtp.office365.com", cfg.Mail.Host)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, TLSModeStartTLS, cfg.Mail.TLSMode)
	assert.Equal(t, "client-123", cfg.Identity.ClientID)
	assert.Equal(t, "tenant-456", cfg.Identity.TenantID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "mail: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeConfig(t, "site:\n  name: EnvSite\n")
	t.Setenv("WEBSITE_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "EnvSite", cfg.Site.Name)
}

func TestDefaults(t *testing.T) {
	var cfg Config
	cfg.Defaults()

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, TLSModeStartTLS, cfg.Mail.TLSMode)
	assert.Equal(t, 30, cfg.Mail.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Mail.RetryCount)
	assert.Equal(t, 10000, cfg.Mail.RetryBackoffMs)
	assert.Equal(t, 100, cfg.Mail.QueueSize)
	assert.Equal(t, 60, cfg.Admin.SessionTTLMinutes)
	assert.Equal(t, "website-audit", cfg.Audit.Topic)
}

func TestDefaultsSecureByDefault(t *testing.T) {
	var cfg Config
	cfg.Defaults()
	// Zero value config should be secure: insecure skip flags must stay false
	assert.False(t, cfg.Mail.InsecureSkipVerify, "mail.insecureSkipVerify should be false by default")
	assert.False(t, cfg.Audit.InsecureSkipVerify, "audit.insecureSkipVerify should be false by default")
}

func TestDefaultsResolveSecretsFromEnv(t *testing.T) {
	t.Setenv("WEBSITE_OAUTH_CLIENT_SECRET", "s3cret")
	t.Setenv("WEBSITE_ADMIN_PASSWORD", "hunter2")

	var cfg Config
	cfg.Defaults()

	assert.Equal(t, "s3cret", cfg.Identity.ClientSecret)
	assert.Equal(t, "hunter2", cfg.Admin.Password)
}

func TestDefaultsKeepExplicitValues(t *testing.T) {
	t.Setenv("WEBSITE_OAUTH_CLIENT_SECRET", "from-env")

	cfg := Config{Identity: Identity{ClientSecret: "from-file"}}
	cfg.Defaults()

	assert.Equal(t, "from-file", cfg.Identity.ClientSecret)
}
