package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Server holds the HTTP listener configuration.
type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
}

// Site holds branding and static-content configuration for the marketing pages.
type Site struct {
	Name    string `yaml:"name"`
	Tagline string `yaml:"tagline"`
	BaseURL string `yaml:"baseURL"`
	// AssetsDir is the directory containing the prebuilt marketing pages
	// (home, team, story) served as static content.
	AssetsDir string `yaml:"assetsDir"`
}

// Database holds the contact store configuration.
type Database struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`
}

// TLS modes for the SMTP connection.
const (
	TLSModeNone     = "none"     // plaintext, no upgrade
	TLSModeStartTLS = "starttls" // connect plaintext, require STARTTLS upgrade
	TLSModeImplicit = "implicit" // TLS from the first byte (SMTPS)
)

// Mail holds the outbound SMTP configuration.
//
// When Username and Password are both set the transport authenticates with
// them directly; otherwise it requires the OAuth2 client-credentials flow
// configured in Identity.
type Mail struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	TLSMode            string `yaml:"tlsMode"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	TimeoutSeconds     int    `yaml:"timeoutSeconds"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	SenderAddress string `yaml:"senderAddress"`
	SenderName    string `yaml:"senderName"`
	// AdminAddress receives contact-form notifications.
	AdminAddress string `yaml:"adminAddress"`

	RetryCount     int `yaml:"retryCount"`
	RetryBackoffMs int `yaml:"retryBackoffMs"`
	QueueSize      int `yaml:"queueSize"`
}

// Identity holds the OAuth2 client-credentials configuration used to
// authenticate against the mail provider via SASL XOAUTH2.
type Identity struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	TenantID     string `yaml:"tenantID"`
	// TokenURL overrides the derived authority token endpoint. Mainly for
	// tests and sovereign clouds; leave empty for the public cloud endpoint.
	TokenURL string   `yaml:"tokenURL"`
	Scopes   []string `yaml:"scopes"`
}

// Admin holds the admin API authentication configuration.
type Admin struct {
	// Password guards the admin login endpoint. Prefer the
	// WEBSITE_ADMIN_PASSWORD environment variable over the config file.
	Password string `yaml:"password"`
	// TokenSecret signs the HS256 session tokens issued on login.
	TokenSecret       string `yaml:"tokenSecret"`
	SessionTTLMinutes int    `yaml:"sessionTTLMinutes"`
}

// Audit holds the optional Kafka audit-sink configuration. When Brokers is
// empty, audit events only go to the structured log.
type Audit struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	SASLMechanism string `yaml:"saslMechanism"` // "", "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"
	SASLUsername  string `yaml:"saslUsername"`
	SASLPassword  string `yaml:"saslPassword"`

	TLSEnabled         bool   `yaml:"tlsEnabled"`
	TLSCACert          string `yaml:"tlsCACert"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	Site     Site     `yaml:"site"`
	Database Database `yaml:"database"`
	Mail     Mail     `yaml:"mail"`
	Identity Identity `yaml:"identity"`
	Admin    Admin    `yaml:"admin"`
	Audit    Audit    `yaml:"audit"`
}

// Load loads the website configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The config file path can also be overridden via the WEBSITE_CONFIG_PATH
// environment variable.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("WEBSITE_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open website config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}
	return config, nil
}

// Defaults fills unset fields with sensible values and resolves secrets
// from the environment. Secrets are never expected inline in the file on
// production deployments.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Site.Name == "" {
		c.Site.Name = "Diaspora Enterprise"
	}
	if c.Site.AssetsDir == "" {
		c.Site.AssetsDir = "./site/dist"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/website.db"
	}

	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.TLSMode == "" {
		c.Mail.TLSMode = TLSModeStartTLS
	}
	if c.Mail.TimeoutSeconds <= 0 {
		c.Mail.TimeoutSeconds = 30
	}
	if c.Mail.RetryCount <= 0 {
		c.Mail.RetryCount = 3
	}
	if c.Mail.RetryBackoffMs <= 0 {
		c.Mail.RetryBackoffMs = 10000
	}
	if c.Mail.QueueSize <= 0 {
		c.Mail.QueueSize = 100
	}
	if c.Mail.Password == "" {
		c.Mail.Password = os.Getenv("WEBSITE_SMTP_PASSWORD")
	}

	if c.Identity.ClientID == "" {
		c.Identity.ClientID = os.Getenv("WEBSITE_OAUTH_CLIENT_ID")
	}
	if c.Identity.ClientSecret == "" {
		c.Identity.ClientSecret = os.Getenv("WEBSITE_OAUTH_CLIENT_SECRET")
	}
	if c.Identity.TenantID == "" {
		c.Identity.TenantID = os.Getenv("WEBSITE_OAUTH_TENANT_ID")
	}

	if c.Admin.Password == "" {
		c.Admin.Password = os.Getenv("WEBSITE_ADMIN_PASSWORD")
	}
	if c.Admin.TokenSecret == "" {
		c.Admin.TokenSecret = os.Getenv("WEBSITE_ADMIN_TOKEN_SECRET")
	}
	if c.Admin.SessionTTLMinutes <= 0 {
		c.Admin.SessionTTLMinutes = 60
	}

	if c.Audit.Topic == "" {
		c.Audit.Topic = "website-audit"
	}
	if c.Audit.SASLPassword == "" {
		c.Audit.SASLPassword = os.Getenv("WEBSITE_AUDIT_SASL_PASSWORD")
	}
}
