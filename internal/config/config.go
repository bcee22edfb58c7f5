// Package config assembles runtime settings for the account server.
//
// Values are layered, later sources overriding earlier ones:
//
//	defaults → JSON file (-c / -config) → environment → command-line flags
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port int

	// DBDriver is "sqlite" (default) or "pgx".
	DBDriver string
	DBDSN    string

	JWTSecret string
	TokenTTL  time.Duration

	// CipherKey and CipherSalt derive the key that encrypts stored passwords.
	CipherKey  string
	CipherSalt string

	// PublicURL is the externally reachable base used in emailed links.
	PublicURL string

	MailHost     string
	MailPort     int
	MailUser     string
	MailPassword string
	MailFrom     string

	OutboxPollInterval time.Duration

	// RedisAddr enables request rate limiting when set.
	RedisAddr         string
	RateLimitAttempts int
	RateLimitWindow   time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	ReservedNames   []string
	AnonLandingNode string
	RequireCaptcha  bool

	// AdminName is seeded as an automated account when AdminPassword is set.
	AdminName     string
	AdminPassword string

	SessionIdleTTL time.Duration

	LogLevel  string
	LogFormat string
}

// LoadDefaults fills c with development defaults.
// The secrets are placeholders and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.DBDriver = "sqlite"
	c.DBDSN = "data/accounts.db"
	c.JWTSecret = "dev-secret-change-me-please"
	c.TokenTTL = 12 * time.Hour
	c.CipherKey = "dev-cipher-key-change-me"
	c.CipherSalt = "accountkeeper"
	c.PublicURL = "http://localhost:8080"
	c.MailPort = 587
	c.MailFrom = "noreply@localhost"
	c.OutboxPollInterval = 10 * time.Second
	c.RateLimitAttempts = 5
	c.RateLimitWindow = 15 * time.Minute
	c.ReservedNames = []string{"admin", "administrator", "everyone"}
	c.RequireCaptcha = true
	c.AdminName = "admin"
	c.SessionIdleTTL = 30 * time.Minute
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig builds a Config from all sources and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "pgx" {
		return fmt.Errorf("config: unsupported db driver %q", c.DBDriver)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT secret must be at least 16 characters")
	}
	if c.CipherKey == "" {
		return fmt.Errorf("config: cipher key is required")
	}
	if c.RateLimitAttempts <= 0 {
		return fmt.Errorf("config: rate limit attempts must be positive")
	}
	return nil
}

// MailEnabled reports whether notifications are delivered by SMTP rather
// than only logged.
func (c *Config) MailEnabled() bool {
	return strings.TrimSpace(c.MailHost) != ""
}

// GitHubEnabled reports whether the GitHub OAuth routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
