package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// parseEnv overlays environment variables. Unset variables leave the
// current value alone; malformed numbers are an error.
func parseEnv(cfg *Config) error {
	strs := map[string]*string{
		"DB_DRIVER":            &cfg.DBDriver,
		"DB_PATH":              &cfg.DBDSN,
		"JWT_SECRET":           &cfg.JWTSecret,
		"CIPHER_KEY":           &cfg.CipherKey,
		"CIPHER_SALT":          &cfg.CipherSalt,
		"PUBLIC_URL":           &cfg.PublicURL,
		"MAIL_HOST":            &cfg.MailHost,
		"MAIL_USER":            &cfg.MailUser,
		"MAIL_PASSWORD":        &cfg.MailPassword,
		"MAIL_FROM":            &cfg.MailFrom,
		"REDIS_ADDR":           &cfg.RedisAddr,
		"GITHUB_CLIENT_ID":     &cfg.GitHubClientID,
		"GITHUB_CLIENT_SECRET": &cfg.GitHubClientSecret,
		"GITHUB_CALLBACK_URL":  &cfg.GitHubCallbackURL,
		"ANON_LANDING_NODE":    &cfg.AnonLandingNode,
		"ADMIN_NAME":           &cfg.AdminName,
		"ADMIN_PASSWORD":       &cfg.AdminPassword,
		"LOG_LEVEL":            &cfg.LogLevel,
		"LOG_FORMAT":           &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                &cfg.Port,
		"MAIL_PORT":           &cfg.MailPort,
		"RATE_LIMIT_ATTEMPTS": &cfg.RateLimitAttempts,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s value %q", key, v)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":            &cfg.TokenTTL,
		"OUTBOX_POLL_INTERVAL": &cfg.OutboxPollInterval,
		"RATE_LIMIT_WINDOW":    &cfg.RateLimitWindow,
		"SESSION_IDLE_TTL":     &cfg.SessionIdleTTL,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s value %q", key, v)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("RESERVED_NAMES"); ok {
		cfg.ReservedNames = splitList(v)
	}
	if v, ok := os.LookupEnv("REQUIRE_CAPTCHA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid REQUIRE_CAPTCHA value %q", v)
		}
		cfg.RequireCaptcha = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
