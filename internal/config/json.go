package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration accepts either a string such as "15m" or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("config: invalid duration %s", string(b))
	}
	return nil
}

// jsonConfig mirrors Config for decoding. Pointer fields distinguish "absent"
// from zero so the file only overrides what it names.
type jsonConfig struct {
	Port               *int      `json:"port"`
	DBDriver           *string   `json:"db_driver"`
	DBDSN              *string   `json:"db_dsn"`
	JWTSecret          *string   `json:"jwt_secret"`
	TokenTTL           *Duration `json:"token_ttl"`
	CipherKey          *string   `json:"cipher_key"`
	CipherSalt         *string   `json:"cipher_salt"`
	PublicURL          *string   `json:"public_url"`
	MailHost           *string   `json:"mail_host"`
	MailPort           *int      `json:"mail_port"`
	MailUser           *string   `json:"mail_user"`
	MailPassword       *string   `json:"mail_password"`
	MailFrom           *string   `json:"mail_from"`
	OutboxPollInterval *Duration `json:"outbox_poll_interval"`
	RedisAddr          *string   `json:"redis_addr"`
	RateLimitAttempts  *int      `json:"rate_limit_attempts"`
	RateLimitWindow    *Duration `json:"rate_limit_window"`
	GitHubClientID     *string   `json:"github_client_id"`
	GitHubClientSecret *string   `json:"github_client_secret"`
	GitHubCallbackURL  *string   `json:"github_callback_url"`
	ReservedNames      []string  `json:"reserved_names"`
	AnonLandingNode    *string   `json:"anon_landing_node"`
	RequireCaptcha     *bool     `json:"require_captcha"`
	AdminName          *string   `json:"admin_name"`
	AdminPassword      *string   `json:"admin_password"`
	SessionIdleTTL     *Duration `json:"session_idle_ttl"`
	LogLevel           *string   `json:"log_level"`
	LogFormat          *string   `json:"log_format"`
}

// parseJSON overlays the file named by -c / -config, if any.
func parseJSON(cfg *Config) error {
	path := configFileFlag(os.Args[1:])
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	return applyJSON(cfg, data)
}

func applyJSON(cfg *Config, data []byte) error {
	var j jsonConfig
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("config: decoding json: %w", err)
	}

	setInt(&cfg.Port, j.Port)
	setString(&cfg.DBDriver, j.DBDriver)
	setString(&cfg.DBDSN, j.DBDSN)
	setString(&cfg.JWTSecret, j.JWTSecret)
	setDuration(&cfg.TokenTTL, j.TokenTTL)
	setString(&cfg.CipherKey, j.CipherKey)
	setString(&cfg.CipherSalt, j.CipherSalt)
	setString(&cfg.PublicURL, j.PublicURL)
	setString(&cfg.MailHost, j.MailHost)
	setInt(&cfg.MailPort, j.MailPort)
	setString(&cfg.MailUser, j.MailUser)
	setString(&cfg.MailPassword, j.MailPassword)
	setString(&cfg.MailFrom, j.MailFrom)
	setDuration(&cfg.OutboxPollInterval, j.OutboxPollInterval)
	setString(&cfg.RedisAddr, j.RedisAddr)
	setInt(&cfg.RateLimitAttempts, j.RateLimitAttempts)
	setDuration(&cfg.RateLimitWindow, j.RateLimitWindow)
	setString(&cfg.GitHubClientID, j.GitHubClientID)
	setString(&cfg.GitHubClientSecret, j.GitHubClientSecret)
	setString(&cfg.GitHubCallbackURL, j.GitHubCallbackURL)
	if j.ReservedNames != nil {
		cfg.ReservedNames = j.ReservedNames
	}
	setString(&cfg.AnonLandingNode, j.AnonLandingNode)
	if j.RequireCaptcha != nil {
		cfg.RequireCaptcha = *j.RequireCaptcha
	}
	setString(&cfg.AdminName, j.AdminName)
	setString(&cfg.AdminPassword, j.AdminPassword)
	setDuration(&cfg.SessionIdleTTL, j.SessionIdleTTL)
	setString(&cfg.LogLevel, j.LogLevel)
	setString(&cfg.LogFormat, j.LogFormat)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
