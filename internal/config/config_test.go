package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	saved := os.Args
	os.Args = append([]string{"accountkeeper"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 12*time.Hour, c.TokenTTL)
	assert.Equal(t, []string{"admin", "administrator", "everyone"}, c.ReservedNames)
	assert.True(t, c.RequireCaptcha)
	assert.False(t, c.MailEnabled())
	assert.False(t, c.GitHubEnabled())
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
		"port": 9000,
		"db_dsn": "from-json.db",
		"mail_host": "smtp.example.com",
		"token_ttl": "1h",
		"reserved_names": ["root"]
	}`), 0o600))

	withArgs(t, "-c", file, "-d", "from-flag.db")
	t.Setenv("PORT", "9100")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("REQUIRE_CAPTCHA", "false")

	c, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Port, "env overrides json")
	assert.Equal(t, "from-flag.db", c.DBDSN, "flag overrides json")
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.Equal(t, 2*time.Minute, c.RateLimitWindow)
	assert.Equal(t, []string{"root"}, c.ReservedNames)
	assert.False(t, c.RequireCaptcha)
	assert.True(t, c.MailEnabled())
	assert.Equal(t, "sqlite", c.DBDriver, "untouched values keep defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad port", env: map[string]string{"PORT": "eighty"}},
		{name: "bad duration", env: map[string]string{"TOKEN_TTL": "forever"}},
		{name: "bad bool", env: map[string]string{"REQUIRE_CAPTCHA": "maybe"}},
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "unknown driver", args: []string{"-D", "mysql"}},
		{name: "missing config file", args: []string{"-c", "/does/not/exist.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withArgs(t, tt.args...)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestApplyJSON_Durations(t *testing.T) {
	var c Config
	c.LoadDefaults()

	require.NoError(t, applyJSON(&c, []byte(`{"outbox_poll_interval": 1000000000, "session_idle_ttl": "5m"}`)))
	assert.Equal(t, time.Second, c.OutboxPollInterval)
	assert.Equal(t, 5*time.Minute, c.SessionIdleTTL)

	assert.Error(t, applyJSON(&c, []byte(`{"session_idle_ttl": true}`)))
	assert.Error(t, applyJSON(&c, []byte(`{`)))
}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "conf.json", "-x", "1"},
			allowed: []string{"-c"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"--config=alt.json", "-p", "80"},
			allowed: []string{"--config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "flag without value",
			args:    []string{"-p", "-d", "x.db"},
			allowed: []string{"-p", "-d"},
			want:    []string{"-p", "-d", "x.db"},
		},
		{
			name:    "nothing allowed",
			args:    []string{"-p", "80"},
			allowed: nil,
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, filterArgs(tt.args, tt.allowed)); diff != "" {
				t.Errorf("filterArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
