package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://folio@localhost/folio"
	cfg.Auth.AccessSecret = "access-secret-0123456789"
	cfg.Auth.RefreshSecret = "refresh-secret-0123456789"
	cfg.GitHub = GitHubConfig{
		ClientID:     "gh-client",
		ClientSecret: "gh-secret",
		RedirectURI:  "https://folio.example.com/auth/oauth/github/callback",
	}
	cfg.Firebase.ProjectID = "folio-test"
	return cfg
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "14d", want: 14 * 24 * time.Hour},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "", want: 0},
		{in: "xd", err: true},
		{in: "soon", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 15*time.Minute, cfg.Auth.GetAccessTokenTTL())
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.GetRefreshTokenTTL())
	assert.Equal(t, 10*time.Minute, cfg.Auth.GetOAuthStateTTL())
	assert.Equal(t, 50, cfg.Auth.GetLoginIDAttempts())
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.AccessSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSharedSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.RefreshSecret = cfg.Auth.AccessSecret
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingGitHub(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.ClientSecret = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateGoogleIsOptional(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.Google.Enabled())
	require.NoError(t, cfg.Validate())

	cfg.Google.ClientID = "google-client"
	assert.Error(t, cfg.Validate())

	cfg.Google.ClientSecret = "google-secret"
	cfg.Google.RedirectURI = "https://folio.example.com/auth/oauth/google/callback"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingFirebaseProject(t *testing.T) {
	cfg := validConfig()
	cfg.Firebase.ProjectID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                   "8080",
		"JWT_ACCESS_SECRET":      "env-access-secret-000",
		"JWT_REFRESH_SECRET":     "env-refresh-secret-000",
		"JWT_ACCESS_EXPIRES_IN":  "5m",
		"JWT_REFRESH_EXPIRES_IN": "7d",
		"REDIS_URL":              "redis://cache:6379/1",
		"GITHUB_CLIENT_ID":       "env-client",
	}

	cfg := Defaults()
	err := cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "env-access-secret-000", cfg.Auth.AccessSecret)
	assert.Equal(t, "env-refresh-secret-000", cfg.Auth.RefreshSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.GetAccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.GetRefreshTokenTTL())
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "env-client", cfg.GitHub.ClientID)
}

func TestApplyEnvRejectsBadDuration(t *testing.T) {
	cfg := Defaults()
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "JWT_ACCESS_EXPIRES_IN" {
			return "forever", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestFirebaseProjectFromServiceAccount(t *testing.T) {
	cfg := validConfig()
	cfg.Firebase.ProjectID = ""
	cfg.Firebase.ServiceAccountJSON = `{"type":"service_account","project_id":"from-json"}`

	require.NoError(t, cfg.resolveFirebaseProject())
	assert.Equal(t, "from-json", cfg.Firebase.ProjectID)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "folio.yaml")

	content := `
server:
  addr: ":9000"
database:
  driver: sqlite
  dsn: "file::memory:?cache=shared"
redis:
  url: "redis://localhost:6379/2"
auth:
  access_secret: "yaml-access-secret-01"
  refresh_secret: "yaml-refresh-secret-01"
  access_token_ttl: 10m
  refresh_token_ttl: 30d
github:
  client_id: yaml-client
  client_secret: yaml-secret
  redirect_uri: "https://folio.example.com/auth/oauth/github/callback"
firebase:
  project_id: yaml-project
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	for _, key := range []string{"PORT", "FOLIO_ADDR", "DATABASE_URL", "REDIS_URL", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "JWT_ACCESS_EXPIRES_IN", "JWT_REFRESH_EXPIRES_IN", "GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET", "GITHUB_REDIRECT_URI", "FIREBASE_PROJECT_ID", "FIREBASE_SERVICE_ACCOUNT_JSON", "FOLIO_DB_DRIVER"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Auth.GetAccessTokenTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.GetRefreshTokenTTL())
	assert.Equal(t, "yaml-project", cfg.Firebase.ProjectID)
}
