// Package config loads the folio auth server configuration from a YAML file
// with environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	GitHub   GitHubConfig   `yaml:"github"`
	Google   GoogleConfig   `yaml:"google"`
	Firebase FirebaseConfig `yaml:"firebase"`
	OIDC     OIDCConfig     `yaml:"oidc"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// RateLimit is the number of auth requests allowed per client per
	// RateWindow. Zero disables the limiter.
	RateLimit  int      `yaml:"rate_limit"`
	RateWindow Duration `yaml:"rate_window"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// AutoMigrate creates missing tables on startup
	AutoMigrate bool `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// AuthConfig carries token secrets and lifetimes
type AuthConfig struct {
	AccessSecret    string   `yaml:"access_secret"`
	RefreshSecret   string   `yaml:"refresh_secret"`
	AccessTokenTTL  Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL Duration `yaml:"refresh_token_ttl"`
	Issuer          string   `yaml:"issuer"`
	OAuthStateTTL   Duration `yaml:"oauth_state_ttl"`
	LoginIDAttempts int      `yaml:"login_id_attempts"`
}

func (a AuthConfig) GetAccessSecret() string           { return a.AccessSecret }
func (a AuthConfig) GetRefreshSecret() string          { return a.RefreshSecret }
func (a AuthConfig) GetAccessTokenTTL() time.Duration  { return a.AccessTokenTTL.Std() }
func (a AuthConfig) GetRefreshTokenTTL() time.Duration { return a.RefreshTokenTTL.Std() }
func (a AuthConfig) GetIssuer() string                 { return a.Issuer }
func (a AuthConfig) GetOAuthStateTTL() time.Duration   { return a.OAuthStateTTL.Std() }
func (a AuthConfig) GetLoginIDAttempts() int           { return a.LoginIDAttempts }

type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// GoogleConfig enables the Google authorization-code flow when ClientID is set
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// Enabled reports whether the Google OAuth provider is configured
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != ""
}

type FirebaseConfig struct {
	ProjectID string `yaml:"project_id"`
	// ServiceAccountJSON is the raw service account document; its
	// project_id is used when ProjectID is empty.
	ServiceAccountJSON string `yaml:"service_account_json"`
	JWKSURL            string `yaml:"jwks_url"`
}

// OIDCConfig enables a generic OIDC assertion provider when IssuerURL is set
type OIDCConfig struct {
	Name      string `yaml:"name"`
	IssuerURL string `yaml:"issuer_url"`
	ClientID  string `yaml:"client_id"`
	JWKSURL   string `yaml:"jwks_url"`
}

// Enabled reports whether an OIDC provider is configured
func (o OIDCConfig) Enabled() bool {
	return o.IssuerURL != ""
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used before file and env overrides
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			RateLimit:       60,
			RateWindow:      Duration(time.Minute),
		},
		Database: DatabaseConfig{
			Driver:      "postgres",
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Auth: AuthConfig{
			AccessTokenTTL:  Duration(15 * time.Minute),
			RefreshTokenTTL: Duration(14 * 24 * time.Hour),
			OAuthStateTTL:   Duration(10 * time.Minute),
			LoginIDAttempts: 50,
		},
		OIDC: OIDCConfig{
			Name: "google",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (optional), applies environment overrides and validates
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.resolveFirebaseProject(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
	str("FOLIO_ADDR", &c.Server.Addr)
	str("FOLIO_DB_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)
	str("REDIS_URL", &c.Redis.URL)
	str("FOLIO_REDIS_KEY_PREFIX", &c.Redis.KeyPrefix)
	str("JWT_ACCESS_SECRET", &c.Auth.AccessSecret)
	str("JWT_REFRESH_SECRET", &c.Auth.RefreshSecret)
	str("FOLIO_JWT_ISSUER", &c.Auth.Issuer)
	str("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	str("GITHUB_REDIRECT_URI", &c.GitHub.RedirectURI)
	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("GOOGLE_REDIRECT_URI", &c.Google.RedirectURI)
	str("FIREBASE_PROJECT_ID", &c.Firebase.ProjectID)
	str("FIREBASE_SERVICE_ACCOUNT_JSON", &c.Firebase.ServiceAccountJSON)
	str("FOLIO_OIDC_ISSUER_URL", &c.OIDC.IssuerURL)
	str("FOLIO_OIDC_CLIENT_ID", &c.OIDC.ClientID)
	str("FOLIO_LOG_LEVEL", &c.Log.Level)

	if err := dur("JWT_ACCESS_EXPIRES_IN", &c.Auth.AccessTokenTTL); err != nil {
		return err
	}
	if err := dur("JWT_REFRESH_EXPIRES_IN", &c.Auth.RefreshTokenTTL); err != nil {
		return err
	}

	if v, ok := lookup("FOLIO_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOLIO_RATE_LIMIT: %w", err)
		}
		c.Server.RateLimit = n
	}

	return nil
}

func (c *Config) resolveFirebaseProject() error {
	if c.Firebase.ProjectID != "" || c.Firebase.ServiceAccountJSON == "" {
		return nil
	}

	var sa struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(c.Firebase.ServiceAccountJSON), &sa); err != nil {
		return fmt.Errorf("parse firebase service account: %w", err)
	}
	c.Firebase.ProjectID = sa.ProjectID
	return nil
}

// Validate fails fast on missing secrets and provider credentials
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Database, validation.By(validateDatabase)),
		validation.Field(&c.Redis, validation.By(validateRedis)),
		validation.Field(&c.Auth, validation.By(validateAuth)),
		validation.Field(&c.GitHub, validation.By(validateGitHub)),
		validation.Field(&c.Google, validation.By(validateGoogle)),
		validation.Field(&c.Firebase, validation.By(validateFirebase)),
		validation.Field(&c.OIDC, validation.By(validateOIDC)),
	)
}

func validateDatabase(value any) error {
	db, _ := value.(DatabaseConfig)
	return validation.ValidateStruct(&db,
		validation.Field(&db.Driver, validation.Required, validation.In("postgres", "sqlite")),
		validation.Field(&db.DSN, validation.Required),
	)
}

func validateRedis(value any) error {
	r, _ := value.(RedisConfig)
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
	)
}

func validateAuth(value any) error {
	a, _ := value.(AuthConfig)
	return validation.ValidateStruct(&a,
		validation.Field(&a.AccessSecret, validation.Required, validation.Length(16, 0)),
		validation.Field(&a.RefreshSecret,
			validation.Required,
			validation.Length(16, 0),
			validation.By(func(v any) error {
				if s, _ := v.(string); s != "" && s == a.AccessSecret {
					return errors.New("must differ from access_secret")
				}
				return nil
			}),
		),
		validation.Field(&a.AccessTokenTTL, validation.By(positiveDuration)),
		validation.Field(&a.RefreshTokenTTL, validation.By(positiveDuration)),
	)
}

func validateGitHub(value any) error {
	g, _ := value.(GitHubConfig)
	return validation.ValidateStruct(&g,
		validation.Field(&g.ClientID, validation.Required),
		validation.Field(&g.ClientSecret, validation.Required),
		validation.Field(&g.RedirectURI, validation.Required, is.URL),
	)
}

func validateGoogle(value any) error {
	g, _ := value.(GoogleConfig)
	if !g.Enabled() {
		return nil
	}
	return validation.ValidateStruct(&g,
		validation.Field(&g.ClientSecret, validation.Required),
		validation.Field(&g.RedirectURI, validation.Required, is.URL),
	)
}

func validateFirebase(value any) error {
	f, _ := value.(FirebaseConfig)
	return validation.ValidateStruct(&f,
		validation.Field(&f.ProjectID, validation.Required),
	)
}

func validateOIDC(value any) error {
	o, _ := value.(OIDCConfig)
	if !o.Enabled() {
		return nil
	}
	return validation.ValidateStruct(&o,
		validation.Field(&o.Name, validation.Required),
		validation.Field(&o.ClientID, validation.Required),
	)
}

func positiveDuration(value any) error {
	d, _ := value.(Duration)
	if d <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}
