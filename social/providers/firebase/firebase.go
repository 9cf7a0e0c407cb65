package firebase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-folio-auth/social"
)

const (
	ProviderName = "firebase"

	// DefaultJWKSURL serves the public keys that sign Firebase ID tokens.
	DefaultJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	issuerPrefix = "https://securetoken.google.com/"

	authTimeLeeway = 5 * time.Second
)

// Config holds Firebase ID token verification settings.
type Config struct {
	ProjectID string
	JWKSURL   string
	// Issuer defaults to https://securetoken.google.com/<ProjectID>.
	Issuer          string
	RefreshInterval time.Duration
	HTTPClient      *http.Client
	// OnRefreshError receives background key refresh failures.
	OnRefreshError func(err error)
}

// Verifier implements social.AssertionVerifier for Firebase ID tokens.
type Verifier struct {
	projectID string
	issuer    string
	jwks      *keyfunc.JWKS
}

var _ social.AssertionVerifier = (*Verifier)(nil)

type firebaseClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	AuthTime      int64  `json:"auth_time"`
}

// New fetches the signing keys and returns a Verifier. The key set refreshes
// in the background until ctx is cancelled or Close is called.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase: project id is required")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = issuerPrefix + cfg.ProjectID
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Hour
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx:                 ctx,
		Client:              client,
		RefreshInterval:     cfg.RefreshInterval,
		RefreshTimeout:      10 * time.Second,
		RefreshRateLimit:    time.Minute,
		RefreshUnknownKID:   true,
		RefreshErrorHandler: cfg.OnRefreshError,
	})
	if err != nil {
		return nil, fmt.Errorf("firebase: fetch signing keys: %w", err)
	}

	return &Verifier{
		projectID: cfg.ProjectID,
		issuer:    cfg.Issuer,
		jwks:      jwks,
	}, nil
}

// Name implements social.AssertionVerifier.
func (v *Verifier) Name() string {
	return ProviderName
}

// Verify checks the ID token signature, issuer, audience, expiry and
// auth_time and maps its claims to a profile.
func (v *Verifier) Verify(ctx context.Context, assertion string) (*social.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims := &firebaseClaims{}
	token, err := jwt.ParseWithClaims(assertion, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, verifyError(err)
	}
	if !token.Valid {
		return nil, verifyError(errors.New("token not valid"))
	}
	if claims.Subject == "" {
		return nil, verifyError(errors.New("token missing subject"))
	}
	if claims.AuthTime <= 0 || time.Unix(claims.AuthTime, 0).After(time.Now().Add(authTimeLeeway)) {
		return nil, verifyError(errors.New("token auth_time must be in the past"))
	}

	return mapProfile(claims), nil
}

// Close stops the background key refresh.
func (v *Verifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func mapProfile(claims *firebaseClaims) *social.Profile {
	profile := &social.Profile{
		Provider:       ProviderName,
		ProviderUserID: claims.Subject,
		Name:           claims.Name,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
	}

	if claims.Email != "" {
		profile.LoginHint = "g_" + social.EmailLocalPart(claims.Email)
	} else {
		profile.LoginHint = "fb_" + social.SubjectPrefix(claims.Subject, 8)
	}

	return profile
}

func verifyError(err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    ProviderName,
		Operation:   "verify",
		Code:        "invalid_token",
		Description: err.Error(),
		Err:         err,
	}
}
