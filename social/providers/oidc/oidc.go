package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/goliatone/go-folio-auth/social"
)

// Config holds settings for verifying OIDC ID tokens such as Google
// Sign-In credentials.
type Config struct {
	// Name is the provider identifier used in routes, e.g. "google".
	Name      string
	IssuerURL string
	ClientID  string
	// JWKSURL skips discovery and verifies against this key set.
	JWKSURL string
	// LoginPrefix prefixes the subject based login id when the token
	// carries no email. Defaults to Name.
	LoginPrefix string
	HTTPClient  *http.Client
}

// Verifier implements social.AssertionVerifier using go-oidc.
type Verifier struct {
	name        string
	loginPrefix string
	client      *http.Client
	verifier    *gooidc.IDTokenVerifier
}

var _ social.AssertionVerifier = (*Verifier)(nil)

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// New builds a Verifier. Without JWKSURL the issuer discovery document is
// fetched to locate the key set.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Name == "" {
		return nil, errors.New("oidc: provider name is required")
	}
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("oidc %s: issuer and client id are required", cfg.Name)
	}
	if cfg.LoginPrefix == "" {
		cfg.LoginPrefix = cfg.Name
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	v := &Verifier{
		name:        cfg.Name,
		loginPrefix: cfg.LoginPrefix,
		client:      client,
	}
	oidcConfig := &gooidc.Config{ClientID: cfg.ClientID}

	if cfg.JWKSURL != "" {
		keySet := gooidc.NewRemoteKeySet(gooidc.ClientContext(ctx, client), cfg.JWKSURL)
		v.verifier = gooidc.NewVerifier(cfg.IssuerURL, keySet, oidcConfig)
		return v, nil
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc %s: discovery: %w", cfg.Name, err)
	}
	v.verifier = provider.Verifier(oidcConfig)

	return v, nil
}

// Name implements social.AssertionVerifier.
func (v *Verifier) Name() string {
	return v.name
}

// Verify implements social.AssertionVerifier.
func (v *Verifier) Verify(ctx context.Context, assertion string) (*social.Profile, error) {
	idToken, err := v.verifier.Verify(gooidc.ClientContext(ctx, v.client), assertion)
	if err != nil {
		return nil, v.verifyError(err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, v.verifyError(err)
	}

	profile := &social.Profile{
		Provider:       v.name,
		ProviderUserID: idToken.Subject,
		Name:           claims.Name,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
	}
	if claims.Email != "" {
		profile.LoginHint = "g_" + social.EmailLocalPart(claims.Email)
	} else {
		profile.LoginHint = strings.ToLower(v.loginPrefix) + "_" + social.SubjectPrefix(idToken.Subject, 8)
	}

	return profile, nil
}

func (v *Verifier) verifyError(err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    v.name,
		Operation:   "verify",
		Code:        "invalid_token",
		Description: err.Error(),
		Err:         err,
	}
}
