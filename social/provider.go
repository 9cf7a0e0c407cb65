package social

import (
	"context"
	"strings"
	"time"
)

// OAuthProvider is an authorization-code provider (e.g. GitHub).
type OAuthProvider interface {
	// Name returns the provider identifier used in routes and state keys.
	Name() string

	// AuthCodeURL returns the provider consent URL carrying state.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (*Token, error)

	// UserInfo fetches the account profile using the access token.
	UserInfo(ctx context.Context, token *Token) (*Profile, error)
}

// EmailResolver is implemented by providers that expose the account's
// primary verified email through a separate call.
type EmailResolver interface {
	PrimaryEmail(ctx context.Context, token *Token) (string, error)
}

// AssertionVerifier verifies a signed identity assertion issued by an
// external identity service (Firebase ID tokens, OIDC ID tokens).
type AssertionVerifier interface {
	Name() string
	Verify(ctx context.Context, assertion string) (*Profile, error)
}

// Token represents an OAuth2 token response.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// Profile is the normalized account information returned by a provider.
type Profile struct {
	Provider       string
	ProviderUserID string
	Username       string
	Name           string
	Email          string
	EmailVerified  bool
	// LoginHint is the provider specific base used to allocate a login id
	// for a first time login, e.g. gh_octocat.
	LoginHint string
}

// DisplayName prefers the profile name and falls back to fallback
func (p *Profile) DisplayName(fallback string) string {
	if p == nil {
		return fallback
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username
	}
	return fallback
}

// EmailLocalPart returns the part of email before the @
func EmailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// SubjectPrefix returns at most n leading characters of subject
func SubjectPrefix(subject string, n int) string {
	if len(subject) <= n {
		return subject
	}
	return subject[:n]
}
