package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-folio-auth/social"
	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

const (
	ProviderName = "github"

	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"read:user", "user:email"}
}

// Provider implements social.OAuthProvider for GitHub.
type Provider struct {
	oauth      *oauth2.Config
	userURL    string
	emailsURL  string
	httpClient *http.Client
}

var (
	_ social.OAuthProvider = (*Provider)(nil)
	_ social.EmailResolver = (*Provider)(nil)
)

// New creates a new GitHub provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}

	endpoint := oauthgithub.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
		},
		userURL:    cfg.UserURL,
		emailsURL:  cfg.EmailsURL,
		httpClient: client,
	}
}

// Name implements social.OAuthProvider.
func (p *Provider) Name() string {
	return ProviderName
}

// AuthCodeURL implements social.OAuthProvider.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange implements social.OAuthProvider.
func (p *Provider) Exchange(ctx context.Context, code string) (*social.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			status := 0
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
			}
			return nil, providerError("exchange", status, rerr.ErrorCode, rerr.ErrorDescription, err, decodeRaw(rerr.Body))
		}
		return nil, providerError("exchange", 0, "", "", err, nil)
	}

	if tok == nil || tok.AccessToken == "" {
		return nil, providerError("exchange", http.StatusOK, "missing_access_token", "missing access token", nil, nil)
	}

	out := &social.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scopes = splitCommaScopes(scope)
	}

	return out, nil
}

// UserInfo implements social.OAuthProvider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, providerError("user_info", 0, "missing_access_token", "missing access token", nil, nil)
	}

	var user githubUser
	if err := p.getJSON(ctx, "user_info", p.userURL, token.AccessToken, &user); err != nil {
		return nil, err
	}

	if user.ID == 0 || user.Login == "" {
		return nil, providerError("user_info", http.StatusOK, "invalid_response", "user response missing id or login", nil, nil)
	}

	return mapProfile(&user), nil
}

// PrimaryEmail implements social.EmailResolver. Only an address that is both
// primary and verified is returned.
func (p *Provider) PrimaryEmail(ctx context.Context, token *social.Token) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", providerError("emails", 0, "missing_access_token", "missing access token", nil, nil)
	}

	var emails []githubEmail
	if err := p.getJSON(ctx, "emails", p.emailsURL, token.AccessToken, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}

	return "", nil
}

func (p *Provider) getJSON(ctx context.Context, operation, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return providerError(operation, 0, "", "", err, nil)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return providerError(operation, 0, "", "", err, nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providerError(operation, resp.StatusCode, "", "", err, nil)
	}

	if resp.StatusCode != http.StatusOK {
		msg, raw := apiError(body)
		return providerError(operation, resp.StatusCode, "", msg, nil, raw)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return providerError(operation, resp.StatusCode, "invalid_response", "failed to decode response", err, nil)
	}

	return nil
}

// apiError returns the message of a GitHub error body along with the
// decoded body, which is nil when the body is not a JSON object.
func apiError(body []byte) (string, map[string]any) {
	raw := decodeRaw(body)
	if msg, ok := raw["message"].(string); ok && msg != "" {
		return msg, raw
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed", raw
	}

	return msg, raw
}

func decodeRaw(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	return raw
}

func splitCommaScopes(scopes string) []string {
	if scopes == "" {
		return nil
	}

	parts := strings.Split(scopes, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func providerError(operation string, status int, code, description string, err error, raw map[string]any) *social.ProviderError {
	return &social.ProviderError{
		Provider:    ProviderName,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
		Raw:         raw,
	}
}
