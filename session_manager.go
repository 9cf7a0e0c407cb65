package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-folio-auth/social"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour
	DefaultOAuthStateTTL   = 10 * time.Minute
	DefaultLoginIDAttempts = 50
)

// SessionManager orchestrates registration, login, refresh rotation, logout
// and federated login.
type SessionManager struct {
	repo      RepositoryManager
	tokens    TokenService
	passwords PasswordAuthenticator
	sessions  SessionRegistry
	states    StateStore
	config    Config
	logger    Logger
	activity  ActivitySink

	registerUser command.Commander[RegisterUserMessage]

	oauthProviders map[string]social.OAuthProvider
	verifiers      map[string]social.AssertionVerifier

	now      func() time.Time
	newJTI   func() string
	newState func() (string, error)
}

// SessionManagerOption configures a SessionManager
type SessionManagerOption func(*SessionManager)

// WithLogger sets the manager logger
func WithLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = normalizeLogger(logger)
	}
}

// WithActivitySink sets the activity sink
func WithActivitySink(sink ActivitySink) SessionManagerOption {
	return func(m *SessionManager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithPasswordAuthenticator overrides the bcrypt authenticator
func WithPasswordAuthenticator(p PasswordAuthenticator) SessionManagerOption {
	return func(m *SessionManager) {
		if p != nil {
			m.passwords = p
		}
	}
}

// WithRegisterUserCommand replaces the command that stores new principals
func WithRegisterUserCommand(cmd command.Commander[RegisterUserMessage]) SessionManagerOption {
	return func(m *SessionManager) {
		if cmd != nil {
			m.registerUser = cmd
		}
	}
}

// WithOAuthProvider registers an authorization-code provider
func WithOAuthProvider(p social.OAuthProvider) SessionManagerOption {
	return func(m *SessionManager) {
		if p != nil {
			m.oauthProviders[strings.ToLower(p.Name())] = p
		}
	}
}

// WithAssertionVerifier registers an assertion verifier
func WithAssertionVerifier(v social.AssertionVerifier) SessionManagerOption {
	return func(m *SessionManager) {
		if v != nil {
			m.verifiers[strings.ToLower(v.Name())] = v
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewSessionManager wires the session collaborators
func NewSessionManager(repo RepositoryManager, tokens TokenService, sessions SessionRegistry, states StateStore, cfg Config, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		repo:           repo,
		tokens:         tokens,
		passwords:      NewPasswordAuthenticator(),
		sessions:       sessions,
		states:         states,
		config:         cfg,
		logger:         defLogger{},
		activity:       noopActivitySink{},
		oauthProviders: map[string]social.OAuthProvider{},
		verifiers:      map[string]social.AssertionVerifier{},
		now:            time.Now,
		newJTI:         func() string { return uuid.NewString() },
		newState:       randomState,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.registerUser == nil {
		m.registerUser = NewRegisterUserHandler(m.repo, m.passwords)
	}

	return m
}

// VerifyAccess validates an access token
func (m *SessionManager) VerifyAccess(token string) (Principal, error) {
	return m.tokens.VerifyAccess(token)
}

// TokenService returns the token codec used by the manager
func (m *SessionManager) TokenService() TokenService {
	return m.tokens
}

// Register creates a principal with password credentials and opens a session
func (m *SessionManager) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationFailed(err)
	}

	msg := RegisterUserMessage{
		UID:         uuid.New(),
		LoginID:     strings.TrimSpace(req.LoginID),
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.TrimSpace(req.Email),
	}
	if req.Phone != "" {
		phone, err := normalizePhone(req.Phone)
		if err != nil {
			return nil, validationFailed(err)
		}
		msg.Phone = phone
	}

	if err := m.registerUser.Execute(ctx, msg); err != nil {
		return nil, err
	}

	user, err := m.repo.Users().GetByUID(ctx, msg.UID.String())
	if err != nil {
		return nil, internalError(err, "failed to load registered user")
	}

	m.logger.Info("user registered", "uid", user.UID.String(), "login_id", user.LoginID)
	m.record(ctx, ActivityEventRegister, user.UID.String(), nil)

	return m.issueSession(ctx, user)
}

// Login authenticates a principal with login id and password
func (m *SessionManager) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationFailed(err)
	}

	user, err := m.repo.Users().GetByLoginID(ctx, req.LoginID)
	if err != nil {
		if !isRecordNotFound(err) {
			return nil, internalError(err, "failed to load user")
		}
		_ = m.passwords.ComparePasswordAndHash(req.Password, dummyPasswordHash())
		m.record(ctx, ActivityEventLoginFailure, "", map[string]any{"reason": "unknown_login_id"})
		return nil, ErrInvalidCredentials
	}

	if err := m.passwords.ComparePasswordAndHash(req.Password, user.PasswordHash); err != nil {
		m.record(ctx, ActivityEventLoginFailure, user.UID.String(), map[string]any{"reason": "password_mismatch"})
		return nil, ErrInvalidCredentials
	}

	m.record(ctx, ActivityEventLoginSuccess, user.UID.String(), nil)

	return m.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The presented token is consumed even
// when the rest of the rotation fails. Apart from expiry every failure is
// reported as ErrInvalidRefreshToken.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	subject, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		if IsTokenExpiredError(err) {
			return nil, err
		}
		m.logger.Debug("refresh token verification failed", "error", err)
		return nil, ErrInvalidRefreshToken
	}

	ok, err := m.sessions.Consume(ctx, subject.JTI, subject.UID)
	if err != nil {
		return nil, internalError(err, "failed to consume refresh token")
	}
	if !ok {
		m.logger.Warn("refresh token rejected", "uid", subject.UID)
		m.record(ctx, ActivityEventRefreshRejected, subject.UID, nil)
		return nil, ErrInvalidRefreshToken
	}

	user, err := m.repo.Users().GetByUID(ctx, subject.UID)
	if err != nil {
		if isRecordNotFound(err) {
			m.logger.Warn("refresh token principal not found", "uid", subject.UID)
			return nil, ErrInvalidRefreshToken
		}
		return nil, internalError(err, "failed to load user")
	}

	m.record(ctx, ActivityEventRefresh, user.UID.String(), nil)

	return m.issueSession(ctx, user)
}

// Logout revokes the refresh token of the authenticated principal. The
// refresh token may be expired but must be validly signed. Without a
// refresh token there is nothing to revoke.
func (m *SessionManager) Logout(ctx context.Context, principal Principal, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}

	subject, err := m.tokens.VerifyRefresh(refreshToken, AllowExpired())
	if err != nil {
		return err
	}

	if subject.UID != principal.UID {
		m.logger.Warn("logout refresh token belongs to another principal", "uid", principal.UID)
		return ErrUnauthorized
	}

	if err := m.sessions.Revoke(ctx, subject.JTI); err != nil {
		return internalError(err, "failed to revoke refresh token")
	}

	m.record(ctx, ActivityEventLogout, principal.UID, nil)

	return nil
}

// BeginOAuth creates a single use state and returns the provider URL
func (m *SessionManager) BeginOAuth(ctx context.Context, providerName string) (*OAuthStart, error) {
	provider, err := m.oauthProvider(providerName)
	if err != nil {
		return nil, err
	}

	state, err := m.newState()
	if err != nil {
		return nil, internalError(err, "failed to generate oauth state")
	}

	if err := m.states.SaveState(ctx, provider.Name(), state, m.stateTTL()); err != nil {
		return nil, internalError(err, "failed to save oauth state")
	}

	return &OAuthStart{
		Provider: provider.Name(),
		URL:      provider.AuthCodeURL(state),
	}, nil
}

// CompleteOAuth handles the provider callback. The state is consumed before
// any provider call.
func (m *SessionManager) CompleteOAuth(ctx context.Context, providerName string, cb OAuthCallback) (*TokenResponse, error) {
	provider, err := m.oauthProvider(providerName)
	if err != nil {
		return nil, err
	}

	if cb.State == "" || (cb.Code == "" && cb.Error == "") {
		return nil, withMeta(ErrBadRequest, nil, map[string]any{"reason": "code and state are required"})
	}

	ok, err := m.states.ConsumeState(ctx, provider.Name(), cb.State)
	if err != nil {
		return nil, internalError(err, "failed to consume oauth state")
	}
	if !ok {
		return nil, ErrInvalidState
	}

	if cb.Error != "" {
		return nil, withMeta(ErrProviderDenied, nil, map[string]any{
			"provider":          provider.Name(),
			"error":             cb.Error,
			"error_description": cb.ErrorDescription,
		})
	}

	token, err := provider.Exchange(ctx, cb.Code)
	if err != nil {
		return nil, m.upstreamError(provider.Name(), "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, m.upstreamError(provider.Name(), "user_info", err)
	}

	if resolver, ok := provider.(social.EmailResolver); ok && profile.Email == "" {
		email, err := resolver.PrimaryEmail(ctx, token)
		if err != nil {
			m.logger.Warn("primary email lookup failed", "provider", provider.Name(), "error", err)
		} else if email != "" {
			profile.Email = email
			profile.EmailVerified = true
		}
	}

	return m.federatedLogin(ctx, provider.Name(), profile)
}

// AssertionLogin verifies an identity assertion and opens a session
func (m *SessionManager) AssertionLogin(ctx context.Context, providerName string, req AssertionRequest) (*TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, validationFailed(err)
	}

	verifier, ok := m.verifiers[strings.ToLower(providerName)]
	if !ok {
		return nil, withMeta(ErrProviderNotConfigured, nil, map[string]any{"provider": providerName})
	}

	profile, err := verifier.Verify(ctx, req.IDToken)
	if err != nil {
		m.logger.Warn("identity assertion rejected", "provider", verifier.Name(), "error", err)
		return nil, withMeta(ErrInvalidAssertion, err, social.ProviderMetadata(verifier.Name(), "verify", err))
	}

	return m.federatedLogin(ctx, verifier.Name(), profile)
}

// Providers lists the registered provider names
func (m *SessionManager) Providers() (oauth []string, assertion []string) {
	for name := range m.oauthProviders {
		oauth = append(oauth, name)
	}
	for name := range m.verifiers {
		assertion = append(assertion, name)
	}
	return oauth, assertion
}

func (m *SessionManager) federatedLogin(ctx context.Context, provider string, profile *social.Profile) (*TokenResponse, error) {
	user, created, err := m.resolveFederated(ctx, provider, profile)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"provider": provider}
	if created {
		m.record(ctx, ActivityEventIdentityLinked, user.UID.String(), meta)
	}
	m.record(ctx, ActivityEventFederatedLogin, user.UID.String(), meta)

	return m.issueSession(ctx, user)
}

// issueSession mints an access/refresh pair and registers the refresh jti
func (m *SessionManager) issueSession(ctx context.Context, user *User) (*TokenResponse, error) {
	principal := user.Principal()
	accessTTL := m.accessTTL()
	refreshTTL := m.refreshTTL()

	access, _, err := m.tokens.IssueAccess(principal.UID, principal.Role, accessTTL)
	if err != nil {
		return nil, internalError(err, "failed to issue access token")
	}

	jti := m.newJTI()
	refresh, _, err := m.tokens.IssueRefresh(principal.UID, principal.Role, jti, refreshTTL)
	if err != nil {
		return nil, internalError(err, "failed to issue refresh token")
	}

	if err := m.sessions.Register(ctx, jti, principal.UID, refreshTTL); err != nil {
		return nil, internalError(err, "failed to register refresh token")
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(accessTTL / time.Second),
		User:         user.Summary(),
	}, nil
}

func (m *SessionManager) oauthProvider(name string) (social.OAuthProvider, error) {
	provider, ok := m.oauthProviders[strings.ToLower(name)]
	if !ok {
		return nil, withMeta(ErrProviderNotConfigured, nil, map[string]any{"provider": name})
	}
	return provider, nil
}

func (m *SessionManager) upstreamError(provider, operation string, err error) error {
	m.logger.Error("identity provider call failed", "provider", provider, "operation", operation, "error", err)
	return withMeta(ErrBadGateway, err, social.ProviderMetadata(provider, operation, err))
}

func (m *SessionManager) record(ctx context.Context, eventType ActivityEventType, userID string, meta map[string]any) {
	actorID := userID
	if actorID == "" {
		actorID = "anonymous"
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: actorID, Type: "user"},
		UserID:     userID,
		Metadata:   meta,
		OccurredAt: m.now().UTC(),
	}

	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record failed", "event", string(eventType), "error", err)
	}
}

func (m *SessionManager) accessTTL() time.Duration {
	if ttl := m.config.GetAccessTokenTTL(); ttl > 0 {
		return ttl
	}
	return DefaultAccessTokenTTL
}

func (m *SessionManager) refreshTTL() time.Duration {
	if ttl := m.config.GetRefreshTokenTTL(); ttl > 0 {
		return ttl
	}
	return DefaultRefreshTokenTTL
}

func (m *SessionManager) stateTTL() time.Duration {
	if ttl := m.config.GetOAuthStateTTL(); ttl > 0 {
		return ttl
	}
	return DefaultOAuthStateTTL
}

func (m *SessionManager) loginIDAttempts() int {
	if n := m.config.GetLoginIDAttempts(); n > 0 {
		return n
	}
	return DefaultLoginIDAttempts
}

// randomState returns 32 random bytes, base64url encoded
func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
