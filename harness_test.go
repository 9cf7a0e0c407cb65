package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-folio-auth"
	"github.com/goliatone/go-folio-auth/persistence"
	"github.com/goliatone/go-folio-auth/registry"
	"github.com/goliatone/go-folio-auth/social"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type testConfig struct {
	accessSecret  string
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	stateTTL      time.Duration
	issuer        string
	attempts      int
}

func (c testConfig) GetAccessSecret() string           { return c.accessSecret }
func (c testConfig) GetRefreshSecret() string          { return c.refreshSecret }
func (c testConfig) GetAccessTokenTTL() time.Duration  { return c.accessTTL }
func (c testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c testConfig) GetIssuer() string                 { return c.issuer }
func (c testConfig) GetOAuthStateTTL() time.Duration   { return c.stateTTL }
func (c testConfig) GetLoginIDAttempts() int           { return c.attempts }

func newTestConfig() testConfig {
	return testConfig{
		accessSecret:  "access-secret-for-tests-0001",
		refreshSecret: "refresh-secret-for-tests-0001",
		accessTTL:     15 * time.Minute,
		refreshTTL:    14 * 24 * time.Hour,
		stateTTL:      10 * time.Minute,
		attempts:      50,
	}
}

// cheapPasswords uses the minimum bcrypt cost to keep tests fast
type cheapPasswords struct{}

func (cheapPasswords) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(h), err
}

func (cheapPasswords) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return auth.ErrMismatchedHashAndPassword
	}
	return nil
}

func (p cheapPasswords) RandomPasswordHash() string {
	h, _ := p.HashPassword("random-" + time.Now().String())
	return h
}

type eventRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *eventRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	db       *bun.DB
	mr       *miniredis.Miniredis
	registry *registry.Redis
	repo     auth.RepositoryManager
	tokens   *auth.TokenServiceImpl
	manager  *auth.SessionManager
	config   testConfig
	events   *eventRecorder
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	config  testConfig
	options []auth.SessionManagerOption
}

func withConfig(fn func(*testConfig)) harnessOption {
	return func(s *harnessSetup) {
		fn(&s.config)
	}
}

func withManagerOptions(opts ...auth.SessionManagerOption) harnessOption {
	return func(s *harnessSetup) {
		s.options = append(s.options, opts...)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	setup := &harnessSetup{config: newTestConfig()}
	for _, opt := range opts {
		opt(setup)
	}

	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, auth.CreateSchema(ctx, db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	reg, err := registry.Connect(ctx, registry.Options{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	tokens := auth.NewTokenService(setup.config)
	events := &eventRecorder{}

	managerOpts := []auth.SessionManagerOption{
		auth.WithPasswordAuthenticator(cheapPasswords{}),
		auth.WithActivitySink(events),
	}
	managerOpts = append(managerOpts, setup.options...)

	manager := auth.NewSessionManager(repo, tokens, reg, reg, setup.config, managerOpts...)

	return &harness{
		db:       db,
		mr:       mr,
		registry: reg,
		repo:     repo,
		tokens:   tokens,
		manager:  manager,
		config:   setup.config,
		events:   events,
	}
}

func (h *harness) register(t *testing.T, loginID, password string) *auth.TokenResponse {
	t.Helper()

	res, err := h.manager.Register(context.Background(), auth.RegisterRequest{
		LoginID:     loginID,
		Password:    password,
		DisplayName: "User " + loginID,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) softDelete(t *testing.T, uid string) {
	t.Helper()

	user, err := h.repo.Users().GetByUID(context.Background(), uid)
	require.NoError(t, err)

	_, err = h.db.NewDelete().Model(user).WherePK().Exec(context.Background())
	require.NoError(t, err)
}

// fakeOAuth is an in-memory authorization-code provider
type fakeOAuth struct {
	name        string
	profile     *social.Profile
	email       string
	exchangeErr error
	userInfoErr error
	emailErr    error

	mu        sync.Mutex
	exchanges int
}

var (
	_ social.OAuthProvider = (*fakeOAuth)(nil)
	_ social.EmailResolver = (*fakeOAuth)(nil)
)

func newFakeGitHub() *fakeOAuth {
	return &fakeOAuth{
		name: "github",
		profile: &social.Profile{
			Provider:       "github",
			ProviderUserID: "583231",
			Username:       "octocat",
			Name:           "The Octocat",
			LoginHint:      "gh_octocat",
		},
		email: "octocat@example.com",
	}
}

func (f *fakeOAuth) Name() string { return f.name }

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*social.Token, error) {
	f.mu.Lock()
	f.exchanges++
	f.mu.Unlock()

	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &social.Token{AccessToken: "provider-token-" + code}, nil
}

func (f *fakeOAuth) UserInfo(_ context.Context, _ *social.Token) (*social.Profile, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeOAuth) PrimaryEmail(_ context.Context, _ *social.Token) (string, error) {
	if f.emailErr != nil {
		return "", f.emailErr
	}
	return f.email, nil
}

func (f *fakeOAuth) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

// fakeVerifier accepts assertions present in its table
type fakeVerifier struct {
	name     string
	profiles map[string]*social.Profile
}

func (f *fakeVerifier) Name() string { return f.name }

func (f *fakeVerifier) Verify(_ context.Context, assertion string) (*social.Profile, error) {
	p, ok := f.profiles[assertion]
	if !ok {
		return nil, &social.ProviderError{Provider: f.name, Operation: "verify", Code: "invalid_token"}
	}
	out := *p
	return &out, nil
}

func newFakeFirebase() *fakeVerifier {
	return &fakeVerifier{
		name: "firebase",
		profiles: map[string]*social.Profile{
			"firebase-token-alice": {
				Provider:       "firebase",
				ProviderUserID: "fbuid-alice-0001",
				Email:          "alice@example.com",
				Name:           "Alice",
				LoginHint:      "g_alice",
			},
			"firebase-token-anon": {
				Provider:       "firebase",
				ProviderUserID: "anon12345678xyz",
				LoginHint:      "fb_anon1234",
			},
		},
	}
}
