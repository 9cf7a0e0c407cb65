package firebase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-folio-auth/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProject = "folio-test"
	testKID     = "key-1"
)

func newJWKSServer(t *testing.T, key *rsa.PublicKey) *httptest.Server {
	t.Helper()

	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":       "https://securetoken.google.com/" + testProject,
		"aud":       testProject,
		"sub":       "firebaseuid1234567",
		"iat":       now.Add(-time.Minute).Unix(),
		"exp":       now.Add(time.Hour).Unix(),
		"auth_time": now.Add(-time.Minute).Unix(),
	}
}

func setup(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	server := newJWKSServer(t, &key.PublicKey)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	verifier, err := New(ctx, Config{
		ProjectID:  testProject,
		JWKSURL:    server.URL,
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(verifier.Close)

	return verifier, key
}

func TestVerifierAcceptsValidTokenWithEmail(t *testing.T) {
	verifier, key := setup(t)

	claims := baseClaims(time.Now())
	claims["email"] = "alice.smith@example.com"
	claims["email_verified"] = true
	claims["name"] = "Alice Smith"

	profile, err := verifier.Verify(context.Background(), signToken(t, key, claims))
	require.NoError(t, err)

	assert.Equal(t, "firebase", profile.Provider)
	assert.Equal(t, "firebaseuid1234567", profile.ProviderUserID)
	assert.Equal(t, "alice.smith@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Alice Smith", profile.Name)
	assert.Equal(t, "g_alice.smith", profile.LoginHint)
}

func TestVerifierLoginHintWithoutEmail(t *testing.T) {
	verifier, key := setup(t)

	profile, err := verifier.Verify(context.Background(), signToken(t, key, baseClaims(time.Now())))
	require.NoError(t, err)

	assert.Empty(t, profile.Email)
	assert.Equal(t, "fb_firebase", profile.LoginHint)
}

func TestVerifierRejectsInvalidTokens(t *testing.T) {
	verifier, key := setup(t)
	now := time.Now()

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	wrongAudience := baseClaims(now)
	wrongAudience["aud"] = "another-project"

	wrongIssuer := baseClaims(now)
	wrongIssuer["iss"] = "https://securetoken.google.com/another-project"

	expired := baseClaims(now)
	expired["exp"] = now.Add(-time.Minute).Unix()

	futureAuth := baseClaims(now)
	futureAuth["auth_time"] = now.Add(time.Hour).Unix()

	missingAuth := baseClaims(now)
	delete(missingAuth, "auth_time")

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong audience", token: signToken(t, key, wrongAudience)},
		{name: "wrong issuer", token: signToken(t, key, wrongIssuer)},
		{name: "expired", token: signToken(t, key, expired)},
		{name: "auth_time in the future", token: signToken(t, key, futureAuth)},
		{name: "missing auth_time", token: signToken(t, key, missingAuth)},
		{name: "foreign key", token: signToken(t, otherKey, baseClaims(now))},
		{name: "garbage", token: "not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.token)
			require.Error(t, err)

			var perr *social.ProviderError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "verify", perr.Operation)
		})
	}
}

func TestNewRequiresProjectID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
