package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenServiceImpl implements TokenService with HMAC signed JWTs. Access and
// refresh tokens use distinct secrets.
type TokenServiceImpl struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

// TokenServiceOption configures a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenLogger sets the token service logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// WithTokenClock overrides the clock used to stamp iat and exp
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, opts ...TokenServiceOption) *TokenServiceImpl {
	ts := &TokenServiceImpl{
		accessKey:  []byte(cfg.GetAccessSecret()),
		refreshKey: []byte(cfg.GetRefreshSecret()),
		issuer:     cfg.GetIssuer(),
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// VerifyOption tunes refresh token verification
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	allowExpired bool
}

// AllowExpired accepts tokens whose exp elapsed. The signature, kind and
// issuer are still checked. Used when revoking a session.
func AllowExpired() VerifyOption {
	return func(o *verifyOptions) {
		o.allowExpired = true
	}
}

// IssueAccess signs an access token for uid
func (ts *TokenServiceImpl) IssueAccess(uid string, role UserRole, ttl time.Duration) (string, time.Time, error) {
	return ts.issue(KindAccess, uid, role, "", ttl)
}

// IssueRefresh signs a refresh token for uid identified by jti
func (ts *TokenServiceImpl) IssueRefresh(uid string, role UserRole, jti string, ttl time.Duration) (string, time.Time, error) {
	if jti == "" {
		return "", time.Time{}, errors.New("refresh token requires a jti", errors.CategoryInternal)
	}
	return ts.issue(KindRefresh, uid, role, jti, ttl)
}

// VerifyAccess validates an access token and returns its principal
func (ts *TokenServiceImpl) VerifyAccess(token string) (Principal, error) {
	claims, err := ts.parse(token, KindAccess, verifyOptions{})
	if err != nil {
		return Principal{}, err
	}
	return claims.principal(), nil
}

// VerifyRefresh validates a refresh token and returns its principal and jti
func (ts *TokenServiceImpl) VerifyRefresh(token string, opts ...VerifyOption) (RefreshSubject, error) {
	var o verifyOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	claims, err := ts.parse(token, KindRefresh, o)
	if err != nil {
		return RefreshSubject{}, err
	}

	if claims.ID == "" {
		return RefreshSubject{}, ErrInvalidToken
	}

	return RefreshSubject{Principal: claims.principal(), JTI: claims.ID}, nil
}

func (ts *TokenServiceImpl) issue(kind TokenKind, uid string, role UserRole, jti string, ttl time.Duration) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, errors.New("token requires a uid", errors.CategoryInternal)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive", errors.CategoryInternal)
	}

	now := ts.now()
	exp := now.Add(ttl)
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UID:      uid,
		UserRole: role,
		Kind:     kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.keyFor(kind))
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, exp, nil
}

func (ts *TokenServiceImpl) keyFor(kind TokenKind) []byte {
	if kind == KindRefresh {
		return ts.refreshKey
	}
	return ts.accessKey
}

func (ts *TokenServiceImpl) parse(tokenString string, kind TokenKind, o verifyOptions) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if o.allowExpired {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token service rejected unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.keyFor(kind), nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, withMeta(ErrInvalidToken, err, nil)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	// WithoutClaimsValidation skips the issuer check too
	if o.allowExpired && ts.issuer != "" && claims.Issuer != ts.issuer {
		return nil, ErrInvalidToken
	}

	if claims.Kind != kind || claims.UID == "" || claims.UserRole == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
