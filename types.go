package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger receives a message followed by alternating key/value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the session options consumed by the manager and token codec
type Config interface {
	GetAccessSecret() string
	GetRefreshSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetOAuthStateTTL() time.Duration
	GetLoginIDAttempts() int
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
	RandomPasswordHash() string
}

// TokenService signs and verifies access and refresh tokens
type TokenService interface {
	IssueAccess(uid string, role UserRole, ttl time.Duration) (string, time.Time, error)
	IssueRefresh(uid string, role UserRole, jti string, ttl time.Duration) (string, time.Time, error)
	VerifyAccess(token string) (Principal, error)
	VerifyRefresh(token string, opts ...VerifyOption) (RefreshSubject, error)
}

// SessionRegistry tracks which refresh token ids are still valid.
// A refresh token is only usable while its jti is registered.
type SessionRegistry interface {
	Register(ctx context.Context, jti, uid string, ttl time.Duration) error
	// Consume deletes the jti only if it maps to uid. It reports whether
	// the entry existed and matched.
	Consume(ctx context.Context, jti, uid string) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

// StateStore keeps single use OAuth state values
type StateStore interface {
	SaveState(ctx context.Context, provider, state string, ttl time.Duration) error
	ConsumeState(ctx context.Context, provider, state string) (bool, error)
}

// Principal is the authenticated subject extracted from an access token
type Principal struct {
	UID  string   `json:"uid"`
	Role UserRole `json:"role"`
}

// IsAdmin reports whether the principal holds the admin role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// RefreshSubject is the verified content of a refresh token
type RefreshSubject struct {
	Principal
	JTI string `json:"jti"`
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args) }

func (defLogger) print(level, msg string, args []any) {
	var b strings.Builder
	b.WriteString("[" + level + "] AUTH " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Println(b.String())
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
