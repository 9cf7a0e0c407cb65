package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates access and refresh tokens
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenClaims is the payload of both token kinds. Refresh tokens carry
// their jti in the registered "jti" claim.
type TokenClaims struct {
	jwt.RegisteredClaims
	UID      string    `json:"uid"`
	UserRole UserRole  `json:"role"`
	Kind     TokenKind `json:"kind"`
}

// UserID returns the principal uid
func (c *TokenClaims) UserID() string {
	return c.UID
}

// Role returns the principal role
func (c *TokenClaims) Role() UserRole {
	return c.UserRole
}

// TokenID returns the jti claim
func (c *TokenClaims) TokenID() string {
	return c.ID
}

func (c *TokenClaims) principal() Principal {
	return Principal{UID: c.UID, Role: ParseRole(string(c.UserRole))}
}
