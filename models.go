package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the principal model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	UID           uuid.UUID  `bun:"uid,pk,nullzero,type:uuid" json:"uid"`
	LoginID       string     `bun:"login_id,notnull,unique" json:"login_id"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	DisplayName   string     `bun:"display_name,notnull" json:"display_name"`
	Email         string     `bun:"email,nullzero" json:"email,omitempty"`
	Phone         string     `bun:"phone,nullzero" json:"phone,omitempty"`
	IsEmailPublic bool       `bun:"is_email_public,notnull" json:"is_email_public"`
	IsPhonePublic bool       `bun:"is_phone_public,notnull" json:"is_phone_public"`
	IsFeatured    bool       `bun:"is_featured,notnull" json:"is_featured"`
	Role          UserRole   `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Principal returns the token subject for the user
func (u *User) Principal() Principal {
	return Principal{UID: u.UID.String(), Role: ParseRole(string(u.Role))}
}

// Summary returns the public subset embedded in token responses
func (u *User) Summary() UserSummary {
	return UserSummary{
		UID:         u.UID.String(),
		LoginID:     u.LoginID,
		DisplayName: u.DisplayName,
		IsFeatured:  u.IsFeatured,
	}
}

// UserSummary is the user view returned with issued tokens
type UserSummary struct {
	UID         string `json:"uid"`
	LoginID     string `json:"login_id"`
	DisplayName string `json:"display_name"`
	IsFeatured  bool   `json:"is_featured"`
}

// FederatedIdentity links an external provider account to a principal.
// Rows are created once and never rewritten.
type FederatedIdentity struct {
	bun.BaseModel  `bun:"table:auth_identities,alias:aid"`
	ID             uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id"`
	Provider       string    `bun:"provider,notnull" json:"provider"`
	ProviderUserID string    `bun:"provider_user_id,notnull" json:"provider_user_id"`
	UserUID        uuid.UUID `bun:"user_uid,notnull,type:uuid" json:"user_uid"`
	Email          string    `bun:"email,nullzero" json:"email,omitempty"`
	Username       string    `bun:"username,nullzero" json:"username,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"created_at"`
}

func prepareUserDefaults(u *User) {
	if u == nil {
		return
	}
	if u.UID == uuid.Nil {
		u.UID = uuid.New()
	}
	if !u.Role.IsValid() {
		u.Role = RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
}

func prepareIdentityDefaults(link *FederatedIdentity) {
	if link == nil {
		return
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
}
