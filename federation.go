package auth

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/goliatone/go-folio-auth/social"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	loginIDBaseMax = 40
	loginIDMax     = 50
)

var loginIDInvalidChars = regexp.MustCompile(`[^a-z0-9_]`)

// NormalizeLoginID lowercases base, replaces characters outside
// [a-z0-9_] with underscores and cuts it to 40 characters.
func NormalizeLoginID(base string) string {
	normalized := loginIDInvalidChars.ReplaceAllString(strings.ToLower(base), "_")
	if len(normalized) > loginIDBaseMax {
		normalized = normalized[:loginIDBaseMax]
	}
	return normalized
}

// loginIDCandidate returns the i-th candidate: base, base_1, base_2...
func loginIDCandidate(normalized string, i int) string {
	candidate := normalized
	if i > 0 {
		candidate = normalized + "_" + strconv.Itoa(i)
	}
	if len(candidate) > loginIDMax {
		candidate = candidate[:loginIDMax]
	}
	return candidate
}

// allocateLoginID tries candidates derived from base, soft-deleted rows
// included, and returns the first free one.
func (m *SessionManager) allocateLoginID(ctx context.Context, tx bun.IDB, base string) (string, error) {
	normalized := NormalizeLoginID(base)
	attempts := m.loginIDAttempts()

	for i := 0; i < attempts; i++ {
		candidate := loginIDCandidate(normalized, i)
		exists, err := m.repo.Users().LoginIDExistsTx(ctx, tx, candidate)
		if err != nil {
			return "", internalError(err, "failed to check login_id")
		}
		if !exists {
			return candidate, nil
		}
	}

	m.logger.Error("login_id allocation exhausted", "base", normalized, "attempts", attempts)
	return "", withMeta(ErrServiceUnavailable, nil, map[string]any{"base": normalized})
}

// resolveFederated returns the principal linked to the provider account,
// creating the principal and the link on first login. created reports
// whether a new principal was made.
func (m *SessionManager) resolveFederated(ctx context.Context, provider string, profile *social.Profile) (*User, bool, error) {
	if profile == nil || profile.ProviderUserID == "" {
		return nil, false, withMeta(ErrBadGateway, nil, map[string]any{
			"provider": provider,
			"reason":   "profile missing subject",
		})
	}

	user, err := m.linkedUser(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return user, false, nil
	}
	if !isRecordNotFound(err) {
		return nil, false, err
	}

	hint := profile.LoginHint
	if strings.TrimSpace(hint) == "" {
		hint = provider + "_" + social.SubjectPrefix(profile.ProviderUserID, 8)
	}

	var created *User
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		loginID, err := m.allocateLoginID(ctx, tx, hint)
		if err != nil {
			return err
		}

		record := &User{
			UID:           uuid.New(),
			LoginID:       loginID,
			PasswordHash:  m.passwords.RandomPasswordHash(),
			DisplayName:   truncate(profile.DisplayName(loginID), loginIDMax),
			Email:         profile.Email,
			IsEmailPublic: true,
			IsPhonePublic: true,
			Role:          RoleUser,
		}

		if created, err = m.repo.Users().RegisterTx(ctx, tx, record); err != nil {
			return err
		}

		_, err = m.repo.Identities().LinkTx(ctx, tx, &FederatedIdentity{
			Provider:       provider,
			ProviderUserID: profile.ProviderUserID,
			UserUID:        created.UID,
			Email:          profile.Email,
			Username:       profile.Username,
		})
		return err
	})

	if err != nil {
		if isUniqueViolation(err) {
			// a concurrent first login for the same account won the race
			m.logger.Info("federated identity linked concurrently", "provider", provider)
			user, lerr := m.linkedUser(ctx, provider, profile.ProviderUserID)
			if lerr == nil {
				return user, false, nil
			}
		}
		return nil, false, internalError(err, "failed to link federated identity")
	}

	m.logger.Info("federated identity linked", "provider", provider, "uid", created.UID.String(), "login_id", created.LoginID)

	return created, true, nil
}

// linkedUser loads the active principal behind an existing link. A link
// whose principal is gone is a broken mapping.
func (m *SessionManager) linkedUser(ctx context.Context, provider, providerUserID string) (*User, error) {
	link, err := m.repo.Identities().FindByProvider(ctx, provider, providerUserID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, err
		}
		return nil, internalError(err, "failed to load federated identity")
	}

	user, err := m.repo.Users().GetByUID(ctx, link.UserUID.String())
	if err != nil {
		if isRecordNotFound(err) {
			return nil, withMeta(ErrIdentityMappingBroken, nil, map[string]any{
				"provider": provider,
				"uid":      link.UserUID.String(),
			})
		}
		return nil, internalError(err, "failed to load linked user")
	}

	return user, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
