package auth

import (
	"strings"

	"github.com/goliatone/go-router"
)

// AccessVerifier is the subset of TokenService resource modules depend on
type AccessVerifier interface {
	VerifyAccess(token string) (Principal, error)
}

// RequireAuth rejects requests without a valid bearer access token
func RequireAuth(verifier AccessVerifier) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, err := authenticate(ctx, verifier)
			if err != nil {
				return err
			}
			setPrincipal(ctx, principal)
			return next(ctx)
		}
	}
}

// OptionalAuth attaches the principal when a valid bearer token is present
// and otherwise lets the request through anonymously. A present but invalid
// token is rejected.
func OptionalAuth(verifier AccessVerifier) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := bearerToken(ctx); !ok {
				return next(ctx)
			}

			principal, err := authenticate(ctx, verifier)
			if err != nil {
				return err
			}
			setPrincipal(ctx, principal)
			return next(ctx)
		}
	}
}

// RequireAdmin only lets ROLE_ADMIN principals through. It reuses the
// principal attached by RequireAuth and authenticates the request itself
// otherwise.
func RequireAdmin(verifier AccessVerifier) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, ok := PrincipalFromRouter(ctx)
			if !ok {
				var err error
				if principal, err = authenticate(ctx, verifier); err != nil {
					return err
				}
				setPrincipal(ctx, principal)
			}

			if !principal.IsAdmin() {
				return ErrForbidden
			}
			return next(ctx)
		}
	}
}

func authenticate(ctx router.Context, verifier AccessVerifier) (Principal, error) {
	token, ok := bearerToken(ctx)
	if !ok {
		return Principal{}, ErrMissingToken
	}
	return verifier.VerifyAccess(token)
}

func setPrincipal(ctx router.Context, principal Principal) {
	ctx.Locals(LocalsPrincipalKey, principal)
	ctx.SetContext(WithPrincipal(ctx.Context(), principal))
}

func bearerToken(ctx router.Context) (string, bool) {
	header := strings.TrimSpace(ctx.GetString(router.HeaderAuthorization, ""))
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
