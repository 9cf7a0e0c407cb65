package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// LocalsPrincipalKey is the router locals key holding the Principal
const LocalsPrincipalKey = "auth.principal"

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext finds the Principal in the context
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(Principal)
	return p, ok
}

// PrincipalFromRouter finds the Principal set by RequireAuth or OptionalAuth
func PrincipalFromRouter(ctx router.Context) (Principal, bool) {
	raw := ctx.Locals(LocalsPrincipalKey)
	if raw == nil {
		return Principal{}, false
	}
	p, ok := raw.(Principal)
	return p, ok
}
