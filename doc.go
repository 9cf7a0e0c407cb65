// Package auth authenticates principals and manages their session lifecycle
// for the folio resource API.
//
// Sessions:
//   - SessionManager composes the credential store, password hashing, the
//     token codec and the Redis backed session registry to implement
//     register, login, refresh rotation and logout. Registration itself runs
//     as a RegisterUserHandler command.
//   - Access tokens are stateless and only expire. Refresh tokens carry a jti
//     that must be present in the SessionRegistry; every refresh consumes the
//     jti atomically, so a refresh token can be exchanged exactly once.
//
// Federation:
//   - OAuth authorization-code providers (social.OAuthProvider) and assertion
//     verifiers (social.AssertionVerifier) are registered on the manager.
//     Both flows resolve through the same identity linking routine, which
//     creates the principal and its FederatedIdentity on first login.
//   - OAuth state values are single use; the callback consumes the state
//     before talking to the provider.
//
// Downstream modules:
//   - Resource handlers only need RequireAuth/OptionalAuth and
//     PrincipalFromRouter or PrincipalFromContext. They never verify tokens
//     on their own.
package auth
