package auth

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeConflict           = "CONFLICT"
	TextCodeStateConflict      = "STATE_CONFLICT"
	TextCodeBadRequest         = "BAD_REQUEST"
	TextCodeBadGateway         = "BAD_GATEWAY"
	TextCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	TextCodeValidationFailed   = "VALIDATION_FAILED"
	TextCodeNotFound           = "RESOURCE_NOT_FOUND"
	TextCodeInternal           = "INTERNAL_SERVER_ERROR"
)

var (
	// ErrUnauthorized covers bad credentials, bad signatures, wrong token kinds
	// and refresh tokens that are no longer registered.
	ErrUnauthorized = goerrors.New("unauthorized", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrMissingToken = goerrors.New("missing bearer token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrInvalidToken = goerrors.New("invalid token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	// ErrInvalidRefreshToken is the single answer for a refresh that fails for
	// any reason other than expiry.
	ErrInvalidRefreshToken = goerrors.New("invalid or revoked refresh token", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrInvalidState = goerrors.New("invalid or expired oauth state", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrProviderDenied = goerrors.New("provider denied authorization", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrInvalidAssertion = goerrors.New("invalid identity assertion", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrTokenExpired = goerrors.New("token expired", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeTokenExpired)

	ErrForbidden = goerrors.New("Admin only", goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeForbidden)

	ErrLoginIDTaken = goerrors.New("login_id already in use", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeConflict)

	ErrIdentityMappingBroken = goerrors.New("identity mapping broken", goerrors.CategoryConflict).
		WithCode(goerrors.CodeConflict).
		WithTextCode(TextCodeStateConflict)

	ErrBadRequest = goerrors.New("bad request", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeBadRequest)

	ErrProviderNotConfigured = goerrors.New("provider not configured", goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeBadRequest)

	ErrBadGateway = goerrors.New("identity provider request failed", goerrors.CategoryOperation).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeBadGateway)

	ErrServiceUnavailable = goerrors.New("Cannot allocate login_id", goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextCodeServiceUnavailable)

	ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeValidationFailed)

	ErrEmptyPassword = goerrors.New("password can not be empty", goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeValidationFailed)

	ErrPasswordTooLong = goerrors.New("password too long", goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(TextCodeValidationFailed)

	ErrMismatchedHashAndPassword = goerrors.New("password mismatch", goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithTextCode(TextCodeUnauthorized)

	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound)
)

// HasTextCode reports whether err carries the given text code
func HasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}
	return false
}

// IsTokenExpiredError reports whether err is an expired token error
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsUnauthorizedError reports whether err should be answered with 401
func IsUnauthorizedError(err error) bool {
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.Code == goerrors.CodeUnauthorized
	}
	return false
}

// withMeta returns a copy of base carrying the given source and metadata
func withMeta(base *goerrors.Error, source error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone = clone.WithMetadata(meta)
	}
	return clone
}

func internalError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}
