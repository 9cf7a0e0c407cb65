package auth_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-folio-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeErrorBody(t *testing.T, resp *http.Response) auth.ErrorBody {
	t.Helper()
	var body auth.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "unauthorized",
			err:     auth.ErrInvalidCredentials,
			status:  http.StatusUnauthorized,
			code:    auth.TextCodeUnauthorized,
			message: "invalid credentials",
		},
		{
			name:   "conflict",
			err:    auth.ErrLoginIDTaken,
			status: http.StatusConflict,
			code:   auth.TextCodeConflict,
		},
		{
			name:   "state conflict",
			err:    auth.ErrIdentityMappingBroken,
			status: http.StatusConflict,
			code:   auth.TextCodeStateConflict,
		},
		{
			name:   "bad gateway",
			err:    auth.ErrBadGateway,
			status: http.StatusBadGateway,
			code:   auth.TextCodeBadGateway,
		},
		{
			name:    "service unavailable",
			err:     auth.ErrServiceUnavailable,
			status:  http.StatusServiceUnavailable,
			code:    auth.TextCodeServiceUnavailable,
			message: "Cannot allocate login_id",
		},
		{
			name:    "plain error hides internals",
			err:     errors.New("pq: connection refused to 10.0.0.3"),
			status:  http.StatusInternalServerError,
			code:    auth.TextCodeInternal,
			message: "Internal server error",
		},
		{
			name:    "fiber not found",
			err:     fiber.ErrNotFound,
			status:  http.StatusNotFound,
			code:    auth.TextCodeNotFound,
			message: "Resource not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: auth.NewHTTPErrorHandler(nil)})
			app.Get("/boom", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body := decodeErrorBody(t, resp)
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "/boom", body.Path)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}

			ts, err := time.Parse(time.RFC3339, body.Timestamp)
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now(), ts, time.Minute)
		})
	}
}

func TestHTTPErrorHandlerUnknownRoute(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: auth.NewHTTPErrorHandler(nil)})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, auth.TextCodeNotFound, decodeErrorBody(t, resp).Code)
}
