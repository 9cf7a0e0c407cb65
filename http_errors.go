package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Timestamp string         `json:"timestamp"`
	Path      string         `json:"path"`
	Status    int            `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

var statusTextCodes = map[int]string{
	http.StatusBadRequest:          TextCodeBadRequest,
	http.StatusUnauthorized:        TextCodeUnauthorized,
	http.StatusForbidden:           TextCodeForbidden,
	http.StatusNotFound:            TextCodeNotFound,
	http.StatusConflict:            TextCodeConflict,
	http.StatusUnprocessableEntity: TextCodeValidationFailed,
	http.StatusBadGateway:          TextCodeBadGateway,
	http.StatusServiceUnavailable:  TextCodeServiceUnavailable,
}

// NewHTTPErrorHandler renders errors as ErrorBody. Rich errors keep their
// status and text code; anything else becomes a 500 without internals.
func NewHTTPErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		body := ErrorBody{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Path(),
		}

		var richErr *errors.Error
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &richErr):
			body.Status = richErr.Code
			if body.Status == 0 {
				body.Status = http.StatusInternalServerError
			}
			body.Code = richErr.TextCode
			body.Message = richErr.Message
			body.Details = richErr.Metadata
		case errors.As(err, &fiberErr):
			body.Status = fiberErr.Code
			body.Message = fiberErr.Message
			if body.Status == http.StatusNotFound {
				body.Message = "Resource not found"
			}
		default:
			body.Status = http.StatusInternalServerError
		}

		if body.Code == "" {
			body.Code = statusTextCodes[body.Status]
		}

		if body.Status >= http.StatusInternalServerError && body.Status != http.StatusBadGateway && body.Status != http.StatusServiceUnavailable {
			logger.Error("request failed",
				"path", body.Path,
				"method", c.Method(),
				"error", err,
				"details", print.MaybePrettyJSON(body.Details),
			)
			body.Code = TextCodeInternal
			body.Message = "Internal server error"
			body.Details = nil
		} else {
			logger.Debug("request rejected",
				"path", body.Path,
				"status", body.Status,
				"code", body.Code,
				"error", err,
			)
		}

		if body.Code == "" {
			body.Code = http.StatusText(body.Status)
		}

		return c.Status(body.Status).JSON(body)
	}
}
