package auth

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
const DefaultPhoneRegion = "US"

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// RegisterRequest is the self registration payload
type RegisterRequest struct {
	LoginID     string `json:"login_id"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LoginID, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 0), validation.By(maxBytes(MaxPasswordBytes))),
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Email, is.Email),
		validation.Field(&r.Phone, validation.Length(7, 30), validation.By(validPhone)),
	)
}

// LoginRequest is the password login payload
type LoginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LoginID, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// RefreshRequest carries a refresh token for rotation or revocation
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will validate the payload
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required, validation.Length(10, 0)),
	)
}

// AssertionRequest carries a signed identity assertion
type AssertionRequest struct {
	IDToken string `json:"id_token"`
}

// Validate will validate the payload
func (r AssertionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required, validation.Length(10, 0)),
	)
}

// TokenResponse is returned by every operation that issues a session
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

// OAuthStart is the authorization redirect for a provider
type OAuthStart struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// OAuthCallback holds the query parameters of a provider callback
type OAuthCallback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// maxBytes limits the encoded size of a string, which Length does not since
// it counts runes
func maxBytes(limit int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("must be at most %d bytes", limit)
		}
		return nil
	}
}

func validPhone(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := normalizePhone(s); err != nil {
		return err
	}
	return nil
}

// normalizePhone returns the E.164 form of phone
func normalizePhone(phone string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(phone), DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", errors.New("must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// validationFailed converts ozzo validation errors into the rich error
// answered with 422
func validationFailed(err error) error {
	if err == nil {
		return nil
	}

	details := map[string]any{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				details[field] = ferr.Error()
			}
		}
	} else {
		details["error"] = err.Error()
	}

	return withMeta(ErrValidation, err, details)
}
