package client

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidPhone   = "INVALID_PHONE_FORMAT"
	textCodeIdentityAuth   = "IDENTITY_AUTH_FAILED"
	textCodeSignOutFailed  = "SIGN_OUT_FAILED"
	textCodeSessionInvalid = "SESSION_INVALID"
	textCodeBackendHTTP    = "BACKEND_HTTP_ERROR"
)

// ErrInvalidPhone is returned when a phone number is not a valid Singapore
// local number in any of the accepted shapes.
var ErrInvalidPhone = goerrors.New("invalid Singapore phone, enter 8 digits", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

// ErrPhoneRequired is returned for empty phone input.
var ErrPhoneRequired = goerrors.New("phone required", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityAuth is returned when the identity provider rejects credentials.
var ErrIdentityAuth = goerrors.New("identity provider rejected credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeIdentityAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrSignOutFailed is returned when the provider sign-out call itself fails.
// Local session state is deliberately left untouched on this path.
var ErrSignOutFailed = goerrors.New("identity provider sign out failed", goerrors.CategoryOperation).
	WithTextCode(textCodeSignOutFailed)

// ErrSessionInvalid is returned when the backend explicitly reports the
// current credential as invalid.
var ErrSessionInvalid = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionInvalid).
	WithCode(goerrors.CodeUnauthorized)

// NewHTTPError wraps a non-2xx backend response. The decoded response payload
// travels in the error metadata so callers can inspect it.
func NewHTTPError(status int, statusText, message string, payload any) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryOperation).
		WithTextCode(textCodeBackendHTTP).
		WithCode(status).
		WithMetadata(map[string]any{
			"status":      status,
			"status_text": statusText,
			"payload":     payload,
		})
}

// IsHTTPError reports whether err is a backend HTTP error, returning the
// status code when it is.
func IsHTTPError(err error) (int, bool) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return 0, false
	}
	if rich.TextCode != textCodeBackendHTTP {
		return 0, false
	}
	return rich.Code, true
}
