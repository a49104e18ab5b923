package oauth2

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes from RFC 6749 section 5.2, RFC 6750 section 3.1 and RFC 7591 section 3.2.2.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeInvalidClient           = "invalid_client"
	ErrCodeInvalidGrant            = "invalid_grant"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeInvalidToken            = "invalid_token"
	ErrCodeInsufficientScope       = "insufficient_scope"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeServerError             = "server_error"
	ErrCodeInvalidRedirectURI      = "invalid_redirect_uri"
	ErrCodeInvalidClientMetadata   = "invalid_client_metadata"
)

// Error is an OAuth2 protocol error. Status is the HTTP status the endpoint should use.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
	cause       error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds an Error with the conventional status for its code.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description, Status: statusFor(code)}
}

// WrapError attaches the underlying cause, which is logged but never sent to the client.
func WrapError(cause error, code, description string) *Error {
	e := NewError(code, description)
	e.cause = cause
	return e
}

// AsError converts any error into an *Error, treating unknown errors as server_error.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return WrapError(err, ErrCodeServerError, "internal error")
}

func statusFor(code string) int {
	switch code {
	case ErrCodeInvalidClient, ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrCodeInsufficientScope, ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
