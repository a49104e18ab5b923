package oauth2

import (
	"net/url"
	"strings"
)

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query parameters at the /oauth2/authorize endpoint.
type AuthorizationParameters struct {
	// ClientID is the public client identifier (the application's uid).
	ClientID string

	// ResponseType must be "code".
	ResponseType ResponseType

	// RedirectURI must exactly match one of the client's registered URIs.
	RedirectURI string

	// ResponseMode controls how the code is returned (query or fragment). Defaults to query.
	ResponseMode ResponseModeType

	// Scope is the space-separated list of requested scopes. Empty means every scope the
	// client is registered for.
	Scope string

	// State is echoed back on the redirect for CSRF protection.
	State string

	// CodeChallenge and CodeChallengeMethod carry PKCE. Both or neither.
	CodeChallenge       string
	CodeChallengeMethod CodeMethodType
}

// ParseAuthorizationParameters reads the authorize query string.
func ParseAuthorizationParameters(q url.Values) *AuthorizationParameters {
	return &AuthorizationParameters{
		ClientID:            q.Get("client_id"),
		ResponseType:        ResponseType(q.Get("response_type")),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseMode:        ResponseModeType(q.Get("response_mode")),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: CodeMethodType(q.Get("code_challenge_method")),
	}
}

// Validate checks the request shape without reference to a client.
func (p *AuthorizationParameters) Validate(requirePKCE bool) error {
	if strings.TrimSpace(p.ClientID) == "" {
		return NewError(ErrCodeInvalidRequest, "client_id is required")
	}
	if p.RedirectURI == "" {
		return NewError(ErrCodeInvalidRequest, "redirect_uri is required")
	}
	if p.ResponseType != CodeResponseType {
		return NewError(ErrCodeUnsupportedResponseType, "response_type must be code")
	}
	switch p.ResponseMode {
	case "", QueryResponseMode, FragmentResponseMode:
	default:
		return NewError(ErrCodeInvalidRequest, "unsupported response_mode")
	}
	return ValidatePKCE(p.CodeChallenge, p.CodeChallengeMethod, requirePKCE)
}

// ValidatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func ValidatePKCE(codeChallenge string, method CodeMethodType, required bool) error {
	if codeChallenge == "" && method == "" {
		if required {
			return NewError(ErrCodeInvalidRequest, "code_challenge and code_challenge_method are required")
		}
		return nil
	}
	if codeChallenge == "" || method == "" {
		return NewError(ErrCodeInvalidRequest, "code_challenge and code_challenge_method must be provided together")
	}
	// RFC 7636: 43 to 128 characters
	if len(codeChallenge) < 43 || len(codeChallenge) > 128 {
		return NewError(ErrCodeInvalidRequest, "code_challenge length must be between 43 and 128 characters")
	}
	if method != CodeMethodTypeS256 && method != CodeMethodTypeNone {
		return NewError(ErrCodeInvalidRequest, "code_challenge_method must be 'S256' or 'plain'")
	}
	return nil
}
