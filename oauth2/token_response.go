package oauth2

// TokenResponse is the RFC 6749 token endpoint response.
type TokenResponse struct {
	// AccessToken is an opaque bearer token.
	// Usage: "Authorization: Bearer <access_token>" or ?access_token=<access_token>
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken obtains a new pair via grant_type=refresh_token. It rotates on every use.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}
