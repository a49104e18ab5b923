package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow, the only flow supported.
	// Example: /oauth2/authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// ResponseModeType denotes how the authorization response parameters are returned to the client.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	// Example: https://client.example.com/callback?code=ABC123&state=xyz
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	// Example: https://client.example.com/callback#code=ABC123&state=xyz
	FragmentResponseMode ResponseModeType = "fragment"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// The method and challenge are stored verbatim on the grant and checked at exchange.
type CodeMethodType string

const (
	// CodeMethodTypeS256: code_challenge = BASE64URL(SHA256(code_verifier))
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone (labeled "plain"): code_challenge = code_verifier
	CodeMethodTypeNone CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges a single-use authorization code for a token pair.
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier (if PKCE)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenCodeGrant exchanges a refresh token for a new token pair. The old pair is revoked.
	// Token request includes: refresh_token, client_id, client_secret, optional narrower scope
	RefreshTokenCodeGrant GrantType = "refresh_token"
)

// SupportedGrants lists the grant types every registered client may use.
var SupportedGrants = []GrantType{AuthorizationCodeGrant, RefreshTokenCodeGrant}

// TokenTypeHint is the RFC 7009 token_type_hint sent to the revocation endpoint.
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)
