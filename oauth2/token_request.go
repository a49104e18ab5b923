package oauth2

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

// TokenRequest holds parameters for the OAuth2 token request (the /oauth2/token form body).
type TokenRequest struct {
	GrantType GrantType

	// ClientID and ClientSecret authenticate the client. Required for both grants.
	// Sent in the form body or with HTTP Basic.
	ClientID     string
	ClientSecret string

	// Code, RedirectURI and CodeVerifier belong to the authorization_code grant.
	Code         string
	RedirectURI  string
	CodeVerifier string

	// RefreshToken and an optional narrower Scope belong to the refresh_token grant.
	RefreshToken string
	Scope        string
}

// ParseTokenRequest reads a parsed form and, if present, HTTP Basic client credentials.
func ParseTokenRequest(r *http.Request) TokenRequest {
	tr := TokenRequest{
		GrantType:    GrantType(r.PostFormValue("grant_type")),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	}
	if id, secret, ok := BasicClientCredentials(r); ok {
		tr.ClientID, tr.ClientSecret = id, secret
	}
	return tr
}

// BasicClientCredentials decodes RFC 6749 section 2.3.1 Basic credentials, which are
// form-urlencoded before being base64 encoded.
func BasicClientCredentials(r *http.Request) (clientID, clientSecret string, ok bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", false
	}
	creds := strings.SplitN(string(decoded), ":", 2)
	if len(creds) != 2 {
		return "", "", false
	}
	id, err1 := url.QueryUnescape(creds[0])
	secret, err2 := url.QueryUnescape(creds[1])
	if err1 != nil || err2 != nil {
		return creds[0], creds[1], true
	}
	return id, secret, true
}
