package oauthmodel

import (
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/oauth2"
	"github.com/jrsteele09/mcp-oauth-server/users"
)

// Client is the engine's view of a registered application. ID is the public uid.
type Client struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	RedirectURIs []string `json:"redirectUris"`
	Grants       []string `json:"grants"`
	Scope        []string `json:"scope,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Token is the engine's view of one token ledger row.
type Token struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	Scope                 []string  `json:"scope"`
	Client                Client    `json:"client"`
	User                  User      `json:"user"`
}

// AuthorizationCode is the engine's view of a grant. PKCE fields are exposed verbatim.
type AuthorizationCode struct {
	AuthorizationCode   string    `json:"authorizationCode"`
	ExpiresAt           time.Time `json:"expiresAt"`
	RedirectURI         string    `json:"redirectUri"`
	Scope               []string  `json:"scope"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
	Client              Client    `json:"client"`
	User                User      `json:"user"`
}

// TokenFields is what the engine issues for SaveToken.
type TokenFields struct {
	AccessToken  string
	RefreshToken string
	Scope        []string
}

// CodeFields is what the engine issues for SaveAuthorizationCode.
type CodeFields struct {
	AuthorizationCode   string
	RedirectURI         string
	Scope               []string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CodeRef identifies an authorization code to revoke.
type CodeRef struct {
	Code string
}

// TokenRef identifies a token pair to revoke by its refresh half.
type TokenRef struct {
	RefreshToken string
}

func clientView(c *clients.Client) Client {
	grantTypes := make([]string, 0, len(oauth2.SupportedGrants))
	for _, g := range oauth2.SupportedGrants {
		grantTypes = append(grantTypes, string(g))
	}
	return Client{
		ID:           c.UID,
		Name:         c.Name,
		RedirectURIs: append([]string(nil), c.RedirectURIs...),
		Grants:       grantTypes,
		Scope:        append([]string(nil), c.Scopes...),
	}
}

func userView(u *users.User) User {
	return User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Name:     u.Name,
	}
}
