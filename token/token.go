package token

import (
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/utils"
)

// AccessToken is one row of the token ledger: an access token and its paired refresh token.
// Revoking the row revokes both halves.
type AccessToken struct {
	ID            string
	ApplicationID string // clients.Client.ID
	UserID        string
	Token         string
	RefreshToken  string
	Scopes        string // space-delimited
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

func (t *AccessToken) Revoked() bool {
	return t.RevokedAt != nil
}

// AccessExpired reports whether the access half has lapsed at now.
func (t *AccessToken) AccessExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *AccessToken) ScopeList() []string {
	return utils.SplitScopes(t.Scopes)
}
