package grants

import (
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/utils"
)

// TokenType distinguishes the kinds of grant a ledger row can hold.
type TokenType string

const TokenTypeAuthorizationCode TokenType = "authorization_code"

// Grant is a short-lived, single-use authorization code bound to a client and user.
type Grant struct {
	ID                  string
	ApplicationID       string // clients.Client.ID
	UserID              string
	Token               string
	TokenType           TokenType
	RedirectURI         string
	Scopes              string // space-delimited
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	CreatedAt           time.Time
}

// Active reports whether the grant can still be exchanged at now.
func (g *Grant) Active(now time.Time) bool {
	return g.RevokedAt == nil && now.Before(g.ExpiresAt)
}

func (g *Grant) ScopeList() []string {
	return utils.SplitScopes(g.Scopes)
}
