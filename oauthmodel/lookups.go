package oauthmodel

import (
	"context"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/token"
	"github.com/jrsteele09/mcp-oauth-server/users"
	pkgerrors "github.com/pkg/errors"
)

// GetAccessToken returns the unrevoked token whose access half matches accessToken, or nil.
// Expiry of the access half is left to the caller via AccessTokenExpiresAt.
func (m *Model) GetAccessToken(ctx context.Context, accessToken string) (*Token, error) {
	if !validOpaque(accessToken) {
		return nil, nil
	}
	t, err := m.repos.Tokens.GetByToken(ctx, accessToken)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.GetAccessToken] tokens.GetByToken")
	}
	return m.tokenView(ctx, t)
}

// GetRefreshToken returns the unrevoked token whose refresh half matches refreshToken, or
// nil. Under the absolute policy a refresh token past its lifetime is treated as absent.
func (m *Model) GetRefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if !validOpaque(refreshToken) {
		return nil, nil
	}
	t, err := m.repos.Tokens.GetByRefreshToken(ctx, refreshToken)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.GetRefreshToken] tokens.GetByRefreshToken")
	}
	view, err := m.tokenView(ctx, t)
	if err != nil || view == nil {
		return view, err
	}
	if !m.now().Before(view.RefreshTokenExpiresAt) {
		return nil, nil
	}
	return view, nil
}

// GetAuthorizationCode returns the unrevoked, unexpired authorization code, or nil.
func (m *Model) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	if !validOpaque(code) {
		return nil, nil
	}
	g, err := m.repos.Grants.GetActive(ctx, code, grants.TokenTypeAuthorizationCode, m.now())
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.GetAuthorizationCode] grants.GetActive")
	}

	client, user, err := m.joinOwners(ctx, g.ApplicationID, g.UserID)
	if err != nil || client == nil || user == nil {
		return nil, err
	}
	return &AuthorizationCode{
		AuthorizationCode:   g.Token,
		ExpiresAt:           g.ExpiresAt,
		RedirectURI:         g.RedirectURI,
		Scope:               g.ScopeList(),
		CodeChallenge:       g.CodeChallenge,
		CodeChallengeMethod: g.CodeChallengeMethod,
		Client:              clientView(client),
		User:                userView(user),
	}, nil
}

// GetClient finds a client by its public client_id. When clientSecret is non-nil it must
// equal the stored secret; a nil secret is the public-client lookup.
func (m *Model) GetClient(ctx context.Context, clientID string, clientSecret *string) (*Client, error) {
	if !validOpaque(clientID) {
		return nil, nil
	}
	c, err := m.repos.Clients.GetByUID(ctx, clientID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.GetClient] clients.GetByUID")
	}
	if clientSecret != nil && !c.SecretMatches(*clientSecret) {
		return nil, nil
	}
	view := clientView(c)
	return &view, nil
}

func (m *Model) tokenView(ctx context.Context, t *token.AccessToken) (*Token, error) {
	client, user, err := m.joinOwners(ctx, t.ApplicationID, t.UserID)
	if err != nil || client == nil || user == nil {
		return nil, err
	}
	return &Token{
		AccessToken:           t.Token,
		AccessTokenExpiresAt:  t.ExpiresAt,
		RefreshToken:          t.RefreshToken,
		RefreshTokenExpiresAt: m.refreshExpiry(t),
		Scope:                 t.ScopeList(),
		Client:                clientView(client),
		User:                  userView(user),
	}, nil
}

// refreshExpiry is zero for a row without a refresh half.
func (m *Model) refreshExpiry(t *token.AccessToken) time.Time {
	if t.RefreshToken == "" {
		return time.Time{}
	}
	if m.cfg.RefreshExpiry == RefreshExpirySliding {
		return m.now().Add(m.cfg.RefreshTokenLifetime)
	}
	return t.CreatedAt.Add(m.cfg.RefreshTokenLifetime)
}

// joinOwners loads the client and user a ledger row belongs to. A missing owner yields nil
// without error.
func (m *Model) joinOwners(ctx context.Context, applicationID, userID string) (*clients.Client, *users.User, error) {
	client, err := m.repos.Clients.GetByID(ctx, applicationID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "[Model.joinOwners] clients.GetByID")
	}
	user, err := m.repos.Users.GetByID(ctx, userID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "[Model.joinOwners] users.GetByID")
	}
	return client, user, nil
}
