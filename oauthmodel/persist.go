package oauthmodel

import (
	"context"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/internal/utils"
	"github.com/jrsteele09/mcp-oauth-server/token"
	pkgerrors "github.com/pkg/errors"
)

// SaveToken writes a new token row for the client and user the engine has already
// authenticated. The refresh token is optional. Failing to resolve that client is an
// internal error, not a bad credential.
func (m *Model) SaveToken(ctx context.Context, fields TokenFields, client Client, user User) (*Token, error) {
	if !validOpaque(fields.AccessToken) {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[Model.SaveToken] access token is required")
	}
	if fields.RefreshToken != "" && !validOpaque(fields.RefreshToken) {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[Model.SaveToken] malformed refresh token")
	}
	app, err := m.resolveClient(ctx, client.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.SaveToken]")
	}
	if user.ID == "" {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[Model.SaveToken] user is required")
	}

	now := m.now()
	row := &token.AccessToken{
		ApplicationID: app.ID,
		UserID:        user.ID,
		Token:         fields.AccessToken,
		RefreshToken:  fields.RefreshToken,
		Scopes:        utils.JoinScopes(fields.Scope),
		ExpiresAt:     now.Add(m.cfg.AccessTokenLifetime),
		CreatedAt:     now,
	}
	if err := m.repos.Tokens.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.SaveToken] tokens.Create")
	}

	return &Token{
		AccessToken:           row.Token,
		AccessTokenExpiresAt:  row.ExpiresAt,
		RefreshToken:          row.RefreshToken,
		RefreshTokenExpiresAt: m.refreshExpiry(row),
		Scope:                 row.ScopeList(),
		Client:                clientView(app),
		User:                  user,
	}, nil
}

// SaveAuthorizationCode writes a single-use code. PKCE fields are stored exactly as given.
func (m *Model) SaveAuthorizationCode(ctx context.Context, fields CodeFields, client Client, user User) (*AuthorizationCode, error) {
	if !validOpaque(fields.AuthorizationCode) {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[Model.SaveAuthorizationCode] authorization code is required")
	}
	app, err := m.resolveClient(ctx, client.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.SaveAuthorizationCode]")
	}
	if user.ID == "" {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[Model.SaveAuthorizationCode] user is required")
	}

	now := m.now()
	g := &grants.Grant{
		ApplicationID:       app.ID,
		UserID:              user.ID,
		Token:               fields.AuthorizationCode,
		TokenType:           grants.TokenTypeAuthorizationCode,
		RedirectURI:         fields.RedirectURI,
		Scopes:              utils.JoinScopes(fields.Scope),
		CodeChallenge:       fields.CodeChallenge,
		CodeChallengeMethod: fields.CodeChallengeMethod,
		ExpiresAt:           now.Add(m.cfg.AuthorizationCodeLifetime),
		CreatedAt:           now,
	}
	if err := m.repos.Grants.Create(ctx, g); err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.SaveAuthorizationCode] grants.Create")
	}

	return &AuthorizationCode{
		AuthorizationCode:   g.Token,
		ExpiresAt:           g.ExpiresAt,
		RedirectURI:         g.RedirectURI,
		Scope:               g.ScopeList(),
		CodeChallenge:       g.CodeChallenge,
		CodeChallengeMethod: g.CodeChallengeMethod,
		Client:              clientView(app),
		User:                user,
	}, nil
}

// RegisterClient creates the named client with fresh credentials, or refreshes the metadata
// of an existing client of that name. Re-registration keeps the client_id and secret.
func (m *Model) RegisterClient(ctx context.Context, reg clients.Registration) (*clients.Client, error) {
	if err := reg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.RegisterClient]")
	}
	uid, secret, err := m.newClientCredentials()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.RegisterClient]")
	}
	c, err := m.repos.Clients.FindOrCreateByName(ctx, reg, uid, secret)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.RegisterClient] clients.FindOrCreateByName")
	}
	return c, nil
}

// CreateClient registers a new client only. A taken name fails with errors.ErrDuplicate.
func (m *Model) CreateClient(ctx context.Context, reg clients.Registration) (*clients.Client, error) {
	if err := reg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.CreateClient]")
	}
	uid, secret, err := m.newClientCredentials()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.CreateClient]")
	}
	c := &clients.Client{UID: uid, Secret: secret}
	reg.Apply(c)
	if err := m.repos.Clients.Create(ctx, c); err != nil {
		return nil, pkgerrors.Wrap(err, "[Model.CreateClient] clients.Create")
	}
	return c, nil
}

func (m *Model) newClientCredentials() (uid, secret string, err error) {
	if uid, err = token.Generate(token.MinLength); err != nil {
		return "", "", pkgerrors.Wrap(err, "client id")
	}
	if secret, err = token.Generate(m.cfg.TokenLength); err != nil {
		return "", "", pkgerrors.Wrap(err, "client secret")
	}
	return uid, secret, nil
}

func (m *Model) resolveClient(ctx context.Context, clientID string) (*clients.Client, error) {
	if clientID == "" {
		return nil, errors.ErrClientNotResolved
	}
	c, err := m.repos.Clients.GetByUID(ctx, clientID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrapf(errors.ErrClientNotResolved, "client %q", clientID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
