package oauthmodel_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	fakeclientrepo "github.com/jrsteele09/mcp-oauth-server/clients/fakerepo"
	fakegrantrepo "github.com/jrsteele09/mcp-oauth-server/grants/repofake"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/oauthmodel"
	"github.com/jrsteele09/mcp-oauth-server/store"
	tokenfakerepo "github.com/jrsteele09/mcp-oauth-server/token/repofake"
	"github.com/jrsteele09/mcp-oauth-server/users"
	fakeuserrepo "github.com/jrsteele09/mcp-oauth-server/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64,}$`)

type modelFixture struct {
	model  *oauthmodel.Model
	grants *fakegrantrepo.FakeGrantRepo
	tokens *tokenfakerepo.FakeTokenRepo
	client *clients.Client
	user   *users.User
	now    time.Time
}

func setupModelFixture(t *testing.T, cfg oauthmodel.Config) *modelFixture {
	t.Helper()
	ctx := context.Background()

	f := &modelFixture{
		grants: fakegrantrepo.NewFakeGrantRepo(),
		tokens: tokenfakerepo.NewFakeTokensRepo(),
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clientRepo := fakeclientrepo.NewFakeClientRepo()
	userRepo := fakeuserrepo.NewFakeUserRepo()

	m, err := oauthmodel.New(oauthmodel.Repos{
		Clients: clientRepo,
		Users:   userRepo,
		Grants:  f.grants,
		Tokens:  f.tokens,
	}, cfg, oauthmodel.WithNowFunc(func() time.Time { return f.now }))
	require.NoError(t, err)
	f.model = m

	f.client, err = m.RegisterClient(ctx, clients.Registration{
		Name:         "TestApp",
		RedirectURIs: []string{"https://cb/"},
		Scopes:       []string{"read", "write", "profile"},
	})
	require.NoError(t, err)

	f.user, err = users.NewUser("jane", "jane@example.com", "Jane Doe", "Password123!")
	require.NoError(t, err)
	require.NoError(t, userRepo.Create(ctx, f.user))
	return f
}

func (f *modelFixture) clientView() oauthmodel.Client {
	return oauthmodel.Client{ID: f.client.UID}
}

func (f *modelFixture) userView() oauthmodel.User {
	return oauthmodel.User{ID: f.user.ID}
}

func (f *modelFixture) saveCode(t *testing.T, challenge, method string) string {
	t.Helper()
	code, err := f.model.GenerateAuthorizationCode()
	require.NoError(t, err)
	_, err = f.model.SaveAuthorizationCode(context.Background(), oauthmodel.CodeFields{
		AuthorizationCode:   code,
		RedirectURI:         "https://cb/",
		Scope:               []string{"read", "profile"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
	}, f.clientView(), f.userView())
	require.NoError(t, err)
	return code
}

func (f *modelFixture) saveToken(t *testing.T, scope ...string) *oauthmodel.Token {
	t.Helper()
	access, err := f.model.GenerateAccessToken()
	require.NoError(t, err)
	refresh, err := f.model.GenerateRefreshToken()
	require.NoError(t, err)
	tok, err := f.model.SaveToken(context.Background(), oauthmodel.TokenFields{
		AccessToken:  access,
		RefreshToken: refresh,
		Scope:        scope,
	}, f.clientView(), f.userView())
	require.NoError(t, err)
	return tok
}

func TestNewRequiresRepos(t *testing.T) {
	_, err := oauthmodel.New(oauthmodel.Repos{}, oauthmodel.DefaultConfig())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Clients repo is required")
}

func TestConfigDefaults(t *testing.T) {
	f := setupModelFixture(t, oauthmodel.Config{TokenLength: 4, RefreshExpiry: "bogus"})
	cfg := f.model.Config()
	require.Equal(t, time.Hour, cfg.AccessTokenLifetime)
	require.Equal(t, 30*24*time.Hour, cfg.RefreshTokenLifetime)
	require.Equal(t, 10*time.Minute, cfg.AuthorizationCodeLifetime)
	require.Equal(t, oauthmodel.RefreshExpiryAbsolute, cfg.RefreshExpiry)
	require.Equal(t, 32, cfg.TokenLength)
}

func TestTokenLengthIsCapped(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.Config{TokenLength: 300})
	require.Equal(t, 256, f.model.Config().TokenLength)

	code := f.saveCode(t, "", "")
	require.Len(t, code, oauthmodel.MaxTokenLength)

	got, err := f.model.GetAuthorizationCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestAuthorizationCodeLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.DefaultConfig())

	t.Run("pkce fields round trip unchanged", func(t *testing.T) {
		code := f.saveCode(t, "abc", "S256")
		got, err := f.model.GetAuthorizationCode(ctx, code)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, "abc", got.CodeChallenge)
		require.Equal(t, "S256", got.CodeChallengeMethod)
		require.Equal(t, "https://cb/", got.RedirectURI)
		require.Equal(t, []string{"read", "profile"}, got.Scope)
		require.Equal(t, f.client.UID, got.Client.ID)
		require.Equal(t, f.user.ID, got.User.ID)
		require.Equal(t, f.now.Add(10*time.Minute), got.ExpiresAt)
	})

	t.Run("consumed exactly once", func(t *testing.T) {
		code := f.saveCode(t, "", "")

		ok, err := f.model.RevokeAuthorizationCode(ctx, oauthmodel.CodeRef{Code: code})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := f.model.GetAuthorizationCode(ctx, code)
		require.NoError(t, err)
		require.Nil(t, got)

		ok, err = f.model.RevokeAuthorizationCode(ctx, oauthmodel.CodeRef{Code: code})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("lazy expiry", func(t *testing.T) {
		code := f.saveCode(t, "", "")
		f.now = f.now.Add(10 * time.Minute)
		defer func() { f.now = f.now.Add(-10 * time.Minute) }()

		got, err := f.model.GetAuthorizationCode(ctx, code)
		require.NoError(t, err)
		require.Nil(t, got)

		stored, ok := f.grants.Get(code)
		require.True(t, ok)
		require.Nil(t, stored.RevokedAt)
	})

	t.Run("unknown and malformed codes", func(t *testing.T) {
		for _, code := range []string{"", "nope", " padded ", string(make([]byte, oauthmodel.MaxTokenLength+1))} {
			got, err := f.model.GetAuthorizationCode(ctx, code)
			require.NoError(t, err)
			require.Nil(t, got)

			ok, err := f.model.RevokeAuthorizationCode(ctx, oauthmodel.CodeRef{Code: code})
			require.NoError(t, err)
			require.False(t, ok)
		}
	})
}

func TestTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.DefaultConfig())

	t.Run("scope order preserved", func(t *testing.T) {
		saved := f.saveToken(t, "write", "read", "profile")
		require.Equal(t, f.now.Add(time.Hour), saved.AccessTokenExpiresAt)
		require.Equal(t, f.now.Add(30*24*time.Hour), saved.RefreshTokenExpiresAt)

		got, err := f.model.GetAccessToken(ctx, saved.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, []string{"write", "read", "profile"}, got.Scope)
		require.Equal(t, saved.RefreshToken, got.RefreshToken)
		require.Equal(t, []string{"authorization_code", "refresh_token"}, got.Client.Grants)
		require.Equal(t, "jane", got.User.Username)
	})

	t.Run("refresh lookup and revoke revokes both halves", func(t *testing.T) {
		saved := f.saveToken(t, "read")

		got, err := f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, saved.AccessToken, got.AccessToken)

		ok, err := f.model.RevokeToken(ctx, oauthmodel.TokenRef{RefreshToken: saved.RefreshToken})
		require.NoError(t, err)
		require.True(t, ok)

		got, err = f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.Nil(t, got)
		got, err = f.model.GetAccessToken(ctx, saved.AccessToken)
		require.NoError(t, err)
		require.Nil(t, got)

		ok, err = f.model.RevokeToken(ctx, oauthmodel.TokenRef{RefreshToken: saved.RefreshToken})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("revoke by access token", func(t *testing.T) {
		saved := f.saveToken(t, "read")
		ok, err := f.model.RevokeAccessToken(ctx, saved.AccessToken)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		ok, err := f.model.RevokeToken(ctx, oauthmodel.TokenRef{RefreshToken: "x"})
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = f.model.RevokeToken(ctx, oauthmodel.TokenRef{})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("refresh token is optional", func(t *testing.T) {
		access, err := f.model.GenerateAccessToken()
		require.NoError(t, err)
		saved, err := f.model.SaveToken(ctx, oauthmodel.TokenFields{
			AccessToken: access,
			Scope:       []string{"read"},
		}, f.clientView(), f.userView())
		require.NoError(t, err)
		require.Empty(t, saved.RefreshToken)
		require.True(t, saved.RefreshTokenExpiresAt.IsZero())

		got, err := f.model.GetAccessToken(ctx, access)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Empty(t, got.RefreshToken)
		require.True(t, got.RefreshTokenExpiresAt.IsZero())

		ok, err := f.model.RevokeAccessToken(ctx, access)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = f.model.SaveToken(ctx, oauthmodel.TokenFields{AccessToken: "a2", RefreshToken: " padded "}, f.clientView(), f.userView())
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
	})

	t.Run("expired access token is still returned", func(t *testing.T) {
		saved := f.saveToken(t, "read")
		f.now = f.now.Add(2 * time.Hour)
		defer func() { f.now = f.now.Add(-2 * time.Hour) }()

		got, err := f.model.GetAccessToken(ctx, saved.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.False(t, f.now.Before(got.AccessTokenExpiresAt))
	})
}

func TestRefreshExpiryPolicy(t *testing.T) {
	ctx := context.Background()
	month := 30 * 24 * time.Hour

	t.Run("absolute", func(t *testing.T) {
		f := setupModelFixture(t, oauthmodel.DefaultConfig())
		saved := f.saveToken(t, "read")
		issued := f.now

		f.now = issued.Add(month - time.Second)
		got, err := f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, issued.Add(month), got.RefreshTokenExpiresAt)

		f.now = issued.Add(month)
		got, err = f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("sliding", func(t *testing.T) {
		cfg := oauthmodel.DefaultConfig()
		cfg.RefreshExpiry = oauthmodel.RefreshExpirySliding
		f := setupModelFixture(t, cfg)
		saved := f.saveToken(t, "read")

		f.now = f.now.Add(2 * month)
		got, err := f.model.GetRefreshToken(ctx, saved.RefreshToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, f.now.Add(month), got.RefreshTokenExpiresAt)
	})
}

func TestGetClient(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.DefaultConfig())

	t.Run("correct secret", func(t *testing.T) {
		secret := f.client.Secret
		got, err := f.model.GetClient(ctx, f.client.UID, &secret)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, f.client.UID, got.ID)
		require.Equal(t, []string{"https://cb/"}, got.RedirectURIs)
		require.Equal(t, []string{"read", "write", "profile"}, got.Scope)
	})

	t.Run("wrong secret", func(t *testing.T) {
		wrong := f.client.Secret + "x"
		got, err := f.model.GetClient(ctx, f.client.UID, &wrong)
		require.NoError(t, err)
		require.Nil(t, got)

		empty := ""
		got, err = f.model.GetClient(ctx, f.client.UID, &empty)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("public client lookup", func(t *testing.T) {
		got, err := f.model.GetClient(ctx, f.client.UID, nil)
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("unknown client", func(t *testing.T) {
		got, err := f.model.GetClient(ctx, "missing", nil)
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("view uses camelCase fields", func(t *testing.T) {
		got, err := f.model.GetClient(ctx, f.client.UID, nil)
		require.NoError(t, err)
		raw, err := json.Marshal(got)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"redirectUris"`)
	})
}

func TestSaveRequiresResolvableClient(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.DefaultConfig())
	ghost := oauthmodel.Client{ID: "ghost"}

	_, err := f.model.SaveToken(ctx, oauthmodel.TokenFields{AccessToken: "a1", RefreshToken: "r1"}, ghost, f.userView())
	require.ErrorIs(t, err, errors.ErrClientNotResolved)

	_, err = f.model.SaveAuthorizationCode(ctx, oauthmodel.CodeFields{AuthorizationCode: "c1"}, ghost, f.userView())
	require.ErrorIs(t, err, errors.ErrClientNotResolved)

	_, err = f.model.SaveToken(ctx, oauthmodel.TokenFields{AccessToken: "a1", RefreshToken: "r1"}, f.clientView(), oauthmodel.User{})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestVerifyScope(t *testing.T) {
	tok := &oauthmodel.Token{Scope: []string{"read", "profile"}}
	require.True(t, oauthmodel.VerifyScope(tok, "read"))
	require.False(t, oauthmodel.VerifyScope(tok, "write"))
	require.False(t, oauthmodel.VerifyScope(tok, "rea"))
	require.True(t, oauthmodel.VerifyScope(tok, ""))
	require.False(t, oauthmodel.VerifyScope(nil, "read"))

	require.Contains(t, oauthmodel.ScopeSet("read  write"), "write")
	require.Contains(t, oauthmodel.ScopeSet([]string{"read write", "profile"}), "write")
	require.NotContains(t, oauthmodel.ScopeSet(""), "")
}

func TestGenerators(t *testing.T) {
	f := setupModelFixture(t, oauthmodel.DefaultConfig())
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		for _, gen := range []func() (string, error){
			f.model.GenerateAccessToken,
			f.model.GenerateRefreshToken,
			f.model.GenerateAuthorizationCode,
		} {
			v, err := gen()
			require.NoError(t, err)
			require.Regexp(t, hexToken, v)
			_, dup := seen[v]
			require.False(t, dup)
			seen[v] = struct{}{}
		}
	}
}

func TestRegisterClientIsIdempotentByName(t *testing.T) {
	ctx := context.Background()
	f := setupModelFixture(t, oauthmodel.DefaultConfig())
	require.Regexp(t, hexToken, f.client.UID)
	require.Regexp(t, hexToken, f.client.Secret)

	again, err := f.model.RegisterClient(ctx, clients.Registration{
		Name:         "TestApp",
		RedirectURIs: []string{"https://cb/v2"},
	})
	require.NoError(t, err)
	require.Equal(t, f.client.UID, again.UID)
	require.Equal(t, f.client.Secret, again.Secret)
	require.Equal(t, []string{"https://cb/v2"}, again.RedirectURIs)

	_, err = f.model.RegisterClient(ctx, clients.Registration{Name: "NoRedirects"})
	require.ErrorIs(t, err, errors.ErrInvalidRedirectURI)
}

func TestConcurrentCodeExchangeOnSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "oauth.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	m, err := oauthmodel.New(oauthmodel.Repos{
		Clients: s.Clients(),
		Users:   s.Users(),
		Grants:  s.Grants(),
		Tokens:  s.Tokens(),
	}, oauthmodel.DefaultConfig())
	require.NoError(t, err)

	client, err := m.RegisterClient(ctx, clients.Registration{Name: "TestApp", RedirectURIs: []string{"https://cb/"}})
	require.NoError(t, err)
	user, err := users.NewUser("jane", "jane@example.com", "Jane", "Password123!")
	require.NoError(t, err)
	require.NoError(t, s.Users().Create(ctx, user))

	code, err := m.GenerateAuthorizationCode()
	require.NoError(t, err)
	_, err = m.SaveAuthorizationCode(ctx, oauthmodel.CodeFields{
		AuthorizationCode:   code,
		RedirectURI:         "https://cb/",
		Scope:               []string{"read"},
		CodeChallenge:       "abc",
		CodeChallengeMethod: "S256",
	}, oauthmodel.Client{ID: client.UID}, oauthmodel.User{ID: user.ID})
	require.NoError(t, err)

	got, err := m.GetAuthorizationCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "abc", got.CodeChallenge)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.RevokeAuthorizationCode(ctx, oauthmodel.CodeRef{Code: code})
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)

	got, err = m.GetAuthorizationCode(ctx, code)
	require.NoError(t, err)
	require.Nil(t, got)
}
