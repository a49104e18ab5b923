package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/errors"
	"github.com/jrsteele09/mcp-oauth-server/store"
	"github.com/jrsteele09/mcp-oauth-server/token"
	"github.com/jrsteele09/mcp-oauth-server/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type storeFixture struct {
	store  *store.Store
	client *clients.Client
	user   *users.User
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "oauth.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)

	c, err := s.Clients().FindOrCreateByName(ctx, clients.Registration{
		Name:         "Trip Planner",
		RedirectURIs: []string{"https://planner.example.com/cb"},
		Scopes:       []string{"read", "profile"},
	}, "uid-1", "secret-1")
	require.NoError(t, err)

	u := &users.User{Username: "jane", Email: "Jane@Example.com", Name: "Jane", PasswordHash: "hash"}
	require.NoError(t, s.Users().Create(ctx, u))

	return &storeFixture{store: s, client: c, user: u}
}

func (f *storeFixture) createGrant(t *testing.T, code string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.Grants().Create(context.Background(), &grants.Grant{
		ApplicationID:       f.client.ID,
		UserID:              f.user.ID,
		Token:               code,
		TokenType:           grants.TokenTypeAuthorizationCode,
		RedirectURI:         "https://planner.example.com/cb",
		Scopes:              "read",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		ExpiresAt:           expiresAt,
		CreatedAt:           baseTime,
	}))
}

func (f *storeFixture) createToken(t *testing.T, access, refresh string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.Tokens().Create(context.Background(), &token.AccessToken{
		ApplicationID: f.client.ID,
		UserID:        f.user.ID,
		Token:         access,
		RefreshToken:  refresh,
		Scopes:        "read profile",
		ExpiresAt:     expiresAt,
		CreatedAt:     baseTime,
	}))
}

func TestClients(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	repo := f.store.Clients()

	t.Run("lookups", func(t *testing.T) {
		byUID, err := repo.GetByUID(ctx, "uid-1")
		require.NoError(t, err)
		require.Equal(t, f.client.ID, byUID.ID)
		require.Equal(t, "secret-1", byUID.Secret)
		require.Equal(t, []string{"https://planner.example.com/cb"}, byUID.RedirectURIs)
		require.Equal(t, []string{"read", "profile"}, byUID.Scopes)

		byID, err := repo.GetByID(ctx, f.client.ID)
		require.NoError(t, err)
		require.Equal(t, "uid-1", byID.UID)

		_, err = repo.GetByUID(ctx, "nope")
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("find or create keeps credentials", func(t *testing.T) {
		c, err := repo.FindOrCreateByName(ctx, clients.Registration{
			Name:         "Trip Planner",
			RedirectURIs: []string{"https://planner.example.com/cb", "http://localhost:3000/cb"},
			Scopes:       []string{"read"},
			LogoURI:      "https://planner.example.com/logo.png",
			Contacts:     []string{"a@example.com", "b@example.com"},
		}, "uid-2", "secret-2")
		require.NoError(t, err)
		require.Equal(t, f.client.ID, c.ID)
		require.Equal(t, "uid-1", c.UID)
		require.Equal(t, "secret-1", c.Secret)
		require.Len(t, c.RedirectURIs, 2)
		require.Equal(t, "https://planner.example.com/logo.png", c.LogoURI)
		require.Equal(t, []string{"a@example.com", "b@example.com"}, c.Contacts)
	})

	t.Run("create rejects duplicate uid", func(t *testing.T) {
		err := repo.Create(ctx, &clients.Client{UID: "uid-1", Secret: "s", Name: "Other", RedirectURIs: []string{"x"}})
		require.True(t, errors.Is(err, errors.ErrDuplicate))
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &clients.Client{UID: "uid-3", Secret: "s", Name: "Another", RedirectURIs: []string{"x"}}))
		list, err := repo.List(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "Another", list[0].Name)
	})
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	repo := f.store.Users()

	got, err := repo.GetByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	require.Equal(t, f.user.ID, got.ID)
	require.Equal(t, "hash", got.PasswordHash)

	got, err = repo.GetByUsername(ctx, "jane")
	require.NoError(t, err)
	require.Equal(t, f.user.ID, got.ID)

	err = repo.Create(ctx, &users.User{Username: "jane", Email: "x@example.com", PasswordHash: "h"})
	require.True(t, errors.Is(err, errors.ErrDuplicate))

	_, err = repo.GetByID(ctx, "missing")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestGrants(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	repo := f.store.Grants()
	f.createGrant(t, "code-1", baseTime.Add(10*time.Minute))

	t.Run("active before expiry", func(t *testing.T) {
		g, err := repo.GetActive(ctx, "code-1", grants.TokenTypeAuthorizationCode, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, f.client.ID, g.ApplicationID)
		require.Equal(t, "S256", g.CodeChallengeMethod)
		require.True(t, g.ExpiresAt.Equal(baseTime.Add(10*time.Minute)))
		require.Nil(t, g.RevokedAt)
	})

	t.Run("not active at or after expiry", func(t *testing.T) {
		_, err := repo.GetActive(ctx, "code-1", grants.TokenTypeAuthorizationCode, baseTime.Add(10*time.Minute))
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("wrong token type", func(t *testing.T) {
		_, err := repo.GetActive(ctx, "code-1", grants.TokenType("device_code"), baseTime)
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("revoke once", func(t *testing.T) {
		ok, err := repo.Revoke(ctx, "code-1", baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.Revoke(ctx, "code-1", baseTime.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)

		_, err = repo.GetActive(ctx, "code-1", grants.TokenTypeAuthorizationCode, baseTime.Add(time.Minute))
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("revoke unknown", func(t *testing.T) {
		ok, err := repo.Revoke(ctx, "code-unknown", baseTime)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestConcurrentGrantRevoke(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	f.createGrant(t, "code-race", baseTime.Add(10*time.Minute))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.store.Grants().Revoke(ctx, "code-race", baseTime.Add(time.Minute))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	repo := f.store.Tokens()
	f.createToken(t, "access-1", "refresh-1", baseTime.Add(time.Hour))

	byAccess, err := repo.GetByToken(ctx, "access-1")
	require.NoError(t, err)
	require.Equal(t, "refresh-1", byAccess.RefreshToken)
	require.Equal(t, []string{"read", "profile"}, byAccess.ScopeList())

	byRefresh, err := repo.GetByRefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, byAccess.ID, byRefresh.ID)

	t.Run("revoking by refresh revokes both halves", func(t *testing.T) {
		ok, err := repo.RevokeByRefreshToken(ctx, "refresh-1", baseTime)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = repo.GetByToken(ctx, "access-1")
		require.True(t, errors.Is(err, errors.ErrNotFound))
		_, err = repo.GetByRefreshToken(ctx, "refresh-1")
		require.True(t, errors.Is(err, errors.ErrNotFound))

		ok, err = repo.RevokeByRefreshToken(ctx, "refresh-1", baseTime)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("revoke by access token", func(t *testing.T) {
		f.createToken(t, "access-2", "refresh-2", baseTime.Add(time.Hour))
		ok, err := repo.RevokeByToken(ctx, "access-2", baseTime)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = repo.GetByRefreshToken(ctx, "refresh-2")
		require.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("rows without a refresh half", func(t *testing.T) {
		f.createToken(t, "access-4", "", baseTime.Add(time.Hour))
		f.createToken(t, "access-5", "", baseTime.Add(time.Hour))

		got, err := repo.GetByToken(ctx, "access-4")
		require.NoError(t, err)
		require.Empty(t, got.RefreshToken)

		_, err = repo.GetByRefreshToken(ctx, "")
		require.True(t, errors.Is(err, errors.ErrNotFound))
		ok, err := repo.RevokeByRefreshToken(ctx, "", baseTime)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("revoke by user", func(t *testing.T) {
		f.createToken(t, "access-6", "refresh-6", baseTime.Add(time.Hour))
		n, err := repo.RevokeByUser(ctx, f.user.ID, baseTime)
		require.NoError(t, err)
		require.Positive(t, n)

		_, err = repo.GetByToken(ctx, "access-6")
		require.True(t, errors.Is(err, errors.ErrNotFound))

		n, err = repo.RevokeByUser(ctx, f.user.ID, baseTime)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("duplicate refresh token", func(t *testing.T) {
		err := repo.Create(ctx, &token.AccessToken{
			ApplicationID: f.client.ID, UserID: f.user.ID, Token: "access-3", RefreshToken: "refresh-2",
			ExpiresAt: baseTime,
		})
		require.True(t, errors.Is(err, errors.ErrDuplicate))
	})
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	f.createGrant(t, "old-code", baseTime.Add(10*time.Minute))
	f.createGrant(t, "new-code", baseTime.Add(48*time.Hour))
	f.createToken(t, "access-1", "refresh-1", baseTime.Add(time.Hour))

	now := baseTime.Add(24 * time.Hour)
	g, tk, err := f.store.PurgeExpired(ctx, now, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), g)
	require.Equal(t, int64(0), tk, "refresh half still within its lifetime")

	g, tk, err = f.store.PurgeExpired(ctx, baseTime.Add(31*24*time.Hour), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), g)
	require.Equal(t, int64(1), tk)
}

func TestPurgeExpiredWithoutRefreshHalf(t *testing.T) {
	ctx := context.Background()
	f := setupStoreFixture(t)
	f.createToken(t, "access-only", "", baseTime.Add(time.Hour))

	_, tk, err := f.store.PurgeExpired(ctx, baseTime.Add(2*time.Hour), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), tk)
}

func TestMigrationRelaxesRefreshTokenColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE oauth_access_tokens (
		id TEXT PRIMARY KEY, application_id TEXT NOT NULL, user_id TEXT NOT NULL,
		token TEXT NOT NULL, refresh_token TEXT NOT NULL, scopes TEXT NOT NULL DEFAULT '',
		expires_at TEXT NOT NULL, revoked_at TEXT, created_at TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	c, err := s.Clients().FindOrCreateByName(ctx, clients.Registration{
		Name: "Legacy", RedirectURIs: []string{"https://legacy.example.com/cb"},
	}, "uid-legacy", "secret")
	require.NoError(t, err)
	u := &users.User{Username: "jane", Email: "jane@example.com", Name: "Jane", PasswordHash: "hash"}
	require.NoError(t, s.Users().Create(ctx, u))

	require.NoError(t, s.Tokens().Create(ctx, &token.AccessToken{
		ApplicationID: c.ID, UserID: u.ID, Token: "access-only", ExpiresAt: baseTime,
	}))
	_, err = s.Tokens().GetByToken(ctx, "access-only")
	require.NoError(t, err)
}

func TestMigrationAddsMetadataColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE oauth_applications (
		id TEXT PRIMARY KEY, name TEXT NOT NULL, uid TEXT NOT NULL, secret TEXT NOT NULL,
		redirect_uri TEXT NOT NULL, scopes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO oauth_applications VALUES
		('id-1', 'Legacy', 'uid-legacy', 'sec', 'https://legacy.example.com/cb', 'read',
		'2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := store.Open(context.Background(), store.Options{Driver: store.DriverSQLite, DSN: path})
	require.NoError(t, err)
	defer s.Close()

	c, err := s.Clients().GetByUID(context.Background(), "uid-legacy")
	require.NoError(t, err)
	require.Equal(t, "Legacy", c.Name)
	require.Empty(t, c.Contacts)
	require.Equal(t, 2024, c.CreatedAt.Year())
}

func TestRebind(t *testing.T) {
	require.Equal(t,
		"UPDATE t SET a = $1 WHERE b = $2 AND c IS NULL",
		store.Rebind("UPDATE t SET a = ? WHERE b = ? AND c IS NULL"))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Driver: "mysql"})
	require.True(t, errors.Is(err, errors.ErrUnsupported))
}
