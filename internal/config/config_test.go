package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/config"
	"github.com/stretchr/testify/require"
)

const testYAML = `
server:
  port: "9090"
  base_url: https://auth.example.com/
oauth:
  access_token_lifetime: 30m
  refresh_expiry: sliding
  token_length: 48
security:
  require_pkce: true
  allowed_origins: [https://a.example.com, https://b.example.com]
store:
  driver: postgres
  dsn: postgres://localhost/oauth
cache:
  backend: memory
  ttl: "120"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	config.ResetFile()
	c, err := config.Load("", "")
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, time.Hour, c.GetAccessTokenLifetime())
	require.Equal(t, 30*24*time.Hour, c.GetRefreshTokenLifetime())
	require.Equal(t, 10*time.Minute, c.GetAuthCodeLifetime())
	require.Equal(t, 32, c.GetTokenLength())
	require.Equal(t, "absolute", c.GetRefreshExpiry())
	require.True(t, c.GetAllowBearerInQuery())
	require.False(t, c.GetRequirePKCE())
	require.Equal(t, "sqlite", c.GetStoreDriver())
	require.Equal(t, filepath.Join("./data", "oauth.db"), c.GetStoreDSN())
	require.Equal(t, "", c.GetClientCache())
}

func TestYAMLFile(t *testing.T) {
	t.Cleanup(config.ResetFile)
	path := writeFile(t, "config.yaml", testYAML)

	c, err := config.Load("", path)
	require.NoError(t, err)

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://auth.example.com", c.GetBaseURL())
	require.Equal(t, 30*time.Minute, c.GetAccessTokenLifetime())
	require.Equal(t, "sliding", c.GetRefreshExpiry())
	require.Equal(t, 48, c.GetTokenLength())
	require.True(t, c.GetRequirePKCE())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example.com"))
	require.Equal(t, "postgres", c.GetStoreDriver())
	require.Equal(t, "postgres://localhost/oauth", c.GetStoreDSN())
	require.Equal(t, "memory", c.GetClientCache())
	require.Equal(t, 120*time.Second, c.GetClientCacheTTL())

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("PORT", "7070")
		t.Setenv("ACCESS_TOKEN_LIFETIME", "15m")
		require.Equal(t, ":7070", c.GetPort())
		require.Equal(t, 15*time.Minute, c.GetAccessTokenLifetime())
	})
}

func TestDotEnv(t *testing.T) {
	config.ResetFile()
	path := writeFile(t, ".env", "REFRESH_TOKEN_LIFETIME=48h\n")
	t.Cleanup(func() { os.Unsetenv("REFRESH_TOKEN_LIFETIME") })

	c, err := config.Load(path, "")
	require.NoError(t, err)
	require.Equal(t, 48*time.Hour, c.GetRefreshTokenLifetime())
}

func TestInvalidValuesFallBack(t *testing.T) {
	config.ResetFile()
	t.Setenv("ACCESS_TOKEN_LIFETIME", "soon")
	t.Setenv("TOKEN_LENGTH", "8")
	t.Setenv("REQUIRE_PKCE", "maybe")

	c, err := config.Load("", "")
	require.NoError(t, err)
	require.Equal(t, time.Hour, c.GetAccessTokenLifetime())
	require.Equal(t, 32, c.GetTokenLength())
	require.False(t, c.GetRequirePKCE())
}

func TestTokenLengthIsCapped(t *testing.T) {
	config.ResetFile()
	t.Setenv("TOKEN_LENGTH", "300")

	c, err := config.Load("", "")
	require.NoError(t, err)
	require.Equal(t, 256, c.GetTokenLength())
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load("", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
