// Package oauthmodel is the storage adapter an OAuth2 protocol engine calls into. It turns
// ledger rows into the engine's client, user, token and authorization-code views and
// persists what the engine issues. The Model holds no mutable state of its own.
package oauthmodel

import (
	"strings"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/clients"
	"github.com/jrsteele09/mcp-oauth-server/grants"
	"github.com/jrsteele09/mcp-oauth-server/internal/config"
	"github.com/jrsteele09/mcp-oauth-server/token"
	"github.com/jrsteele09/mcp-oauth-server/users"
	"github.com/pkg/errors"
)

// MaxTokenLength bounds every raw token or code accepted from a caller.
const MaxTokenLength = 2 * token.MaxLength

// RefreshExpiryPolicy decides how a refresh token's expiry is computed at lookup.
type RefreshExpiryPolicy string

const (
	// RefreshExpiryAbsolute expires a refresh token a fixed lifetime after issuance.
	RefreshExpiryAbsolute RefreshExpiryPolicy = "absolute"
	// RefreshExpirySliding reports lookup time plus the lifetime, so an unrevoked refresh
	// token never lapses on its own.
	RefreshExpirySliding RefreshExpiryPolicy = "sliding"
)

// Config holds the token policy. Zero fields take the defaults.
type Config struct {
	AccessTokenLifetime       time.Duration
	RefreshTokenLifetime      time.Duration
	AuthorizationCodeLifetime time.Duration
	RefreshExpiry             RefreshExpiryPolicy
	TokenLength               int // random bytes per token or code, clamped to [32, 256]
}

func DefaultConfig() Config {
	return Config{
		AccessTokenLifetime:       time.Hour,
		RefreshTokenLifetime:      30 * 24 * time.Hour,
		AuthorizationCodeLifetime: 10 * time.Minute,
		RefreshExpiry:             RefreshExpiryAbsolute,
		TokenLength:               token.MinLength,
	}
}

// ConfigFrom reads the token policy from the server configuration.
func ConfigFrom(c config.OAuthConfig) Config {
	return Config{
		AccessTokenLifetime:       c.GetAccessTokenLifetime(),
		RefreshTokenLifetime:      c.GetRefreshTokenLifetime(),
		AuthorizationCodeLifetime: c.GetAuthCodeLifetime(),
		RefreshExpiry:             RefreshExpiryPolicy(strings.ToLower(c.GetRefreshExpiry())),
		TokenLength:               c.GetTokenLength(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AccessTokenLifetime <= 0 {
		c.AccessTokenLifetime = d.AccessTokenLifetime
	}
	if c.RefreshTokenLifetime <= 0 {
		c.RefreshTokenLifetime = d.RefreshTokenLifetime
	}
	if c.AuthorizationCodeLifetime <= 0 {
		c.AuthorizationCodeLifetime = d.AuthorizationCodeLifetime
	}
	if c.RefreshExpiry != RefreshExpirySliding {
		c.RefreshExpiry = RefreshExpiryAbsolute
	}
	if c.TokenLength <= 0 {
		c.TokenLength = d.TokenLength
	}
	c.TokenLength = token.ClampLength(c.TokenLength)
	return c
}

// Repos holds all repository dependencies for the Model
type Repos struct {
	Clients clients.Repo
	Users   users.Repo
	Grants  grants.Repo
	Tokens  token.Repo
}

type Model struct {
	repos   Repos
	cfg     Config
	nowTime func() time.Time
}

// Option defines a function type to modify the Model instance.
type Option func(*Model)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(m *Model) {
		m.nowTime = nowFunc
	}
}

func New(repos Repos, cfg Config, options ...Option) (*Model, error) {
	if repos.Clients == nil {
		return nil, errors.New("[oauthmodel.New] Clients repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[oauthmodel.New] Users repo is required")
	}
	if repos.Grants == nil {
		return nil, errors.New("[oauthmodel.New] Grants repo is required")
	}
	if repos.Tokens == nil {
		return nil, errors.New("[oauthmodel.New] Tokens repo is required")
	}

	m := &Model{
		repos:   repos,
		cfg:     cfg.withDefaults(),
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func (m *Model) Config() Config {
	return m.cfg
}

func (m *Model) now() time.Time {
	return m.nowTime().UTC()
}

// validOpaque rejects empty, oversized or whitespace-padded raw values before any store access.
func validOpaque(v string) bool {
	return v != "" && len(v) <= MaxTokenLength && strings.TrimSpace(v) == v
}
