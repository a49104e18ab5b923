package config

import "time"

const (
	accessTokenLifetimeVar  = "ACCESS_TOKEN_LIFETIME"
	refreshTokenLifetimeVar = "REFRESH_TOKEN_LIFETIME"
	authCodeLifetimeVar     = "AUTHORIZATION_CODE_LIFETIME"
	tokenLengthVar          = "TOKEN_LENGTH"
	refreshExpiryVar        = "REFRESH_EXPIRY"
	bearerInQueryVar        = "ALLOW_BEARER_IN_QUERY"

	minTokenBytes = 32
	maxTokenBytes = 256 // hex encoding must fit the 512 character lookup bound
)

type OAuthConfig interface {
	GetAccessTokenLifetime() time.Duration
	GetRefreshTokenLifetime() time.Duration
	GetAuthCodeLifetime() time.Duration
	GetTokenLength() int
	GetRefreshExpiry() string
	GetAllowBearerInQuery() bool
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAccessTokenLifetime() time.Duration {
	return GetDuration(accessTokenLifetimeVar, time.Hour)
}

func (OAuth) GetRefreshTokenLifetime() time.Duration {
	return GetDuration(refreshTokenLifetimeVar, 30*24*time.Hour)
}

func (OAuth) GetAuthCodeLifetime() time.Duration {
	return GetDuration(authCodeLifetimeVar, 10*time.Minute)
}

// GetTokenLength is the number of random bytes behind every opaque token and code.
func (OAuth) GetTokenLength() int {
	n := GetInt(tokenLengthVar, minTokenBytes)
	switch {
	case n < minTokenBytes:
		return minTokenBytes
	case n > maxTokenBytes:
		return maxTokenBytes
	}
	return n
}

// GetRefreshExpiry is "absolute" (issued_at + lifetime) or "sliding" (lookup time + lifetime).
func (OAuth) GetRefreshExpiry() string {
	return GetEnv(refreshExpiryVar, "absolute")
}

func (OAuth) GetAllowBearerInQuery() bool {
	return GetBool(bearerInQueryVar, true)
}
