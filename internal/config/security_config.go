package config

import "time"

const (
	requirePKCEVar       = "REQUIRE_PKCE"
	sessionSecretVar     = "SESSION_SECRET"
	sessionMaxAgeVar     = "SESSION_MAX_AGE"
	registrationTokenVar = "REGISTRATION_TOKEN"
	adminUsernameVar     = "ADMIN_USERNAME"
	adminEmailVar        = "ADMIN_EMAIL"
	adminPasswordVar     = "ADMIN_PASSWORD"
)

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetMaxSessionAge() time.Duration
	GetSessionSecret() string
	GetRegistrationToken() string
	GetAdminUsername() string
	GetAdminEmail() string
	GetAdminPassword() string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetRequirePKCE() bool {
	return GetBool(requirePKCEVar, false)
}

func (Security) GetMaxSessionAge() time.Duration {
	return GetDuration(sessionMaxAgeVar, 30*time.Minute)
}

// GetSessionSecret signs login-session cookies. Empty means a random per-process key.
func (Security) GetSessionSecret() string {
	return GetEnv(sessionSecretVar, "")
}

// GetRegistrationToken protects client registration when set.
func (Security) GetRegistrationToken() string {
	return GetEnv(registrationTokenVar, "")
}

func (Security) GetAdminUsername() string {
	return GetEnv(adminUsernameVar, "admin")
}

func (Security) GetAdminEmail() string {
	return GetEnv(adminEmailVar, "")
}

func (Security) GetAdminPassword() string {
	return GetEnv(adminPasswordVar, "")
}
