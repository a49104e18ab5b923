package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML layout of CONFIG_FILE. Each field maps onto the environment
// variable of the same meaning, which always takes precedence.
type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		AppName  string `yaml:"app_name"`
		BaseURL  string `yaml:"base_url"`
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
		Folder   string `yaml:"data_folder"`
	} `yaml:"server"`
	OAuth struct {
		AccessTokenLifetime       string `yaml:"access_token_lifetime"`
		RefreshTokenLifetime      string `yaml:"refresh_token_lifetime"`
		AuthorizationCodeLifetime string `yaml:"authorization_code_lifetime"`
		TokenLength               int    `yaml:"token_length"`
		RefreshExpiry             string `yaml:"refresh_expiry"`
		AllowBearerInQuery        *bool  `yaml:"allow_bearer_in_query"`
	} `yaml:"oauth"`
	Security struct {
		RequirePKCE       *bool    `yaml:"require_pkce"`
		SessionSecret     string   `yaml:"session_secret"`
		SessionMaxAge     string   `yaml:"session_max_age"`
		RegistrationToken string   `yaml:"registration_token"`
		AllowedOrigins    []string `yaml:"allowed_origins"`
		AdminUsername     string   `yaml:"admin_username"`
		AdminEmail        string   `yaml:"admin_email"`
		AdminPassword     string   `yaml:"admin_password"`
	} `yaml:"security"`
	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`
	Cache struct {
		Backend  string `yaml:"backend"`
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"cache"`
}

var (
	fileValues     map[string]string
	fileValuesLock sync.RWMutex
)

// LoadFile parses a YAML config file and makes its values visible to the getters.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "[config.LoadFile] os.ReadFile")
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errors.Wrap(err, "[config.LoadFile] yaml.Unmarshal")
	}

	fileValuesLock.Lock()
	defer fileValuesLock.Unlock()
	fileValues = fc.values()
	return nil
}

// ResetFile forgets any loaded config file.
func ResetFile() {
	fileValuesLock.Lock()
	defer fileValuesLock.Unlock()
	fileValues = nil
}

func fileValue(key string) (string, bool) {
	fileValuesLock.RLock()
	defer fileValuesLock.RUnlock()
	v, ok := fileValues[key]
	return v, ok
}

func (fc fileConfig) values() map[string]string {
	v := map[string]string{
		portEnvVar:              fc.Server.Port,
		appNameVar:              fc.Server.AppName,
		baseURLVar:              fc.Server.BaseURL,
		envEnvVar:               fc.Server.Env,
		logLevelEnvVar:          fc.Server.LogLevel,
		folderEnvVar:            fc.Server.Folder,
		accessTokenLifetimeVar:  fc.OAuth.AccessTokenLifetime,
		refreshTokenLifetimeVar: fc.OAuth.RefreshTokenLifetime,
		authCodeLifetimeVar:     fc.OAuth.AuthorizationCodeLifetime,
		refreshExpiryVar:        fc.OAuth.RefreshExpiry,
		sessionSecretVar:        fc.Security.SessionSecret,
		sessionMaxAgeVar:        fc.Security.SessionMaxAge,
		registrationTokenVar:    fc.Security.RegistrationToken,
		allowedOriginsVar:       strings.Join(fc.Security.AllowedOrigins, ","),
		adminUsernameVar:        fc.Security.AdminUsername,
		adminEmailVar:           fc.Security.AdminEmail,
		adminPasswordVar:        fc.Security.AdminPassword,
		storeDriverVar:          fc.Store.Driver,
		storeDSNVar:             fc.Store.DSN,
		clientCacheVar:          fc.Cache.Backend,
		redisURLVar:             fc.Cache.RedisURL,
		clientCacheTTLVar:       fc.Cache.TTL,
	}
	if fc.OAuth.TokenLength > 0 {
		v[tokenLengthVar] = strconv.Itoa(fc.OAuth.TokenLength)
	}
	if fc.OAuth.AllowBearerInQuery != nil {
		v[bearerInQueryVar] = strconv.FormatBool(*fc.OAuth.AllowBearerInQuery)
	}
	if fc.Security.RequirePKCE != nil {
		v[requirePKCEVar] = strconv.FormatBool(*fc.Security.RequirePKCE)
	}
	return v
}
