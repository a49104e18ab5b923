package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const configFileVar = "CONFIG_FILE"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StoreConfig
	CacheConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Security
	Store
	Cache
}

// New loads an optional .env file from the working directory and the YAML file named by
// CONFIG_FILE, then returns a Config whose getters read environment, file, then defaults.
func New() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("[config.New] failed to load .env")
	}
	if path := os.Getenv(configFileVar); path != "" {
		if err := LoadFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("[config.New] ignoring config file")
		}
	}
	return mainConfig{}
}

// Load is New with explicit paths. Empty paths are skipped.
func Load(dotenvPath, yamlPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil {
			return nil, errors.Wrap(err, "[config.Load] godotenv.Load")
		}
	}
	if yamlPath != "" {
		if err := LoadFile(yamlPath); err != nil {
			return nil, errors.Wrap(err, "[config.Load] LoadFile")
		}
	}
	return mainConfig{}, nil
}
