package config

import (
	"path/filepath"
	"time"
)

const (
	storeDriverVar    = "STORE_DRIVER"
	storeDSNVar       = "STORE_DSN"
	clientCacheVar    = "CLIENT_CACHE"
	redisURLVar       = "REDIS_URL"
	clientCacheTTLVar = "CLIENT_CACHE_TTL"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetStoreDSN() string
}

type CacheConfig interface {
	GetClientCache() string
	GetRedisURL() string
	GetClientCacheTTL() time.Duration
}

type Store struct{}

var _ StoreConfig = Store{}

// GetStoreDriver is "sqlite" or "postgres".
func (Store) GetStoreDriver() string {
	return GetEnv(storeDriverVar, "sqlite")
}

func (Store) GetStoreDSN() string {
	return GetEnv(storeDSNVar, filepath.Join(EnvVars{}.GetDataFolder(), "oauth.db"))
}

type Cache struct{}

var _ CacheConfig = Cache{}

// GetClientCache is "" (disabled), "memory" or "redis".
func (Cache) GetClientCache() string {
	return GetEnv(clientCacheVar, "")
}

func (Cache) GetRedisURL() string {
	return GetEnv(redisURLVar, "redis://localhost:6379/0")
}

func (Cache) GetClientCacheTTL() time.Duration {
	return GetDuration(clientCacheTTLVar, 5*time.Minute)
}
