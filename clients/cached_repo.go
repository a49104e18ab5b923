package clients

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/jrsteele09/mcp-oauth-server/internal/cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const uidKeyPrefix = "client:uid:"

// CachedRepo serves GetByUID from a TTL cache. Concurrent misses for the same UID share a
// single store read. Writes go straight to the wrapped repo and invalidate the entry.
// Clients served from the cache carry only a digest of their secret, so Secret is empty and
// SecretMatches must be used to check credentials.
type CachedRepo struct {
	Repo
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

var _ Repo = (*CachedRepo)(nil)

// cachedClient is the cache encoding of a client. The plaintext secret is never written.
type cachedClient struct {
	Client
	SecretSHA256 []byte `json:"secretSHA256"`
}

func NewCachedRepo(repo Repo, c cache.Cache, ttl time.Duration) *CachedRepo {
	return &CachedRepo{Repo: repo, cache: c, ttl: ttl}
}

func (r *CachedRepo) GetByUID(ctx context.Context, uid string) (*Client, error) {
	key := uidKeyPrefix + uid
	if raw, ok, err := r.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("[CachedRepo.GetByUID] cache read failed")
	} else if ok {
		var cc cachedClient
		if err := json.Unmarshal(raw, &cc); err == nil {
			c := cc.Client
			c.secretDigest = cc.SecretSHA256
			return &c, nil
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		c, err := r.Repo.GetByUID(ctx, uid)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256([]byte(c.Secret))
		if raw, err := json.Marshal(cachedClient{Client: *c, SecretSHA256: digest[:]}); err == nil {
			if err := r.cache.Set(ctx, key, raw, r.ttl); err != nil {
				log.Warn().Err(err).Msg("[CachedRepo.GetByUID] cache write failed")
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c := *v.(*Client)
	return &c, nil
}

func (r *CachedRepo) FindOrCreateByName(ctx context.Context, reg Registration, newUID, newSecret string) (*Client, error) {
	c, err := r.Repo.FindOrCreateByName(ctx, reg, newUID, newSecret)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Delete(ctx, uidKeyPrefix+c.UID); err != nil {
		log.Warn().Err(err).Msg("[CachedRepo.FindOrCreateByName] cache invalidation failed")
	}
	return c, nil
}
