package numbering

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const resolveTTL = 30 * time.Second

// resolver caches config resolution in Redis with a short TTL so a
// burst of document creations hits the database once. Assignment
// changes take effect within the TTL; the cache is also dropped on
// config writes.
type resolver struct {
	repo  Repository
	cache *redis.Client
	group singleflight.Group
}

func newResolver(repo Repository, cache *redis.Client) *resolver {
	return &resolver{repo: repo, cache: cache}
}

func resolveKey(docType string, locationID, userID int64) string {
	return fmt.Sprintf("numbering:resolve:%s:%d:%d", docType, locationID, userID)
}

func (r *resolver) Resolve(ctx context.Context, docType string, locationID, userID int64) (Config, error) {
	if r.cache == nil {
		return r.repo.Resolve(ctx, docType, locationID, userID)
	}

	key := resolveKey(docType, locationID, userID)
	if raw, err := r.cache.Get(ctx, key).Bytes(); err == nil {
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err == nil {
			return cfg, nil
		}
	}

	resultChan := r.group.DoChan(key, func() (interface{}, error) {
		cfg, err := r.repo.Resolve(ctx, docType, locationID, userID)
		if err != nil {
			return Config{}, err
		}
		if raw, err := json.Marshal(cfg); err == nil {
			r.cache.Set(ctx, key, raw, resolveTTL)
		}
		return cfg, nil
	})
	select {
	case <-ctx.Done():
		return Config{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Config{}, res.Err
		}
		return res.Val.(Config), nil
	}
}

// Invalidate drops cached resolutions. Keys embed location and user
// ids, so a full scan over the namespace is used.
func (r *resolver) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	iter := r.cache.Scan(ctx, 0, "numbering:resolve:*", 100).Iterator()
	for iter.Next(ctx) {
		r.cache.Del(ctx, iter.Val())
	}
}
