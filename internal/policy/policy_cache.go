package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	idKeyPrefix     = "presence:policy:id:"
	officeKeyPrefix = "presence:policy:office:"
	trackKeyPrefix  = "presence:policy:keys:"
	defaultCacheTTL = 300 * time.Second
)

// trackKey names the set of office-scoped cache keys a policy currently
// populates. Invalidation purges its members, so re-scoping a policy to a
// different office cannot leave the old office's entry stale until TTL.
func trackKey(policyID string) string {
	return trackKeyPrefix + policyID
}

// ErrPolicyNotFound is returned when neither cache nor store can resolve a
// policy. The pipeline maps it to NO_POLICY_FOUND.
var ErrPolicyNotFound = errors.New("no applicable policy found")

// LoadResult mirrors HTTP conditional-fetch semantics: when the caller's
// ifNoneMatch equals the current ETag, Modified is false and Policy is nil.
type LoadResult struct {
	Policy   *Policy
	ETag     string
	Modified bool
}

// InvalidationHook is notified after cache entries for a policy are purged.
// Hooks run best-effort; one failing does not stop the rest.
type InvalidationHook func(ctx context.Context, policyID string, officeID *string) error

type cacheEntry struct {
	ETag   string  `json:"etag"`
	Policy *Policy `json:"policy"`
}

// Cache is a Redis-backed, TTL-bounded policy document cache with
// deterministic content ETags. Reads may race an in-flight invalidation;
// at worst one stale read within the TTL, which is safe because evaluation
// is idempotent per version.
type Cache struct {
	rdb    *redis.Client
	repo   Repository
	ttl    time.Duration
	sf     singleflight.Group
	mu     sync.RWMutex
	hooks  []InvalidationHook
	logger *zap.Logger
}

func NewCache(rdb *redis.Client, repo Repository, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: rdb, repo: repo, ttl: ttl, logger: logger}
}

// ETagOf is the deterministic content hash of a policy document.
func ETagOf(p *Policy) string {
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) LoadByID(ctx context.Context, id, ifNoneMatch string) (LoadResult, error) {
	return c.load(ctx, idKeyPrefix+id, ifNoneMatch, func(ctx context.Context) (*Policy, error) {
		return c.repo.FindByID(ctx, id)
	})
}

func (c *Cache) LoadApplicableForOffice(ctx context.Context, officeID, ifNoneMatch string) (LoadResult, error) {
	return c.load(ctx, officeKeyPrefix+officeID, ifNoneMatch, func(ctx context.Context) (*Policy, error) {
		return c.repo.FindApplicableForOffice(ctx, officeID)
	})
}

func (c *Cache) load(ctx context.Context, key, ifNoneMatch string, fetch func(context.Context) (*Policy, error)) (LoadResult, error) {
	if entry, ok := c.cached(ctx, key); ok {
		return conditional(entry, ifNoneMatch), nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		p, err := c.fetchWithRetry(ctx, fetch)
		if err != nil {
			return nil, err
		}
		entry := cacheEntry{ETag: ETagOf(p), Policy: p}
		c.store(ctx, key, entry)
		return entry, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LoadResult{}, ErrPolicyNotFound
		}
		return LoadResult{}, err
	}

	return conditional(v.(cacheEntry), ifNoneMatch), nil
}

// fetchWithRetry retries once on transient store errors; a missing row is
// final.
func (c *Cache) fetchWithRetry(ctx context.Context, fetch func(context.Context) (*Policy, error)) (*Policy, error) {
	p, err := fetch(ctx)
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return p, err
	}

	c.logger.Warn("policy fetch failed, retrying once", zap.Error(err))
	p, err = fetch(ctx)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Join(err, ErrPolicyNotFound)
	}
	return p, err
}

func (c *Cache) cached(ctx context.Context, key string) (cacheEntry, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("policy cache read failed", zap.String("key", key), zap.Error(err))
		}
		return cacheEntry{}, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("policy cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) store(ctx context.Context, key string, entry cacheEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("policy cache write failed", zap.String("key", key), zap.Error(err))
	}

	if strings.HasPrefix(key, officeKeyPrefix) && entry.Policy != nil {
		tk := trackKey(entry.Policy.ID.String())
		if err := c.rdb.SAdd(ctx, tk, key).Err(); err != nil {
			c.logger.Warn("policy cache key tracking failed", zap.String("key", key), zap.Error(err))
			return
		}
		_ = c.rdb.Expire(ctx, tk, c.ttl).Err()
	}
}

func conditional(entry cacheEntry, ifNoneMatch string) LoadResult {
	if ifNoneMatch != "" && ifNoneMatch == entry.ETag {
		return LoadResult{ETag: entry.ETag, Modified: false}
	}
	return LoadResult{Policy: entry.Policy, ETag: entry.ETag, Modified: true}
}

// RegisterInvalidationHook adds an observer for policy invalidations.
func (c *Cache) RegisterInvalidationHook(h InvalidationHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// Invalidate purges the id-keyed entry, the office-keyed entry, and every
// office key the policy is tracked as populating (covering global policies
// and re-scoped ones), then notifies every registered hook. Hook failures
// are logged and do not abort the remaining hooks.
func (c *Cache) Invalidate(ctx context.Context, policyID string, officeID *string) {
	keys := []string{idKeyPrefix + policyID}
	if officeID != nil {
		keys = append(keys, officeKeyPrefix+*officeID)
	}

	tk := trackKey(policyID)
	if tracked, err := c.rdb.SMembers(ctx, tk).Result(); err != nil {
		c.logger.Warn("policy cache key tracking read failed",
			zap.String("policy_id", policyID),
			zap.Error(err),
		)
	} else {
		for _, k := range tracked {
			if officeID == nil || k != officeKeyPrefix+*officeID {
				keys = append(keys, k)
			}
		}
	}
	keys = append(keys, tk)

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("policy cache purge failed",
			zap.String("policy_id", policyID),
			zap.Error(err),
		)
	}

	c.mu.RLock()
	hooks := make([]InvalidationHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, policyID, officeID); err != nil {
			c.logger.Warn("policy invalidation hook failed",
				zap.String("policy_id", policyID),
				zap.Error(err),
			)
		}
	}
}
