package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fleetpricer/internal/domain"
)

// ConfigStore reads per-tenant pricing configuration from storage.
// Guardrail lookup resolves the most specific row for the entity.
type ConfigStore interface {
	GetSignalWeights(ctx context.Context, tenantID int64) (*domain.SignalWeights, error)
	GetGuardrail(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.Guardrail, error)
	GetBaseRates(ctx context.Context, tenantID int64, key domain.EntityKey) (*domain.BaseRates, error)
}

// RedisClient is the subset of the redis client the cache needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const defaultConfigTTL = 5 * time.Minute

// ConfigCache fronts the config store with a redis cache. A cache or
// store miss falls back to built-in defaults so pricing never stalls
// on missing configuration.
type ConfigCache struct {
	store ConfigStore
	redis RedisClient
	log   zerolog.Logger
	ttl   time.Duration
}

func NewConfigCache(store ConfigStore, redisClient RedisClient, log zerolog.Logger, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = defaultConfigTTL
	}
	return &ConfigCache{store: store, redis: redisClient, log: log, ttl: ttl}
}

func weightsKey(tenantID int64) string {
	return fmt.Sprintf("cfg:weights:%d", tenantID)
}

func guardrailKey(tenantID int64, key domain.EntityKey) string {
	return fmt.Sprintf("cfg:guardrail:%d:%d:%d", tenantID, key.BranchID, key.CategoryID)
}

func baseRatesKey(tenantID int64, key domain.EntityKey) string {
	return fmt.Sprintf("cfg:rates:%d:%d:%d", tenantID, key.BranchID, key.CategoryID)
}

// SignalWeights returns the tenant's weights, or the defaults when
// none are configured or the stored weights do not sum to 1.
func (c *ConfigCache) SignalWeights(ctx context.Context, tenantID int64) domain.SignalWeights {
	var cached domain.SignalWeights
	if c.getJSON(ctx, weightsKey(tenantID), &cached) && cached.Valid() {
		return cached
	}

	stored, err := c.store.GetSignalWeights(ctx, tenantID)
	if err != nil {
		c.log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("signal weights lookup failed, using defaults")
		return domain.DefaultSignalWeights()
	}
	if stored == nil || !stored.Valid() {
		return domain.DefaultSignalWeights()
	}
	c.setJSON(ctx, weightsKey(tenantID), stored)
	return *stored
}

// Guardrail returns the most specific guardrail for the entity,
// falling back to the category defaults and finally the global
// fallback.
func (c *ConfigCache) Guardrail(ctx context.Context, tenantID int64, key domain.EntityKey) domain.Guardrail {
	var cached domain.Guardrail
	if c.getJSON(ctx, guardrailKey(tenantID, key), &cached) {
		return cached
	}

	stored, err := c.store.GetGuardrail(ctx, tenantID, key)
	if err != nil {
		c.log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("guardrail lookup failed, using defaults")
	}
	if stored == nil {
		if g, ok := domain.DefaultGuardrails()[key.CategoryID]; ok {
			return g
		}
		return domain.FallbackGuardrail()
	}
	c.setJSON(ctx, guardrailKey(tenantID, key), stored)
	return *stored
}

// BaseRates returns the entity's rate card, or nil when none exists.
func (c *ConfigCache) BaseRates(ctx context.Context, tenantID int64, key domain.EntityKey) *domain.BaseRates {
	var cached domain.BaseRates
	if c.getJSON(ctx, baseRatesKey(tenantID, key), &cached) {
		return &cached
	}

	stored, err := c.store.GetBaseRates(ctx, tenantID, key)
	if err != nil {
		c.log.Warn().Err(err).Int64("tenant_id", tenantID).Msg("base rates lookup failed")
		return nil
	}
	if stored != nil {
		c.setJSON(ctx, baseRatesKey(tenantID, key), stored)
	}
	return stored
}

// Invalidate drops every cached config entry for the entity so the
// next read hits storage.
func (c *ConfigCache) Invalidate(ctx context.Context, tenantID int64, key domain.EntityKey) error {
	return c.redis.Del(ctx,
		weightsKey(tenantID),
		guardrailKey(tenantID, key),
		baseRatesKey(tenantID, key),
	).Err()
}

func (c *ConfigCache) getJSON(ctx context.Context, key string, out interface{}) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("config cache read failed")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("config cache entry corrupt")
		return false
	}
	return true
}

func (c *ConfigCache) setJSON(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("config cache write failed")
	}
}
