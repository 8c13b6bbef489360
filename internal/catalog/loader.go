package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/metrics"
	"github.com/stockwatch/alert-composer/internal/model"
)

// Source fetches the indicator catalog from the backend
type Source interface {
	ListIndicators(ctx context.Context, token string) ([]model.Indicator, error)
}

// Store is the subset of the Redis client the loader needs
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CacheConfig holds configuration for the catalog cache
type CacheConfig struct {
	Enabled   bool
	TTL       time.Duration
	PrefixKey string
}

// Loader loads the catalog, reading through a Redis cache when enabled.
// The catalog is reference data shared by every user, so one key serves all.
type Loader struct {
	source Source
	store  Store
	config CacheConfig
	logger *zap.Logger
}

// NewLoader creates a catalog loader. store may be nil when caching is disabled.
func NewLoader(source Source, store Store, config CacheConfig, logger *zap.Logger) *Loader {
	if store == nil {
		config.Enabled = false
	}
	return &Loader{
		source: source,
		store:  store,
		config: config,
		logger: logger,
	}
}

func (l *Loader) cacheKey() string {
	return l.config.PrefixKey + ":indicators"
}

// Load returns the current catalog. Cache failures fall through to the
// backend; a backend failure is returned as is and not retried.
func (l *Loader) Load(ctx context.Context, token string) (*Catalog, error) {
	if l.config.Enabled {
		if cat, ok := l.fromCache(ctx); ok {
			return cat, nil
		}
	}

	indicators, err := l.source.ListIndicators(ctx, token)
	if err != nil {
		metrics.CatalogLookup("error")
		return nil, fmt.Errorf("failed to fetch indicator catalog: %w", err)
	}

	if l.config.Enabled {
		l.toCache(ctx, indicators)
	}
	return New(indicators), nil
}

func (l *Loader) fromCache(ctx context.Context) (*Catalog, bool) {
	key := l.cacheKey()
	raw, err := l.store.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("Failed to read catalog cache", zap.String("cache_key", key), zap.Error(err))
		}
		metrics.CatalogLookup("miss")
		return nil, false
	}

	var indicators []model.Indicator
	if err := json.Unmarshal(raw, &indicators); err != nil {
		l.logger.Warn("Discarding unreadable catalog cache entry", zap.String("cache_key", key), zap.Error(err))
		metrics.CatalogLookup("miss")
		return nil, false
	}

	l.logger.Debug("Cache hit", zap.String("cache_key", key), zap.Int("indicators", len(indicators)))
	metrics.CatalogLookup("hit")
	return New(indicators), true
}

func (l *Loader) toCache(ctx context.Context, indicators []model.Indicator) {
	key := l.cacheKey()
	raw, err := json.Marshal(indicators)
	if err != nil {
		l.logger.Error("Failed to encode catalog for cache", zap.Error(err))
		return
	}
	if err := l.store.Set(ctx, key, raw, l.config.TTL).Err(); err != nil {
		l.logger.Error("Failed to set cache", zap.String("cache_key", key), zap.Error(err))
		return
	}
	l.logger.Debug("Cache set", zap.String("cache_key", key), zap.Duration("duration", l.config.TTL))
}

// Flush drops the cached catalog so the next Load hits the backend
func (l *Loader) Flush(ctx context.Context) error {
	if !l.config.Enabled {
		return nil
	}
	return l.store.Del(ctx, l.cacheKey()).Err()
}
