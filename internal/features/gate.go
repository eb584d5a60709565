// Package features answers per-guild feature toggle queries in front of storage.
package features

import (
	"context"
	"fmt"
	"time"

	"sentinel-moderation/internal/metrics"
	"sentinel-moderation/internal/storage"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Source interface {
	GetFeatures(ctx context.Context, guildID string) (storage.GuildFeatures, error)
	SetFeature(ctx context.Context, guildID, name string, enabled bool) error
}

type Gate struct {
	source Source
	cache  *ristretto.Cache
	group  singleflight.Group
	ttl    time.Duration
	logger *zap.Logger
}

func NewGate(source Source, ttl time.Duration, logger *zap.Logger) (*Gate, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("feature cache: %w", err)
	}
	return &Gate{source: source, cache: cache, ttl: ttl, logger: logger}, nil
}

func (g *Gate) IsEnabled(ctx context.Context, guildID, feature string) bool {
	return g.Features(ctx, guildID).Enabled(feature)
}

// Features falls back to the all-enabled defaults when storage is unreachable,
// matching the column defaults of a freshly created guild.
func (g *Gate) Features(ctx context.Context, guildID string) storage.GuildFeatures {
	if cached, ok := g.cache.Get(guildID); ok {
		metrics.FeatureCacheTotal.WithLabelValues("hit").Inc()
		return cached.(storage.GuildFeatures)
	}
	metrics.FeatureCacheTotal.WithLabelValues("miss").Inc()

	value, err, _ := g.group.Do(guildID, func() (interface{}, error) {
		features, err := g.source.GetFeatures(ctx, guildID)
		if err != nil {
			return nil, err
		}
		g.cache.SetWithTTL(guildID, features, 1, g.ttl)
		g.cache.Wait()
		return features, nil
	})
	if err != nil {
		g.logger.Warn("feature lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		return storage.DefaultGuildFeatures(guildID)
	}
	return value.(storage.GuildFeatures)
}

func (g *Gate) Set(ctx context.Context, guildID, feature string, enabled bool) error {
	if err := g.source.SetFeature(ctx, guildID, feature, enabled); err != nil {
		return err
	}
	g.cache.Del(guildID)
	return nil
}

func (g *Gate) Close() {
	g.cache.Close()
}
