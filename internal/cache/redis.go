package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/slotbooking/config"
	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client      *redis.Client
	providerTTL time.Duration
	markerTTL   time.Duration
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return NewRedisCacheWithClient(
		redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		time.Duration(cfg.ProviderCacheSeconds)*time.Second,
		time.Duration(cfg.EventMarkerHours)*time.Hour,
	)
}

func NewRedisCacheWithClient(client *redis.Client, providerTTL, markerTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, providerTTL: providerTTL, markerTTL: markerTTL}
}

// GetProviderSettings returns nil, nil on a cache miss.
func (c *RedisCache) GetProviderSettings(ctx context.Context, providerID string) (*domain.ProviderSettings, error) {
	data, err := c.client.Get(ctx, providerKey(providerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var settings domain.ProviderSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (c *RedisCache) SetProviderSettings(ctx context.Context, settings *domain.ProviderSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, providerKey(settings.ProviderID), payload, c.providerTTL).Err()
}

// EventProcessed reports whether a gateway event id was already handled to
// completion by some worker.
func (c *RedisCache) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) MarkEventProcessed(ctx context.Context, eventID string) error {
	return c.client.SetNX(ctx, eventKey(eventID), "done", c.markerTTL).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func providerKey(providerID string) string {
	return fmt.Sprintf("cache:provider:%s", providerID)
}

func eventKey(eventID string) string {
	return fmt.Sprintf("payment:event:%s", eventID)
}
