package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/leafsii/auction-house/internal/metrics"
	"github.com/leafsii/auction-house/pkg/kv"
)

// Cache is a JSON cache over a kv.Store with an in-process event bus for
// settlement notifications.
type Cache struct {
	kv     kv.Store
	events *PubSubHub
	loads  singleflight.Group

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(store kv.Store, logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{
		kv:      store,
		events:  NewPubSubHub(),
		logger:  logger,
		metrics: metrics,
	}
}

// Cache key prefixes
const (
	KeyReceipt     = "ah:receipt"
	KeyWalletSales = "ah:wallet:sales"
	KeyMarketplace = "ah:marketplace"

	// RecentSalesLimit caps the per-wallet list of recent settlement ids.
	RecentSalesLimit = 100
)

// Event channels
const (
	ChannelSaleExecuted = "ah:events:sale.executed"
	ChannelWalletPrefix = "ah:wallet:"
)

// WalletChannel is the event channel for settlements touching address.
func WalletChannel(address string) string {
	return ChannelWalletPrefix + address
}

func (c *Cache) recordHit(ctx context.Context, prefix string) {
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, prefix)
	}
}

func (c *Cache) recordMiss(ctx context.Context, prefix string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, prefix)
	}
}

func (c *Cache) get(ctx context.Context, prefix, key string, dest interface{}) error {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			c.recordMiss(ctx, prefix)
			return ErrCacheMiss
		}
		c.logger.Errorw("Cache get error", "key", key, "error", err)
		return fmt.Errorf("cache get error: %w", err)
	}
	c.recordHit(ctx, prefix)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	return c.get(ctx, key, key, dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.kv.Set(ctx, key, data, ttl); err != nil {
		c.logger.Errorw("Cache set error", "key", key, "error", err)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

// Load reads key into dest, calling fill on a miss and caching what it
// returns. Concurrent misses on one key share a single fill.
func (c *Cache) Load(ctx context.Context, prefix, id string, ttl time.Duration, dest interface{}, fill func(ctx context.Context) (interface{}, error)) error {
	key := fmt.Sprintf("%s:%s", prefix, id)
	err := c.get(ctx, prefix, key, dest)
	if !errors.Is(err, ErrCacheMiss) {
		return err
	}

	v, err, _ := c.loads.Do(key, func() (interface{}, error) {
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cache marshal error: %w", err)
		}
		if err := c.kv.Set(ctx, key, data, ttl); err != nil {
			c.logger.Warnw("Failed to populate cache", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.([]byte), dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

// Receipt cache methods

func (c *Cache) GetReceipt(ctx context.Context, id string, dest interface{}) error {
	return c.get(ctx, KeyReceipt, fmt.Sprintf("%s:%s", KeyReceipt, id), dest)
}

func (c *Cache) SetReceipt(ctx context.Context, id string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, fmt.Sprintf("%s:%s", KeyReceipt, id), value, ttl)
}

// PushWalletSale records id as the newest settlement of wallet, keeping at
// most RecentSalesLimit entries.
func (c *Cache) PushWalletSale(ctx context.Context, wallet, id string) error {
	key := fmt.Sprintf("%s:%s", KeyWalletSales, wallet)
	if _, err := c.kv.LPush(ctx, key, []byte(id)); err != nil {
		return fmt.Errorf("cache push error: %w", err)
	}
	if err := c.kv.LTrim(ctx, key, 0, RecentSalesLimit-1); err != nil {
		return fmt.Errorf("cache trim error: %w", err)
	}
	return nil
}

// WalletSales returns up to limit settlement ids of wallet, newest first.
func (c *Cache) WalletSales(ctx context.Context, wallet string, limit int) ([]string, error) {
	if limit <= 0 || limit > RecentSalesLimit {
		limit = RecentSalesLimit
	}
	key := fmt.Sprintf("%s:%s", KeyWalletSales, wallet)
	raw, err := c.kv.LRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("cache range error: %w", err)
	}
	ids := make([]string, len(raw))
	for i, b := range raw {
		ids[i] = string(b)
	}
	return ids, nil
}

// Publish delivers message as JSON to subscribers of channel.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}
	n := c.events.Publish(channel, string(data))
	c.logger.Debugw("Published event", "channel", channel, "subscribers", n)
	return nil
}

// Subscribe returns a subscription to channels that closes with ctx.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *Subscription {
	return c.events.Subscribe(ctx, channels...)
}

// SubscribePrefix returns a subscription to every channel starting with
// prefix.
func (c *Cache) SubscribePrefix(ctx context.Context, prefix string) *Subscription {
	return c.events.SubscribePrefix(ctx, prefix)
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.kv.Ping(ctx)
}

func (c *Cache) Close() error {
	return c.kv.Close()
}

// Error types
var (
	ErrCacheMiss = errors.New("cache miss")
)
