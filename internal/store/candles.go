package store

import (
	"context"
	"fmt"
	"time"
)

// Candle is an OHLC summary of the sale prices settled on one marketplace
// during one interval. Volume is the sum of those prices.
type Candle struct {
	Time   int64  `json:"time"` // unix seconds, aligned to the interval
	Open   uint64 `json:"open"`
	High   uint64 `json:"high"`
	Low    uint64 `json:"low"`
	Close  uint64 `json:"close"`
	Volume uint64 `json:"volume"`
	Sales  int    `json:"sales"`
}

const (
	KeyCandles          = "ah:candles"
	ChannelCandlePrefix = "ah:candles:"
)

// CandleKey is the cache key of the latest candle of a marketplace.
func CandleKey(house, interval string) string {
	return fmt.Sprintf("%s:%s:%s:latest", KeyCandles, house, interval)
}

// CandleChannel carries every update to a marketplace's candles of one
// interval.
func CandleChannel(house, interval string) string {
	return ChannelCandlePrefix + house + ":" + interval
}

func (c *Cache) GetCandle(ctx context.Context, house, interval string) (*Candle, error) {
	var candle Candle
	if err := c.get(ctx, KeyCandles, CandleKey(house, interval), &candle); err != nil {
		return nil, err
	}
	return &candle, nil
}

func (c *Cache) SetCandle(ctx context.Context, house, interval string, candle *Candle, ttl time.Duration) error {
	return c.Set(ctx, CandleKey(house, interval), candle, ttl)
}
