// Package jobs holds background workers fed by settlement events.
package jobs

import (
	"context"
	"encoding/json"
	"math/bits"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leafsii/auction-house/internal/settlement"
	"github.com/leafsii/auction-house/internal/store"
)

// CandlePublisher folds settled sales into per-marketplace price candles,
// caching the latest candle of each interval and publishing every update on
// the marketplace's candle channel.
type CandlePublisher struct {
	cache  *store.Cache
	logger *zap.SugaredLogger
	config CandlePublisherConfig

	mu          sync.Mutex
	aggregators map[string]*CandleAggregator // house:interval -> aggregator
	cancelCtx   context.CancelFunc
}

type CandlePublisherConfig struct {
	Intervals     []time.Duration
	RetryInterval time.Duration // wait before resubscribing after the event stream closes
	TTL           time.Duration // cache TTL of the latest candle, zero keeps it
}

func DefaultCandlePublisherConfig() CandlePublisherConfig {
	return CandlePublisherConfig{
		Intervals: []time.Duration{
			time.Minute,
			5 * time.Minute,
			15 * time.Minute,
			time.Hour,
			4 * time.Hour,
			24 * time.Hour,
		},
		RetryInterval: 5 * time.Second,
		TTL:           48 * time.Hour,
	}
}

func NewCandlePublisher(cache *store.Cache, logger *zap.SugaredLogger, config CandlePublisherConfig) *CandlePublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	return &CandlePublisher{
		cache:       cache,
		logger:      logger,
		config:      config,
		aggregators: make(map[string]*CandleAggregator),
	}
}

// Start consumes sale events until ctx ends or Stop is called.
func (p *CandlePublisher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()

	p.logger.Infow("Starting candle publisher", "intervals", p.config.Intervals)

	for {
		sub := p.cache.Subscribe(ctx, store.ChannelSaleExecuted)
		for msg := range sub.Channel() {
			p.processMessage(ctx, msg)
		}
		sub.Close()

		select {
		case <-ctx.Done():
			p.logger.Infow("Candle publisher stopping due to context cancellation")
			return ctx.Err()
		case <-time.After(p.config.RetryInterval):
			p.logger.Warnw("Sale event stream closed, resubscribing")
		}
	}
}

func (p *CandlePublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

func (p *CandlePublisher) processMessage(ctx context.Context, msg *store.Message) {
	var ev settlement.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		p.logger.Warnw("Invalid sale event", "channel", msg.Channel, "error", err)
		return
	}
	if ev.Record == nil || ev.Record.Receipt == nil {
		return
	}
	p.ProcessSale(ctx, ev.Record)
}

// ProcessSale updates every interval's candle of the record's marketplace.
func (p *CandlePublisher) ProcessSale(ctx context.Context, rec *settlement.Record) {
	house := rec.Receipt.AuctionHouse.String()
	for _, interval := range p.config.Intervals {
		name := IntervalString(interval)

		p.mu.Lock()
		key := house + ":" + name
		aggregator, exists := p.aggregators[key]
		if !exists {
			aggregator = &CandleAggregator{interval: interval}
			p.aggregators[key] = aggregator
		}
		candle := aggregator.AddSale(rec.Receipt.Price, rec.SettledAt)
		p.mu.Unlock()

		if candle == nil {
			p.logger.Debugw("Sale older than current candle", "auction_house", house, "interval", name, "id", rec.ID)
			continue
		}
		if err := p.cache.SetCandle(ctx, house, name, candle, p.config.TTL); err != nil {
			p.logger.Warnw("Failed to cache candle", "auction_house", house, "interval", name, "error", err)
		}
		if err := p.cache.Publish(ctx, store.CandleChannel(house, name), candle); err != nil {
			p.logger.Warnw("Failed to publish candle", "auction_house", house, "interval", name, "error", err)
		}
	}
}

// CandleAggregator builds the candle of the current interval. It is not
// safe for concurrent use.
type CandleAggregator struct {
	interval      time.Duration
	currentCandle *store.Candle
}

// AddSale folds a sale into the current candle, starting a new one when at
// falls in a later interval, and returns a copy of the result. A sale from an
// earlier interval returns nil.
func (a *CandleAggregator) AddSale(price uint64, at time.Time) *store.Candle {
	aligned := AlignTime(at, a.interval).Unix()

	switch {
	case a.currentCandle == nil || aligned > a.currentCandle.Time:
		a.currentCandle = &store.Candle{
			Time:   aligned,
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: price,
			Sales:  1,
		}
	case aligned < a.currentCandle.Time:
		return nil
	default:
		c := a.currentCandle
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		// volume saturates
		if sum, carry := bits.Add64(c.Volume, price, 0); carry == 0 {
			c.Volume = sum
		} else {
			c.Volume = ^uint64(0)
		}
		c.Sales++
	}
	out := *a.currentCandle
	return &out
}

// IntervalString names interval the way candle keys and channels do.
func IntervalString(d time.Duration) string {
	switch d {
	case time.Minute:
		return "1m"
	case 5 * time.Minute:
		return "5m"
	case 15 * time.Minute:
		return "15m"
	case time.Hour:
		return "1h"
	case 4 * time.Hour:
		return "4h"
	case 24 * time.Hour:
		return "1d"
	default:
		return d.String()
	}
}

// ParseInterval is the inverse of IntervalString for the standard
// intervals.
func ParseInterval(s string) (time.Duration, bool) {
	for _, d := range DefaultCandlePublisherConfig().Intervals {
		if IntervalString(d) == s {
			return d, true
		}
	}
	return 0, false
}

// AlignTime truncates ts to the start of its interval in unix time.
func AlignTime(ts time.Time, interval time.Duration) time.Time {
	sec := int64(interval / time.Second)
	if sec <= 0 {
		return ts.Truncate(time.Second)
	}
	return time.Unix((ts.Unix()/sec)*sec, 0).UTC()
}
