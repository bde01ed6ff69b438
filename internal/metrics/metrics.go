package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter

	Settlements        metric.Int64Counter
	SettlementFailures metric.Int64Counter
	SettlementDuration metric.Float64Histogram
	SettledVolume      metric.Int64Counter
	RoyaltiesPaid      metric.Int64Counter
	HouseFees          metric.Int64Counter
}

// Setup builds the meter and returns the handler serving its Prometheus
// exposition. Each call uses its own registry, so tests can run in parallel.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	int64Counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequests, "ah_http_requests_total", "Total number of HTTP requests"},
		{&m.CacheHits, "ah_cache_hits_total", "Total number of cache hits"},
		{&m.CacheMisses, "ah_cache_misses_total", "Total number of cache misses"},
		{&m.Settlements, "ah_settlements_total", "Settled sales by path"},
		{&m.SettlementFailures, "ah_settlement_failures_total", "Rejected or failed settlements by path and error"},
		{&m.SettledVolume, "ah_settled_volume_base_units_total", "Gross sale price settled, in treasury-mint base units"},
		{&m.RoyaltiesPaid, "ah_royalties_paid_base_units_total", "Creator royalties paid, in treasury-mint base units"},
		{&m.HouseFees, "ah_house_fees_base_units_total", "Marketplace fees collected, in treasury-mint base units"},
	}
	for _, c := range int64Counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, nil, err
		}
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"ah_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SettlementDuration, err = meter.Float64Histogram(
		"ah_settlement_duration_seconds",
		metric.WithDescription("Time spent resolving and executing a settlement"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"ah_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}

// Settlement describes one settled sale for accounting.
type Settlement struct {
	Path         string
	TreasuryMint string
	Price        uint64
	Royalties    uint64
	HouseFee     uint64
}

func clampInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}

func (m *Metrics) RecordSettlement(ctx context.Context, s Settlement, duration time.Duration) {
	path := attribute.String("path", s.Path)
	labels := metric.WithAttributes(path, attribute.String("treasury_mint", s.TreasuryMint))

	m.Settlements.Add(ctx, 1, metric.WithAttributes(path))
	m.SettlementDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(path))
	m.SettledVolume.Add(ctx, clampInt64(s.Price), labels)
	m.RoyaltiesPaid.Add(ctx, clampInt64(s.Royalties), labels)
	m.HouseFees.Add(ctx, clampInt64(s.HouseFee), labels)
}

func (m *Metrics) RecordSettlementFailure(ctx context.Context, path, code string, duration time.Duration) {
	p := attribute.String("path", path)
	m.SettlementFailures.Add(ctx, 1, metric.WithAttributes(p, attribute.String("code", code)))
	m.SettlementDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(p))
}
