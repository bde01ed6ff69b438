package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupExposesSettlementMetrics(t *testing.T) {
	m, handler, err := Setup("test")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSettlement(ctx, Settlement{Path: "direct", TreasuryMint: "SOL", Price: 1000, Royalties: 50, HouseFee: 20}, time.Millisecond)
	m.RecordSettlementFailure(ctx, "auctioneer", "InsufficientAuctioneerScope", time.Millisecond)
	m.RecordCacheHit(ctx, "receipt")
	m.RecordHTTPRequest(ctx, "POST", "/v1/sales", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "ah_settlements_total")
	assert.Contains(t, out, `code="InsufficientAuctioneerScope"`)
	assert.Contains(t, out, "ah_settled_volume_base_units_total")
	assert.Contains(t, out, "ah_cache_hits_total")
}

func TestClampInt64(t *testing.T) {
	assert.Equal(t, int64(5), clampInt64(5))
	assert.Equal(t, int64(1<<63-1), clampInt64(^uint64(0)))
}
