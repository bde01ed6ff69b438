package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/auctionhouse/fixture"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/repository"
	"github.com/leafsii/auction-house/internal/settlement"
	"github.com/leafsii/auction-house/internal/store"
	"github.com/leafsii/auction-house/internal/token"
	"github.com/leafsii/auction-house/pkg/kv/memory"
)

const salePrice = 1_000_000

// Mock metrics for testing
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	m.Called(ctx, method, path, status, duration)
}

type testServer struct {
	t       *testing.T
	ctx     context.Context
	world   *fixture.World
	house   *ah.Marketplace
	asset   fixture.Asset
	buyer   ledger.Pubkey
	seller  ledger.Pubkey
	cache   *store.Cache
	metrics *MockMetrics
	srv     *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	world, err := fixture.NewWorld(ctx, ledger.NewMemStore())
	require.NoError(t, err)

	ts := &testServer{t: t, ctx: ctx, world: world, metrics: &MockMetrics{}}
	ts.buyer, err = world.Wallet(ctx, "buyer", 10_000_000_000)
	require.NoError(t, err)
	ts.seller, err = world.Wallet(ctx, "seller", 1_000_000_000)
	require.NoError(t, err)
	ts.house, err = world.Marketplace(ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("house-creator"),
		Authority:            fixture.NamedWallet("authority"),
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: 200,
	})
	require.NoError(t, err)
	ts.asset, err = world.Asset(ctx, "ape", ts.seller, 500,
		metadata.Creator{Address: fixture.NamedWallet("creator"), Verified: true, Share: 10000})
	require.NoError(t, err)

	_, err = world.List(ctx, ts.house, ts.seller, ts.asset, salePrice, 1)
	require.NoError(t, err)
	_, err = world.Bid(ctx, ts.house, ts.buyer, ts.asset, salePrice, 1, false)
	require.NoError(t, err)

	ts.cache = store.NewCache(memory.New(0), nil, nil)
	t.Cleanup(func() { ts.cache.Close() })
	svc := settlement.NewService(world.Store, repository.NewMemory(), ts.cache, nil, nil, settlement.Options{ReceiptTTL: time.Minute})

	ts.metrics.On("RecordHTTPRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	h := NewHandler(svc, nil, nil)
	router := h.Routes(NewMiddleware(nil, ts.metrics), RouteOptions{
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPM:   6000,
		RequestTimeout: 5 * time.Second,
	})
	ts.srv = httptest.NewServer(router)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) saleBody(price uint64) ExecuteSaleRequest {
	return ExecuteSaleRequest{
		AuctionHouse: ts.house.Address,
		Buyer:        ts.buyer,
		Seller:       ts.seller,
		TokenMint:    ts.asset.Mint,
		Price:        fmt.Sprint(price),
		TokenSize:    "1",
		Signers:      []SignatureDTO{{Signer: ts.buyer}},
	}
}

func (ts *testServer) post(path string, body any) *http.Response {
	ts.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(ts.t, err)
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(path string) *http.Response {
	ts.t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(ts.t, err)
	ts.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestExecuteSale(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post("/v1/sales", ts.saleBody(salePrice))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	rec := decode[settlement.Record](t, resp)
	assert.Equal(t, ah.PathDirect, rec.Path)
	assert.Equal(t, uint64(50_000), rec.Receipt.RoyaltyTotal)
	assert.Equal(t, uint64(20_000), rec.Receipt.HouseFee)
	assert.Equal(t, uint64(930_000), rec.Receipt.SellerProceeds)

	got := ts.get("/v1/sales/" + rec.ID)
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, rec.Digest, decode[settlement.Record](t, got).Digest)

	sales := ts.get("/v1/wallets/" + ts.buyer.String() + "/sales?limit=5")
	require.Equal(t, http.StatusOK, sales.StatusCode)
	page := decode[WalletSalesDTO](t, sales)
	require.Len(t, page.Items, 1)
	assert.Equal(t, rec.ID, page.Items[0].ID)

	again := ts.post("/v1/sales", ts.saleBody(salePrice))
	assert.Equal(t, http.StatusUnprocessableEntity, again.StatusCode)
	assert.Equal(t, "TradeStateInvalidOrConsumed", decode[ErrorResponse](t, again).Code)

	ts.metrics.AssertCalled(t, "RecordHTTPRequest", mock.Anything, "POST",
		mock.MatchedBy(func(p string) bool { return strings.HasPrefix(p, "/v1/sales") }), http.StatusCreated, mock.Anything)
	ts.metrics.AssertCalled(t, "RecordHTTPRequest", mock.Anything, "GET", "/v1/wallets/{address}/sales", http.StatusOK, mock.Anything)
}

func TestExecuteSaleRejections(t *testing.T) {
	ts := newTestServer(t)
	auctioneer := fixture.NamedWallet("auctioneer")

	tests := []struct {
		name     string
		path     string
		body     func() any
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed body",
			path:     "/v1/sales",
			body:     func() any { return map[string]any{"auction_house": "not-base58!"} },
			wantCode: http.StatusBadRequest,
			wantErr:  "INVALID_BODY",
		},
		{
			name: "missing price",
			path: "/v1/sales",
			body: func() any {
				b := ts.saleBody(salePrice)
				b.Price = ""
				return b
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "InvalidRequest",
		},
		{
			name: "auctioneer on the direct endpoint",
			path: "/v1/sales",
			body: func() any {
				b := ts.saleBody(salePrice)
				b.Auctioneer = &auctioneer
				return b
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "InvalidRequest",
		},
		{
			name:     "no auctioneer on the delegated endpoint",
			path:     "/v1/sales/auctioneer",
			body:     func() any { return ts.saleBody(salePrice) },
			wantCode: http.StatusBadRequest,
			wantErr:  "InvalidRequest",
		},
		{
			name: "malformed signature",
			path: "/v1/sales",
			body: func() any {
				b := ts.saleBody(salePrice)
				b.Signers[0].Signature = "abc"
				return b
			},
			wantCode: http.StatusUnauthorized,
			wantErr:  "InvalidSignature",
		},
		{
			name: "auction house without auctioneer",
			path: "/v1/sales/auctioneer",
			body: func() any {
				b := ts.saleBody(salePrice)
				b.Auctioneer = &auctioneer
				b.Signers = append(b.Signers, SignatureDTO{Signer: auctioneer})
				return b
			},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "NoAuctioneerProgramSet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(tt.path, tt.body())
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, resp).Code)
		})
	}
}

func TestLedgerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get("/v1/accounts/" + ts.buyer.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	acct := decode[AccountDTO](t, resp)
	assert.Equal(t, ledger.SystemProgramID, acct.Owner)
	assert.NotZero(t, acct.Lamports)

	resp = ts.get("/v1/accounts/" + fixture.NamedWallet("nobody").String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.get("/v1/accounts/0xdeadbeef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.get("/v1/marketplaces/" + ts.house.Address.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode[ah.Marketplace](t, resp)
	assert.Equal(t, ts.house.Address, m.Address)
	assert.Equal(t, uint16(200), m.SellerFeeBasisPoints)

	resp = ts.get("/v1/marketplaces/" + ts.buyer.String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetMarketplaceCandle(t *testing.T) {
	ts := newTestServer(t)
	path := "/v1/marketplaces/" + ts.house.Address.String() + "/candles/"

	resp := ts.get(path + "1h")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "CANDLE_NOT_FOUND", decode[ErrorResponse](t, resp).Code)

	resp = ts.get(path + "7m")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INTERVAL", decode[ErrorResponse](t, resp).Code)

	want := &store.Candle{Time: 3600, Open: 10, High: 12, Low: 9, Close: 11, Volume: 42, Sales: 4}
	require.NoError(t, ts.cache.SetCandle(ts.ctx, ts.house.Address.String(), "1h", want, 0))
	resp = ts.get(path + "1h")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, *want, decode[store.Candle](t, resp))
}

func TestGetSaleQuote(t *testing.T) {
	ts := newTestServer(t)

	q := fmt.Sprintf("/v1/quotes/sale?marketplace=%s&mint=%s&price=%d", ts.house.Address, ts.asset.Mint, salePrice)
	resp := ts.get(q)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	quote := decode[QuoteDTO](t, resp)
	require.NotNil(t, quote.Quote)
	assert.Equal(t, uint64(50_000), quote.Split.RoyaltyTotal)
	assert.Equal(t, uint64(20_000), quote.Split.HouseFee)
	assert.Equal(t, "0.001", quote.Preview.UIPrice.String())
	assert.NotZero(t, quote.AsOf)

	resp = ts.get(fmt.Sprintf("/v1/quotes/sale?marketplace=%s&mint=%s", ts.house.Address, ts.asset.Mint))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_AMOUNT", decode[ErrorResponse](t, resp).Code)

	resp = ts.get(fmt.Sprintf("/v1/quotes/sale?mint=%s&price=1", ts.asset.Mint))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_PARAMETER", decode[ErrorResponse](t, resp).Code)
}

func TestWalletSalesValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get("/v1/wallets/" + ts.buyer.String() + "/sales?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.get("/v1/wallets/" + ts.buyer.String() + "/sales")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[WalletSalesDTO](t, resp).Items)

	resp = ts.get("/v1/sales/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFound", decode[ErrorResponse](t, resp).Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for path, want := range map[string]int{"/healthz": 200, "/readyz": 200, "/ping": 200, "/nope": 404} {
		resp := ts.get(path)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/v1/sales", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	m := NewMiddleware(nil, nil)
	h := m.RateLimit(6)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", settlement.ErrInvalidRequest), http.StatusBadRequest},
		{settlement.ErrInvalidSignature, http.StatusUnauthorized},
		{settlement.ErrNotFound, http.StatusNotFound},
		{ah.ErrNumericalOverflow.With("price"), http.StatusUnprocessableEntity},
		{fmt.Errorf("transfer: %w", ledger.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{token.ErrAccountFrozen, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
