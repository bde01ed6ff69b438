package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/auctionhouse/fixture"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/metrics"
	"github.com/leafsii/auction-house/internal/repository"
	"github.com/leafsii/auction-house/internal/settlement"
	"github.com/leafsii/auction-house/internal/store"
	"github.com/leafsii/auction-house/internal/token"
	"github.com/leafsii/auction-house/pkg/kv/memory"
)

const (
	price    = 1_000_000
	houseFee = 200
	royalty  = 500
)

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) StoreSettlement(ctx context.Context, s repository.Settlement) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockHistory) GetSettlement(ctx context.Context, id string) (*repository.Settlement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Settlement), args.Error(1)
}

func (m *MockHistory) GetWalletSettlements(ctx context.Context, wallet string, limit int, cursor string) ([]repository.Settlement, string, error) {
	args := m.Called(ctx, wallet, limit, cursor)
	return args.Get(0).([]repository.Settlement), args.String(1), args.Error(2)
}

func (m *MockHistory) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var _ repository.History = (*MockHistory)(nil)

type env struct {
	t      *testing.T
	ctx    context.Context
	world  *fixture.World
	house  *ah.Marketplace
	asset  fixture.Asset
	buyer  ledger.Pubkey
	seller ledger.Pubkey
	cache  *store.Cache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	world, err := fixture.NewWorld(ctx, ledger.NewMemStore())
	require.NoError(t, err)

	e := &env{t: t, ctx: ctx, world: world}
	e.buyer, err = world.Wallet(ctx, "buyer", 10_000_000_000)
	require.NoError(t, err)
	e.seller, err = world.Wallet(ctx, "seller", 1_000_000_000)
	require.NoError(t, err)

	e.house, err = world.Marketplace(ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("house-creator"),
		Authority:            fixture.NamedWallet("authority"),
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: houseFee,
	})
	require.NoError(t, err)

	e.asset, err = world.Asset(ctx, "ape", e.seller, royalty,
		metadata.Creator{Address: fixture.NamedWallet("creator-a"), Verified: true, Share: 6000},
		metadata.Creator{Address: fixture.NamedWallet("creator-b"), Share: 4000},
	)
	require.NoError(t, err)

	e.cache = store.NewCache(memory.New(0), nil, nil)
	t.Cleanup(func() { e.cache.Close() })
	return e
}

func (e *env) service(history repository.History, opts settlement.Options) *settlement.Service {
	return settlement.NewService(e.world.Store, history, e.cache, nil, nil, opts)
}

func (e *env) listAndBid(p uint64) {
	e.t.Helper()
	_, err := e.world.List(e.ctx, e.house, e.seller, e.asset, p, 1)
	require.NoError(e.t, err)
	_, err = e.world.Bid(e.ctx, e.house, e.buyer, e.asset, p, 1, false)
	require.NoError(e.t, err)
}

func (e *env) request(p uint64, signers ...ledger.Pubkey) settlement.Request {
	req := settlement.Request{
		AuctionHouse: e.house.Address,
		Buyer:        e.buyer,
		Seller:       e.seller,
		TokenMint:    e.asset.Mint,
		TokenAccount: e.asset.TokenAccount,
		Price:        p,
		TokenSize:    1,
	}
	for _, s := range signers {
		req.Signers = append(req.Signers, settlement.Signature{Signer: s})
	}
	return req
}

func (e *env) lamports(key ledger.Pubkey) uint64 {
	acct, err := e.world.Store.Account(key)
	require.NoError(e.t, err)
	return acct.Lamports
}

func TestExecuteDirect(t *testing.T) {
	e := newEnv(t)
	e.listAndBid(price)

	events := e.cache.Subscribe(e.ctx, store.ChannelSaleExecuted, store.WalletChannel(e.seller.String()))
	defer events.Close()

	m, _, err := metrics.Setup("test")
	require.NoError(t, err)
	history := repository.NewMemory()
	svc := settlement.NewService(e.world.Store, history, e.cache, m, nil, settlement.Options{ReceiptTTL: time.Minute})

	sellerBefore := e.lamports(e.seller)
	rec, err := svc.Execute(e.ctx, e.request(price, e.buyer))
	require.NoError(t, err)

	r := rec.Receipt
	assert.Equal(t, ah.PathDirect, rec.Path)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Digest, 64)
	assert.Equal(t, uint64(50_000), r.RoyaltyTotal)
	assert.Equal(t, uint64(20_000), r.HouseFee)
	assert.Equal(t, uint64(930_000), r.SellerProceeds)
	assert.Equal(t, sellerBefore+930_000, e.lamports(e.seller))

	digest, err := settlement.Digest(r)
	require.NoError(t, err)
	assert.Equal(t, digest, rec.Digest)

	got, err := svc.Get(e.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Digest, got.Digest)
	assert.Equal(t, r.SellerProceeds, got.Receipt.SellerProceeds)

	row, err := history.GetSettlement(e.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), row.RoyaltyTotal)
	assert.Equal(t, e.buyer.String(), row.Buyer)

	ids, err := e.cache.WalletSales(e.ctx, e.buyer.String(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, ids)

	sales, next, err := svc.WalletSales(e.ctx, e.seller, 10, "")
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, sales, 1)
	assert.Equal(t, rec.ID, sales[0].ID)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-events.Channel():
			var ev settlement.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			assert.Equal(t, settlement.EventSaleExecuted, ev.Type)
			assert.Equal(t, rec.ID, ev.Record.ID)
		case <-time.After(time.Second):
			t.Fatal("no settlement event")
		}
	}
}

func TestExecuteFailureHasNoSideEffects(t *testing.T) {
	e := newEnv(t)
	e.listAndBid(price)

	history := &MockHistory{}
	svc := e.service(history, settlement.Options{})

	events := e.cache.Subscribe(e.ctx, store.ChannelSaleExecuted)
	defer events.Close()

	buyerEscrow, _ := ah.EscrowAddress(e.house.Address, e.buyer)
	escrowBefore := e.lamports(buyerEscrow)

	_, err := svc.Execute(e.ctx, e.request(price+1, e.buyer))
	require.Error(t, err)
	assert.NotEqual(t, "Internal", settlement.ErrorCode(err))

	assert.Equal(t, escrowBefore, e.lamports(buyerEscrow))
	history.AssertNotCalled(t, "StoreSettlement", mock.Anything, mock.Anything)
	ids, err := e.cache.WalletSales(e.ctx, e.buyer.String(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	select {
	case <-events.Channel():
		t.Fatal("event published for a failed settlement")
	default:
	}
}

func TestExecuteRejectsInvalidRequests(t *testing.T) {
	e := newEnv(t)
	svc := e.service(repository.NewMemory(), settlement.Options{})

	cases := []struct {
		name   string
		mutate func(r *settlement.Request)
	}{
		{"missing auction house", func(r *settlement.Request) { r.AuctionHouse = ledger.Pubkey{} }},
		{"missing buyer", func(r *settlement.Request) { r.Buyer = ledger.Pubkey{} }},
		{"missing mint", func(r *settlement.Request) { r.TokenMint = ledger.Pubkey{} }},
		{"zero size", func(r *settlement.Request) { r.TokenSize = 0 }},
		{"direct across houses", func(r *settlement.Request) { r.ListingAuctionHouse = ledger.Pubkey{7, 1, 9} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := e.request(price, e.buyer)
			tc.mutate(&req)
			_, err := svc.Execute(e.ctx, req)
			assert.ErrorIs(t, err, settlement.ErrInvalidRequest)
			assert.Equal(t, "InvalidRequest", settlement.ErrorCode(err))
		})
	}
}

func TestExecuteVerifiesSignatures(t *testing.T) {
	e := newEnv(t)
	e.listAndBid(price)
	svc := e.service(repository.NewMemory(), settlement.Options{VerifySignatures: true})

	_, err := svc.Execute(e.ctx, e.request(price, e.buyer))
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)

	forged := e.request(price)
	require.NoError(t, forged.Sign(e.buyer, ed25519.PrivateKey(fixture.NamedKey("seller"))))
	_, err = svc.Execute(e.ctx, forged)
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)

	req := e.request(price)
	require.NoError(t, req.Sign(e.buyer, ed25519.PrivateKey(fixture.NamedKey("buyer"))))
	rec, err := svc.Execute(e.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(930_000), rec.Receipt.SellerProceeds)
}

func TestSignatureEncoding(t *testing.T) {
	e := newEnv(t)
	req := e.request(price)
	require.NoError(t, req.Sign(e.buyer, ed25519.PrivateKey(fixture.NamedKey("buyer"))))

	enc := settlement.EncodeSignature(req.Signers[0].Sig)
	dec, err := settlement.DecodeSignature(enc)
	require.NoError(t, err)
	assert.Equal(t, req.Signers[0].Sig, dec)

	_, err = settlement.DecodeSignature("abc")
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)

	empty, err := settlement.DecodeSignature("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	before, err := req.Message()
	require.NoError(t, err)
	req.Price++
	after, err := req.Message()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestExecuteWithAuctioneer(t *testing.T) {
	e := newEnv(t)
	auctioneer := fixture.NamedWallet("auctioneer")

	bidding, err := e.world.Marketplace(e.ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("bidding-creator"),
		Authority:            fixture.NamedWallet("bidding-authority"),
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: 300,
	})
	require.NoError(t, err)
	bidding, _, err = e.world.Delegate(e.ctx, bidding, auctioneer, ah.ScopeExecuteSale)
	require.NoError(t, err)

	_, err = e.world.List(e.ctx, e.house, e.seller, e.asset, ah.AuctionPrice, 1)
	require.NoError(t, err)
	_, err = e.world.Bid(e.ctx, bidding, e.buyer, e.asset, price, 1, false)
	require.NoError(t, err)

	svc := e.service(repository.NewMemory(), settlement.Options{})
	req := e.request(price, e.buyer)
	req.AuctionHouse = bidding.Address
	req.ListingAuctionHouse = e.house.Address
	req.Auctioneer = auctioneer

	_, err = svc.Execute(e.ctx, req)
	assert.ErrorIs(t, err, ah.ErrAuthorizationMismatch)

	req.Signers = append(req.Signers, settlement.Signature{Signer: auctioneer})
	rec, err := svc.Execute(e.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ah.PathAuctioneer, rec.Path)
	assert.Equal(t, bidding.Address, rec.Receipt.AuctionHouse)
	assert.Equal(t, e.house.Address, rec.Receipt.ListingAuctionHouse)
	assert.Equal(t, uint64(30_000), rec.Receipt.HouseFee)
	assert.Equal(t, uint64(920_000), rec.Receipt.SellerProceeds)
}

func TestQuote(t *testing.T) {
	e := newEnv(t)
	svc := e.service(repository.NewMemory(), settlement.Options{})

	q, err := svc.Quote(e.ctx, settlement.QuoteRequest{AuctionHouse: e.house.Address, TokenMint: e.asset.Mint, Price: price})
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), q.Split.RoyaltyTotal)
	assert.Equal(t, []uint64{30_000, 20_000}, q.Split.CreatorFees)
	assert.Equal(t, uint64(20_000), q.Split.HouseFee)
	assert.Equal(t, uint64(930_000), q.Split.SellerProceeds)
	assert.Len(t, q.Creators, 2)
	assert.Equal(t, uint8(9), q.Preview.Decimals)
	assert.Equal(t, "0.001", q.Preview.UIPrice.String())

	_, err = svc.Quote(e.ctx, settlement.QuoteRequest{AuctionHouse: e.house.Address, TokenMint: ledger.Pubkey{7, 1, 9}, Price: price})
	assert.ErrorIs(t, err, ah.ErrMetadataDoesntExist)

	_, err = svc.Quote(e.ctx, settlement.QuoteRequest{AuctionHouse: e.asset.Mint, TokenMint: e.asset.Mint, Price: price})
	assert.ErrorIs(t, err, ah.ErrAuthorizationMismatch)
}

func TestMarketplace(t *testing.T) {
	e := newEnv(t)
	svc := e.service(repository.NewMemory(), settlement.Options{})

	m, err := svc.Marketplace(e.ctx, e.house.Address)
	require.NoError(t, err)
	assert.Equal(t, e.house.AuctionHouse, m.AuctionHouse)

	acct, err := svc.Account(e.ctx, e.buyer)
	require.NoError(t, err)
	assert.Equal(t, ledger.SystemProgramID, acct.Owner)
}

func TestGet(t *testing.T) {
	e := newEnv(t)
	history := &MockHistory{}
	svc := e.service(history, settlement.Options{ReceiptTTL: time.Minute})

	history.On("GetSettlement", mock.Anything, "missing").Return(nil, repository.ErrNotFound)
	_, err := svc.Get(e.ctx, "missing")
	assert.ErrorIs(t, err, settlement.ErrNotFound)

	receipt, err := json.Marshal(&ah.Receipt{Path: ah.PathDirect, Price: price, SellerProceeds: 930_000})
	require.NoError(t, err)
	history.On("GetSettlement", mock.Anything, "s1").Return(&repository.Settlement{
		ID: "s1", Path: "direct", Digest: "d1", Receipt: receipt,
	}, nil).Once()

	for i := 0; i < 3; i++ {
		rec, err := svc.Get(e.ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "d1", rec.Digest)
		assert.Equal(t, uint64(930_000), rec.Receipt.SellerProceeds)
	}
	history.AssertNumberOfCalls(t, "GetSettlement", 2)
}

func TestReady(t *testing.T) {
	e := newEnv(t)
	history := &MockHistory{}
	svc := e.service(history, settlement.Options{})

	history.On("Ping", mock.Anything).Return(nil).Once()
	require.NoError(t, svc.Ready(e.ctx))

	history.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()
	assert.ErrorContains(t, svc.Ready(e.ctx), "history")
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ah.ErrBothPartiesNeedToAgreeToSale.With("price"), "BothPartiesNeedToAgreeToSale"},
		{fmt.Errorf("wrapped: %w", ah.ErrNumericalOverflow), "NumericalOverflow"},
		{fmt.Errorf("%w: x", settlement.ErrInvalidSignature), "InvalidSignature"},
		{ledger.ErrInsufficientFunds, "InsufficientFunds"},
		{token.ErrAccountFrozen, "AccountFrozen"},
		{context.DeadlineExceeded, "DeadlineExceeded"},
		{errors.New("boom"), "Internal"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, settlement.ErrorCode(tc.err), tc.err.Error())
	}
}
