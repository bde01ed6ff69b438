package auctionhouse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/auctionhouse/fixture"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/token"
)

type auctionSetup struct {
	*harness
	listing    *ah.Marketplace
	bidding    *ah.Marketplace
	auctioneer ledger.Pubkey
	record     ledger.Pubkey
	accts      ah.SaleAccounts
	args       ah.SaleArgs
}

func newAuction(t *testing.T, delegate bool, scopes ...ah.AuthorityScope) *auctionSetup {
	t.Helper()
	h := newHarness(t, harnessOpts{})
	a := &auctionSetup{harness: h, listing: h.house, auctioneer: fixture.NamedWallet("auctioneer")}

	bidding, err := h.world.Marketplace(h.ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("bidding-creator"),
		Authority:            fixture.NamedWallet("bidding-authority"),
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: 300,
	})
	require.NoError(t, err)
	if delegate {
		bidding, a.record, err = h.world.Delegate(h.ctx, bidding, a.auctioneer, scopes...)
		require.NoError(t, err)
	} else {
		a.record, _ = ah.AuctioneerAddress(bidding.Address, a.auctioneer)
	}
	a.bidding = bidding

	_, err = h.world.List(h.ctx, a.listing, h.seller, h.asset, ah.AuctionPrice, 1)
	require.NoError(t, err)
	_, err = h.world.Bid(h.ctx, a.bidding, h.buyer, h.asset, salePrice, 1, false)
	require.NoError(t, err)
	a.accts, a.args = h.resolve(a.bidding, a.listing, ah.AuctionPrice, h.request(salePrice))
	return a
}

func (a *auctionSetup) settle(signers ...ledger.Pubkey) (*ah.Receipt, error) {
	var receipt *ah.Receipt
	err := a.world.Store.Execute(a.ctx, signers, func(tx *ledger.Txn) error {
		var err error
		receipt, err = a.engine.ExecuteSaleWithAuctioneer(tx, a.listing, a.bidding, a.auctioneer, a.record, a.accts, a.args)
		return err
	})
	return receipt, err
}

func TestExecuteSaleWithAuctioneer(t *testing.T) {
	a := newAuction(t, true, ah.ScopeBuy, ah.ScopeExecuteSale, ah.ScopeSell)
	sellerBefore := a.lamports(a.seller)

	receipt, err := a.settle(a.auctioneer, a.buyer)
	require.NoError(t, err)

	assert.Equal(t, ah.PathAuctioneer, receipt.Path)
	assert.Equal(t, a.bidding.Address, receipt.AuctionHouse)
	assert.Equal(t, a.listing.Address, receipt.ListingAuctionHouse)
	assert.Equal(t, uint64(30_000), receipt.HouseFee)
	assert.Equal(t, uint64(920_000), receipt.SellerProceeds)
	assert.Equal(t, uint64(30_000), a.lamports(a.bidding.AuctionHouseTreasury))
	assert.Zero(t, a.lamports(a.listing.AuctionHouseTreasury))
	assert.Equal(t, sellerBefore+920_000, a.lamports(a.seller))
	assert.Equal(t, uint64(1), a.tokens(a.accts.BuyerReceiptTokenAccount))
	assert.False(t, a.exists(a.accts.SellerTradeState))
}

func TestExecuteSaleWithAuctioneerRejections(t *testing.T) {
	tests := []struct {
		name     string
		delegate bool
		scopes   []ah.AuthorityScope
		mutate   func(a *auctionSetup)
		signers  func(a *auctionSetup) []ledger.Pubkey
		wantErr  error
	}{
		{
			name:    "no auctioneer on the bidding house",
			wantErr: ah.ErrNoAuctioneerProgramSet,
		},
		{
			name:     "scope not granted",
			delegate: true,
			scopes:   []ah.AuthorityScope{ah.ScopeBuy, ah.ScopeSell},
			wantErr:  ah.ErrInsufficientAuctioneerScope,
		},
		{
			name:     "auctioneer did not sign",
			delegate: true,
			scopes:   []ah.AuthorityScope{ah.ScopeExecuteSale},
			signers:  func(a *auctionSetup) []ledger.Pubkey { return []ledger.Pubkey{a.buyer} },
			wantErr:  ah.ErrAuthorizationMismatch,
		},
		{
			name:     "another auctioneer",
			delegate: true,
			scopes:   []ah.AuthorityScope{ah.ScopeExecuteSale},
			mutate: func(a *auctionSetup) {
				a.auctioneer = fixture.NamedWallet("impostor")
				a.record, _ = ah.AuctioneerAddress(a.bidding.Address, a.auctioneer)
			},
			wantErr: ah.ErrAuctioneerNotConfigured,
		},
		{
			name:     "record not derived for the auctioneer",
			delegate: true,
			scopes:   []ah.AuthorityScope{ah.ScopeExecuteSale},
			mutate: func(a *auctionSetup) {
				a.record, _ = ah.AuctioneerAddress(a.listing.Address, a.auctioneer)
			},
			wantErr: ah.ErrAuthorizationMismatch,
		},
		{
			name:     "no listing at the sale price",
			delegate: true,
			scopes:   []ah.AuthorityScope{ah.ScopeExecuteSale},
			mutate: func(a *auctionSetup) {
				a.accts, a.args = a.resolve(a.bidding, a.listing, salePrice, a.request(salePrice))
			},
			wantErr: ah.ErrTradeStateInvalidOrConsumed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuction(t, tt.delegate, tt.scopes...)
			if tt.mutate != nil {
				tt.mutate(a)
			}
			signers := []ledger.Pubkey{a.auctioneer, a.buyer}
			if tt.signers != nil {
				signers = tt.signers(a)
			}

			_, err := a.settle(signers...)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, a.exists(a.accts.BuyerTradeState))
		})
	}
}
