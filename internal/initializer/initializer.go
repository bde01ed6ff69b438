// Package initializer seeds a ledger with a demo market: a marketplace with
// a listed and bid asset ready for a direct sale, and a second marketplace
// run by an auctioneer with a cross-marketplace listing ready for a
// delegated sale.
package initializer

import (
	"context"
	"fmt"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/auctionhouse/fixture"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

type Params struct {
	SellerFeeBasisPoints uint16
	AuctioneerFeeBps     uint16
	RoyaltyBasisPoints   uint16
	Price                uint64
	BuyerLamports        uint64
	SellerLamports       uint64
}

func DefaultParams() Params {
	return Params{
		SellerFeeBasisPoints: 200,
		AuctioneerFeeBps:     300,
		RoyaltyBasisPoints:   500,
		Price:                1_000_000_000,
		BuyerLamports:        100_000_000_000,
		SellerLamports:       10_000_000_000,
	}
}

// Sale is one ready-to-settle pairing of a listing and a bid.
type Sale struct {
	AuctionHouse        ledger.Pubkey `json:"auction_house"`
	ListingAuctionHouse ledger.Pubkey `json:"listing_auction_house"`
	Auctioneer          ledger.Pubkey `json:"auctioneer"`
	TokenMint           ledger.Pubkey `json:"token_mint"`
	TokenAccount        ledger.Pubkey `json:"token_account"`
	SellerTradeState    ledger.Pubkey `json:"seller_trade_state"`
	BuyerTradeState     ledger.Pubkey `json:"buyer_trade_state"`
	Price               uint64        `json:"price"`
}

type Result struct {
	Bank             ledger.Pubkey   `json:"bank"`
	Marketplace      ledger.Pubkey   `json:"marketplace"`
	Authority        ledger.Pubkey   `json:"authority"`
	AuctionMarket    ledger.Pubkey   `json:"auction_marketplace"`
	AuctioneerRecord ledger.Pubkey   `json:"auctioneer_record"`
	Buyer            ledger.Pubkey   `json:"buyer"`
	Seller           ledger.Pubkey   `json:"seller"`
	Creators         []ledger.Pubkey `json:"creators"`
	Direct           Sale            `json:"direct"`
	Delegated        Sale            `json:"delegated"`
}

// Initialize writes the demo market into store. Every wallet is a
// fixture.NamedWallet, so its signing key is fixture.NamedKey of the same
// name: "buyer", "seller", "authority", "auctioneer".
func Initialize(ctx context.Context, store *ledger.Store, p Params) (Result, error) {
	var res Result

	world, err := fixture.NewWorld(ctx, store)
	if err != nil {
		return res, fmt.Errorf("failed to create world: %w", err)
	}
	res.Bank = world.Bank

	if res.Buyer, err = world.Wallet(ctx, "buyer", p.BuyerLamports); err != nil {
		return res, fmt.Errorf("failed to fund buyer: %w", err)
	}
	if res.Seller, err = world.Wallet(ctx, "seller", p.SellerLamports); err != nil {
		return res, fmt.Errorf("failed to fund seller: %w", err)
	}
	res.Authority = fixture.NamedWallet("authority")

	house, err := world.Marketplace(ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("marketplace-creator"),
		Authority:            res.Authority,
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: p.SellerFeeBasisPoints,
	})
	if err != nil {
		return res, fmt.Errorf("failed to create marketplace: %w", err)
	}
	res.Marketplace = house.Address

	auctionHouse, err := world.Marketplace(ctx, fixture.MarketplaceParams{
		Creator:              fixture.NamedWallet("auction-creator"),
		Authority:            fixture.NamedWallet("auction-authority"),
		TreasuryMint:         token.NativeMint,
		SellerFeeBasisPoints: p.AuctioneerFeeBps,
	})
	if err != nil {
		return res, fmt.Errorf("failed to create auction marketplace: %w", err)
	}
	auctioneer := fixture.NamedWallet("auctioneer")
	auctionHouse, res.AuctioneerRecord, err = world.Delegate(ctx, auctionHouse, auctioneer,
		ah.ScopeDeposit, ah.ScopeBuy, ah.ScopePublicBuy, ah.ScopeExecuteSale, ah.ScopeSell, ah.ScopeCancel, ah.ScopeWithdraw)
	if err != nil {
		return res, fmt.Errorf("failed to delegate auctioneer: %w", err)
	}
	res.AuctionMarket = auctionHouse.Address

	res.Creators = []ledger.Pubkey{fixture.NamedWallet("artist"), fixture.NamedWallet("studio")}
	creators := []metadata.Creator{
		{Address: res.Creators[0], Verified: true, Share: 7000},
		{Address: res.Creators[1], Share: 3000},
	}

	res.Direct, err = listAndBid(ctx, world, house, house, res, "genesis-ape", p, creators, p.Price)
	if err != nil {
		return res, fmt.Errorf("failed to prepare direct sale: %w", err)
	}
	res.Delegated, err = listAndBid(ctx, world, auctionHouse, house, res, "genesis-owl", p, creators, ah.AuctionPrice)
	if err != nil {
		return res, fmt.Errorf("failed to prepare delegated sale: %w", err)
	}
	res.Delegated.Auctioneer = auctioneer
	return res, nil
}

func listAndBid(ctx context.Context, world *fixture.World, bidding, listing *ah.Marketplace, res Result, name string, p Params, creators []metadata.Creator, listingPrice uint64) (Sale, error) {
	asset, err := world.Asset(ctx, name, res.Seller, p.RoyaltyBasisPoints, creators...)
	if err != nil {
		return Sale{}, err
	}
	sellerTS, err := world.List(ctx, listing, res.Seller, asset, listingPrice, 1)
	if err != nil {
		return Sale{}, err
	}
	buyerTS, err := world.Bid(ctx, bidding, res.Buyer, asset, p.Price, 1, false)
	if err != nil {
		return Sale{}, err
	}
	return Sale{
		AuctionHouse:        bidding.Address,
		ListingAuctionHouse: listing.Address,
		TokenMint:           asset.Mint,
		TokenAccount:        asset.TokenAccount,
		SellerTradeState:    sellerTS,
		BuyerTradeState:     buyerTS,
		Price:               p.Price,
	}, nil
}
