package auctionhouse

import (
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// SaleRequest names a sale by its parties and terms. ResolveSale expands it
// into the full account set the engine expects.
type SaleRequest struct {
	Buyer     ledger.Pubkey
	Seller    ledger.Pubkey
	TokenMint ledger.Pubkey
	// TokenAccount defaults to the seller's associated account for the mint.
	TokenAccount ledger.Pubkey
	Price        uint64
	TokenSize    uint64
	// PublicBid selects the buyer trade state that is not bound to a token
	// account.
	PublicBid bool
}

// ResolveSale derives every account of a sale of r between listing and
// house. listingPrice is the price the seller trade state encodes: the sale
// price for a direct sale, AuctionPrice for one through an auctioneer.
func ResolveSale(tx *ledger.Txn, house, listing *Marketplace, listingPrice uint64, r SaleRequest) (SaleAccounts, SaleArgs) {
	tokenAccount := r.TokenAccount
	if tokenAccount.IsZero() {
		tokenAccount, _ = token.AssociatedAddress(r.Seller, r.TokenMint)
	}
	escrow, escrowBump := EscrowAddress(house.Address, r.Buyer)
	metadataAddr, _ := metadata.Address(r.TokenMint)
	buyerReceipt, _ := token.AssociatedAddress(r.Buyer, r.TokenMint)
	signer, signerBump := ProgramAsSignerAddress()

	sellerReceipt := r.Seller
	if !house.IsNative() {
		sellerReceipt, _ = token.AssociatedAddress(r.Seller, house.TreasuryMint)
	}

	var buyerTS ledger.Pubkey
	if r.PublicBid {
		buyerTS, _ = PublicTradeStateAddress(r.Buyer, house.Address, house.TreasuryMint, r.TokenMint, r.Price, r.TokenSize)
	} else {
		buyerTS, _ = TradeStateAddress(r.Buyer, house.Address, tokenAccount, house.TreasuryMint, r.TokenMint, r.Price, r.TokenSize)
	}
	sellerTS, _ := TradeStateAddress(r.Seller, listing.Address, tokenAccount, listing.TreasuryMint, r.TokenMint, listingPrice, r.TokenSize)
	freeTS, freeBump := FreeTradeStateAddress(r.Seller, listing.Address, tokenAccount, listing.TreasuryMint, r.TokenMint, r.TokenSize)

	var creators []ledger.Pubkey
	if md, err := metadata.Load(tx, metadataAddr, r.TokenMint); err == nil {
		for _, c := range md.Creators {
			creators = append(creators, c.Address)
			if !house.IsNative() {
				ata, _ := token.AssociatedAddress(c.Address, house.TreasuryMint)
				creators = append(creators, ata)
			}
		}
	}

	accts := SaleAccounts{
		Buyer:                       r.Buyer,
		Seller:                      r.Seller,
		TokenAccount:                tokenAccount,
		TokenMint:                   r.TokenMint,
		Metadata:                    metadataAddr,
		TreasuryMint:                house.TreasuryMint,
		EscrowPaymentAccount:        escrow,
		SellerPaymentReceiptAccount: sellerReceipt,
		BuyerReceiptTokenAccount:    buyerReceipt,
		Authority:                   house.Authority,
		AuctionHouseFeeAccount:      house.AuctionHouseFeeAccount,
		AuctionHouseTreasury:        house.AuctionHouseTreasury,
		BuyerTradeState:             buyerTS,
		SellerTradeState:            sellerTS,
		FreeTradeState:              freeTS,
		ProgramAsSigner:             signer,
		Creators:                    creators,
	}
	args := SaleArgs{
		EscrowPaymentBump:   escrowBump,
		FreeTradeStateBump:  freeBump,
		ProgramAsSignerBump: signerBump,
		BuyerPrice:          r.Price,
		TokenSize:           r.TokenSize,
	}
	return accts, args
}
