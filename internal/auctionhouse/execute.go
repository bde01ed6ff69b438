package auctionhouse

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// SaleAccounts is every account a settlement reads or writes.
type SaleAccounts struct {
	Buyer                       ledger.Pubkey
	Seller                      ledger.Pubkey
	TokenAccount                ledger.Pubkey
	TokenMint                   ledger.Pubkey
	Metadata                    ledger.Pubkey
	TreasuryMint                ledger.Pubkey
	EscrowPaymentAccount        ledger.Pubkey
	SellerPaymentReceiptAccount ledger.Pubkey
	BuyerReceiptTokenAccount    ledger.Pubkey
	Authority                   ledger.Pubkey
	AuctionHouseFeeAccount      ledger.Pubkey
	AuctionHouseTreasury        ledger.Pubkey
	BuyerTradeState             ledger.Pubkey
	SellerTradeState            ledger.Pubkey
	FreeTradeState              ledger.Pubkey
	ProgramAsSigner             ledger.Pubkey
	// Creators lists, in metadata order, each creator's wallet followed by
	// its token account when the marketplace is not native.
	Creators []ledger.Pubkey
}

type SaleArgs struct {
	EscrowPaymentBump   uint8
	FreeTradeStateBump  uint8
	ProgramAsSignerBump uint8
	BuyerPrice          uint64
	TokenSize           uint64
}

// Receipt describes a completed settlement.
type Receipt struct {
	Path                Path            `json:"path"`
	AuctionHouse        ledger.Pubkey   `json:"auction_house"`
	ListingAuctionHouse ledger.Pubkey   `json:"listing_auction_house"`
	Buyer               ledger.Pubkey   `json:"buyer"`
	Seller              ledger.Pubkey   `json:"seller"`
	TokenMint           ledger.Pubkey   `json:"token_mint"`
	TreasuryMint        ledger.Pubkey   `json:"treasury_mint"`
	Price               uint64          `json:"price"`
	TokenSize           uint64          `json:"token_size"`
	PublicBid           bool            `json:"public_bid"`
	Royalties           []Payout        `json:"royalties"`
	RoyaltyTotal        uint64          `json:"royalty_total"`
	HouseFee            uint64          `json:"house_fee"`
	SellerProceeds      uint64          `json:"seller_proceeds"`
	FeePayer            ledger.Pubkey   `json:"fee_payer"`
	ReclaimedRent       uint64          `json:"reclaimed_rent"`
	CreatedAccounts     []ledger.Pubkey `json:"created_accounts"`
}

// RoyaltiesPaid sums the creator payouts.
func (r *Receipt) RoyaltiesPaid() uint64 {
	var total uint64
	for _, p := range r.Royalties {
		total += p.Amount
	}
	return total
}

// sale is the working state of one settlement.
type sale struct {
	tx           *ledger.Txn
	house        *Marketplace
	listing      *Marketplace
	accts        SaleAccounts
	args         SaleArgs
	listingPrice uint64
	native       bool
	publicBid    bool

	feePayer      ledger.Pubkey
	feePayerSeeds []ledger.SignerSeeds
	created       []ledger.Pubkey
}

// Engine settles sales on a ledger transaction. It holds no state between
// calls; atomicity comes from the transaction it is given.
type Engine struct {
	logger *zap.SugaredLogger
}

func NewEngine(logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{logger: logger}
}

// ExecuteSale settles a listing and a bid posted under the same marketplace.
func (e *Engine) ExecuteSale(tx *ledger.Txn, house *Marketplace, accts SaleAccounts, args SaleArgs) (*Receipt, error) {
	return e.Execute(tx, Direct{}, house, accts, args)
}

// ExecuteSaleWithAuctioneer settles through the auctioneer of the bidding
// marketplace. Fees and escrow come from bidding; the seller trade state
// was posted under listing.
func (e *Engine) ExecuteSaleWithAuctioneer(tx *ledger.Txn, listing, bidding *Marketplace, auctioneerAuthority, auctioneerRecord ledger.Pubkey, accts SaleAccounts, args SaleArgs) (*Receipt, error) {
	auth := Delegated{
		ListingHouse:        listing,
		AuctioneerAuthority: auctioneerAuthority,
		AuctioneerRecord:    auctioneerRecord,
	}
	return e.Execute(tx, auth, bidding, accts, args)
}

// Execute runs a settlement under the given authorization strategy. On
// error the transaction must be discarded.
func (e *Engine) Execute(tx *ledger.Txn, auth Authorizer, house *Marketplace, accts SaleAccounts, args SaleArgs) (*Receipt, error) {
	if house == nil {
		return nil, ErrNotEnoughAccountKeys.With("auction house")
	}
	if err := auth.Authorize(tx, house, accts.Authority); err != nil {
		return nil, err
	}
	listing, listingPrice := auth.Listing(house, args.BuyerPrice)

	s := &sale{
		tx:           tx,
		house:        house,
		listing:      listing,
		accts:        accts,
		args:         args,
		listingPrice: listingPrice,
		native:       house.IsNative(),
	}
	receipt, err := s.settle()
	if err == nil {
		err = tx.Err()
	}
	if err != nil {
		e.logger.Debugw("Settlement rejected", "path", auth.Path(), "auction_house", house.Address, "error", err)
		return nil, err
	}
	receipt.Path = auth.Path()

	e.logger.Debugw("Settlement applied",
		"path", receipt.Path,
		"auction_house", receipt.AuctionHouse,
		"buyer", receipt.Buyer,
		"seller", receipt.Seller,
		"mint", receipt.TokenMint,
		"price", receipt.Price,
		"house_fee", receipt.HouseFee,
		"seller_proceeds", receipt.SellerProceeds,
	)
	return receipt, nil
}

func (s *sale) settle() (*Receipt, error) {
	a := &s.accts
	if err := s.checkAccounts(); err != nil {
		return nil, err
	}
	if err := s.validateTradeStates(); err != nil {
		return nil, err
	}
	if err := s.resolveFeePayer(); err != nil {
		return nil, err
	}
	if err := s.assertSellerHolding(); err != nil {
		return nil, err
	}

	md, err := metadata.Load(s.tx, a.Metadata, a.TokenMint)
	switch {
	case errors.Is(err, metadata.ErrEmpty):
		return nil, ErrMetadataDoesntExist.With("%s", a.Metadata)
	case errors.Is(err, metadata.ErrDerivationMismatch), errors.Is(err, metadata.ErrMintMismatch):
		return nil, ErrAuthorizationMismatch.Wrap(err)
	case err != nil:
		return nil, ErrInvalidAccountData.Wrap(err)
	}

	split, royalties, err := s.distribute(md)
	if err != nil {
		return nil, err
	}
	if err := s.paySeller(split.SellerProceeds); err != nil {
		return nil, err
	}
	if err := s.deliverAsset(); err != nil {
		return nil, err
	}
	reclaimed, err := s.retireTradeStates()
	if err != nil {
		return nil, err
	}

	return &Receipt{
		AuctionHouse:        s.house.Address,
		ListingAuctionHouse: s.listing.Address,
		Buyer:               a.Buyer,
		Seller:              a.Seller,
		TokenMint:           a.TokenMint,
		TreasuryMint:        s.house.TreasuryMint,
		Price:               s.args.BuyerPrice,
		TokenSize:           s.args.TokenSize,
		PublicBid:           s.publicBid,
		Royalties:           royalties,
		RoyaltyTotal:        split.RoyaltiesPaid,
		HouseFee:            split.HouseFee,
		SellerProceeds:      split.SellerProceeds,
		FeePayer:            s.feePayer,
		ReclaimedRent:       reclaimed,
		CreatedAccounts:     s.created,
	}, nil
}

// paySeller sends what is left after royalties and the marketplace fee to
// the seller.
func (s *sale) paySeller(amount uint64) error {
	a := &s.accts
	if s.native {
		if a.SellerPaymentReceiptAccount != a.Seller {
			return ErrAuthorizationMismatch.With("native payment must go to the seller wallet, got %s", a.SellerPaymentReceiptAccount)
		}
	} else {
		if _, err := s.ensureAssociated(a.SellerPaymentReceiptAccount, a.Seller, s.house.TreasuryMint, ErrSellerATACannotHaveDelegate); err != nil {
			return err
		}
	}
	if err := s.payFromEscrow(a.SellerPaymentReceiptAccount, amount); err != nil {
		return fmt.Errorf("failed to pay seller: %w", err)
	}
	return nil
}

// deliverAsset moves the asset from the seller's account into the buyer's,
// signed by the program's custodial delegate.
func (s *sale) deliverAsset() error {
	a := &s.accts
	if _, err := s.ensureAssociated(a.BuyerReceiptTokenAccount, a.Buyer, a.TokenMint, ErrBuyerATACannotHaveDelegate); err != nil {
		return err
	}
	signer := SignerSeedsFor([][]byte{[]byte(Prefix), []byte(Signer)}, s.args.ProgramAsSignerBump)
	if err := token.Transfer(s.tx, a.TokenAccount, a.BuyerReceiptTokenAccount, a.ProgramAsSigner, s.args.TokenSize, signer); err != nil {
		return fmt.Errorf("failed to transfer asset: %w", err)
	}
	return nil
}

// retireTradeStates empties both trade states, and the free trade state when
// it holds lamports, crediting their lamports to the fee payer. A retired
// trade state can never fund another settlement.
func (s *sale) retireTradeStates() (uint64, error) {
	var reclaimed uint64
	retire := func(key ledger.Pubkey) error {
		acct := s.tx.Account(key)
		payer := s.tx.Account(s.feePayer)
		credited, err := checkedAdd(payer.Lamports, acct.Lamports)
		if err != nil {
			return err
		}
		if reclaimed, err = checkedAdd(reclaimed, acct.Lamports); err != nil {
			return err
		}
		payer.Lamports = credited
		acct.Lamports = 0
		for i := 0; i < TradeStateSize && i < len(acct.Data); i++ {
			acct.Data[i] = 0
		}
		return nil
	}

	if err := retire(s.accts.SellerTradeState); err != nil {
		return 0, err
	}
	if err := retire(s.accts.BuyerTradeState); err != nil {
		return 0, err
	}
	if s.tx.Account(s.accts.FreeTradeState).Lamports > 0 {
		if err := retire(s.accts.FreeTradeState); err != nil {
			return 0, err
		}
	}
	return reclaimed, nil
}
