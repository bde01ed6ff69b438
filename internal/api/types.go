package api

import (
	"fmt"
	"strconv"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/settlement"
)

// SignatureDTO names a signer of a sale. Signature is base58 and may be
// omitted when the server trusts declared signers.
type SignatureDTO struct {
	Signer    ledger.Pubkey `json:"signer"`
	Signature string        `json:"signature,omitempty"`
}

// ExecuteSaleRequest is the body of both sale endpoints. Amounts are
// decimal strings of base units.
type ExecuteSaleRequest struct {
	AuctionHouse        ledger.Pubkey  `json:"auction_house"`
	ListingAuctionHouse *ledger.Pubkey `json:"listing_auction_house,omitempty"`
	Auctioneer          *ledger.Pubkey `json:"auctioneer,omitempty"`
	Buyer               ledger.Pubkey  `json:"buyer"`
	Seller              ledger.Pubkey  `json:"seller"`
	TokenMint           ledger.Pubkey  `json:"token_mint"`
	TokenAccount        *ledger.Pubkey `json:"token_account,omitempty"`
	Price               string         `json:"price"`
	TokenSize           string         `json:"token_size"`
	PublicBid           bool           `json:"public_bid"`
	Signers             []SignatureDTO `json:"signers"`
}

func parseAmount(name, s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

func (r *ExecuteSaleRequest) toRequest() (settlement.Request, error) {
	price, err := parseAmount("price", r.Price)
	if err != nil {
		return settlement.Request{}, fmt.Errorf("%w: %v", settlement.ErrInvalidRequest, err)
	}
	size, err := parseAmount("token_size", r.TokenSize)
	if err != nil {
		return settlement.Request{}, fmt.Errorf("%w: %v", settlement.ErrInvalidRequest, err)
	}

	req := settlement.Request{
		AuctionHouse: r.AuctionHouse,
		Buyer:        r.Buyer,
		Seller:       r.Seller,
		TokenMint:    r.TokenMint,
		Price:        price,
		TokenSize:    size,
		PublicBid:    r.PublicBid,
	}
	if r.ListingAuctionHouse != nil {
		req.ListingAuctionHouse = *r.ListingAuctionHouse
	}
	if r.Auctioneer != nil {
		req.Auctioneer = *r.Auctioneer
	}
	if r.TokenAccount != nil {
		req.TokenAccount = *r.TokenAccount
	}
	for _, s := range r.Signers {
		sig, err := settlement.DecodeSignature(s.Signature)
		if err != nil {
			return settlement.Request{}, err
		}
		req.Signers = append(req.Signers, settlement.Signature{Signer: s.Signer, Sig: sig})
	}
	return req, nil
}

type WalletSalesDTO struct {
	Address    string               `json:"address"`
	Items      []*settlement.Record `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
	UpdatedAt  int64                `json:"updated_at"`
}

type AccountDTO struct {
	Address    ledger.Pubkey `json:"address"`
	Lamports   uint64        `json:"lamports"`
	Owner      ledger.Pubkey `json:"owner"`
	Executable bool          `json:"executable"`
	// Data is base64, as encoding/json renders byte slices.
	Data []byte `json:"data"`
}

type QuoteDTO struct {
	*settlement.Quote
	AsOf int64 `json:"as_of"`
}

type HealthDTO struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
