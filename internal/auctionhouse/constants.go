// Package auctionhouse is the settlement engine of the marketplace program.
// It matches a seller trade state against a buyer trade state, pays
// royalties, the marketplace fee and the seller out of the buyer's escrow,
// moves the asset to the buyer and retires both trade states, all inside
// one ledger transaction.
package auctionhouse

import (
	"github.com/leafsii/auction-house/internal/ledger"
)

var ProgramID = ledger.MustPubkeyFromBase58("hausS13jsjafwWwGqZTUQRmWyvyxn9EQpqMwV1PBBmk")

// Seed literals of the derived addresses.
const (
	Prefix     = "auction_house"
	FeePayer   = "fee_payer"
	Treasury   = "treasury"
	Signer     = "signer"
	Auctioneer = "auctioneer"
)

const (
	// TradeStateSize is the exact storage of a trade state record: the bump
	// of its own address.
	TradeStateSize = 1
	MaxBasisPoints = 10000
)

// AuthorityScope is one capability an auction house can delegate to an
// auctioneer.
type AuthorityScope uint8

const (
	ScopeDeposit AuthorityScope = iota
	ScopeBuy
	ScopePublicBuy
	ScopeExecuteSale
	ScopeSell
	ScopeCancel
	ScopeWithdraw

	ScopeCount = 7
)

var scopeNames = [ScopeCount]string{"deposit", "buy", "public_buy", "execute_sale", "sell", "cancel", "withdraw"}

func (s AuthorityScope) String() string {
	if int(s) < len(scopeNames) {
		return scopeNames[s]
	}
	return "unknown"
}

// ParseScope maps a scope name back to its value.
func ParseScope(name string) (AuthorityScope, bool) {
	for i, n := range scopeNames {
		if n == name {
			return AuthorityScope(i), true
		}
	}
	return 0, false
}

// Path tells which entry point settled a sale.
type Path string

const (
	PathDirect     Path = "direct"
	PathAuctioneer Path = "auctioneer"
)

// AuctionPrice is the price encoded in the seller trade state of a listing
// made through an auctioneer.
const AuctionPrice = ^uint64(0)
