package auctionhouse

import (
	"github.com/leafsii/auction-house/internal/ledger"
)

// Authorizer is the part of a settlement that differs between entry
// points: who may drive it and which listing it settles against.
type Authorizer interface {
	Path() Path
	// Authorize runs the entry point's preconditions against the paying
	// marketplace before anything else is looked at.
	Authorize(tx *ledger.Txn, house *Marketplace, authority ledger.Pubkey) error
	// Listing returns the marketplace the seller listed under and the price
	// its trade state encodes.
	Listing(house *Marketplace, buyerPrice uint64) (*Marketplace, uint64)
}

// Direct settles a fixed-price listing with the marketplace authority as
// the only possible co-signer.
type Direct struct{}

func (Direct) Path() Path { return PathDirect }

func (Direct) Authorize(_ *ledger.Txn, house *Marketplace, authority ledger.Pubkey) error {
	if house.HasAuctioneer {
		return ErrMustUseAuctioneerHandler
	}
	if authority != house.Authority {
		return ErrAuthorizationMismatch.With("authority %s", authority)
	}
	return nil
}

func (Direct) Listing(house *Marketplace, buyerPrice uint64) (*Marketplace, uint64) {
	return house, buyerPrice
}

// Delegated settles through an auctioneer holding the execute-sale scope on
// the bidding marketplace. The listing may live under another marketplace
// with the same treasury mint; its seller trade state carries AuctionPrice.
type Delegated struct {
	ListingHouse        *Marketplace
	AuctioneerAuthority ledger.Pubkey
	AuctioneerRecord    ledger.Pubkey
}

func (Delegated) Path() Path { return PathAuctioneer }

func (d Delegated) Authorize(tx *ledger.Txn, house *Marketplace, authority ledger.Pubkey) error {
	if !house.HasAuctioneer {
		return ErrNoAuctioneerProgramSet
	}
	if authority != house.Authority {
		return ErrAuthorizationMismatch.With("authority %s", authority)
	}
	if err := CheckScope(tx, house, d.AuctioneerAuthority, d.AuctioneerRecord, ScopeExecuteSale); err != nil {
		return err
	}
	if d.ListingHouse == nil {
		return ErrNotEnoughAccountKeys.With("listing auction house")
	}
	if err := d.ListingHouse.verify(tx); err != nil {
		return err
	}
	if d.ListingHouse.TreasuryMint != house.TreasuryMint {
		return ErrAuthorizationMismatch.With("listing auction house %s pays in %s", d.ListingHouse.Address, d.ListingHouse.TreasuryMint)
	}
	return nil
}

func (d Delegated) Listing(_ *Marketplace, _ uint64) (*Marketplace, uint64) {
	return d.ListingHouse, AuctionPrice
}

// CheckScope verifies that record is the scope record of a signing
// auctioneer the marketplace delegated to, and that it grants scope.
func CheckScope(tx *ledger.Txn, house *Marketplace, authority, record ledger.Pubkey, scope AuthorityScope) error {
	if !tx.IsSigner(authority) {
		return ErrAuthorizationMismatch.Wrap(ledger.ErrMissingSignature).With("auctioneer authority %s", authority)
	}
	if want, _ := AuctioneerAddress(house.Address, authority); want != record {
		return ErrAuthorizationMismatch.With("auctioneer record %s", record)
	}
	if !house.HasAuctioneer || house.AuctioneerAddress != record {
		return ErrAuctioneerNotConfigured.With("%s is not the auctioneer of %s", record, house.Address)
	}

	acct := tx.Account(record)
	if acct.Owner != ProgramID || len(acct.Data) == 0 {
		return ErrAuctioneerNotConfigured.With("auctioneer record %s is empty", record)
	}
	rec, err := DecodeAuctioneer(acct.Data)
	if err != nil {
		return ErrAuctioneerNotConfigured.Wrap(err)
	}
	if rec.AuctioneerAuthority != authority || rec.AuctionHouse != house.Address {
		return ErrAuctioneerNotConfigured.With("auctioneer record %s belongs to %s on %s", record, rec.AuctioneerAuthority, rec.AuctionHouse)
	}
	if !rec.HasScope(scope) {
		return ErrInsufficientAuctioneerScope.With("missing %s", scope)
	}
	return nil
}
