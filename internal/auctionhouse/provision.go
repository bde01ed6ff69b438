package auctionhouse

import (
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/token"
)

// resolveFeePayer picks who pays for new accounts and collects reclaimed
// rent: the marketplace fee account when the authority co-signed, else the
// buyer or the seller, whichever signed.
func (s *sale) resolveFeePayer() error {
	a := &s.accts
	if s.tx.IsSigner(a.Authority) {
		s.feePayer = s.house.AuctionHouseFeeAccount
		s.feePayerSeeds = []ledger.SignerSeeds{s.house.feeAccountSeeds()}
		return nil
	}

	wallet := a.Seller
	if s.tx.IsSigner(a.Buyer) {
		wallet = a.Buyer
	}
	if !s.tx.IsSigner(wallet) {
		return ErrNoPayerPresent
	}
	if s.house.RequiresSignOff {
		return ErrRequiresSignOff
	}
	s.feePayer = wallet
	s.feePayerSeeds = nil
	return nil
}

// ensureAssociated makes address the associated token account of owner for
// mint, creating it at the fee payer's expense when it does not exist yet.
// An account with a delegate fails with delegateErr.
func (s *sale) ensureAssociated(address, owner, mint ledger.Pubkey, delegateErr *Error) (*token.Account, error) {
	if s.tx.Account(address).DataIsEmpty() {
		if want, _ := token.AssociatedAddress(owner, mint); want != address {
			return nil, ErrAuthorizationMismatch.With("%s is not the associated account of %s", address, owner)
		}
		if _, err := token.CreateAssociatedAccount(s.tx, s.feePayer, owner, mint, s.feePayerSeeds...); err != nil {
			return nil, err
		}
		s.created = append(s.created, address)
	}

	acct, err := token.AssertAssociated(s.tx, address, owner, mint)
	if err != nil {
		return nil, tokenAccountError(err)
	}
	if delegateErr != nil && acct.HasDelegate {
		return nil, delegateErr.With("%s delegated to %s", address, acct.Delegate)
	}
	return acct, nil
}
