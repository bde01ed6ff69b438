package auctionhouse

import (
	"errors"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/token"
)

// checkAccounts reproduces the account constraints both entry points
// declare: the marketplaces and their derived accounts, the escrow, the
// seller and free trade states and the custodial signer.
func (s *sale) checkAccounts() error {
	a := &s.accts
	if err := s.house.verify(s.tx); err != nil {
		return err
	}
	if a.TreasuryMint != s.house.TreasuryMint {
		return ErrAuthorizationMismatch.With("treasury mint %s", a.TreasuryMint)
	}
	if a.AuctionHouseFeeAccount != s.house.AuctionHouseFeeAccount {
		return ErrAuthorizationMismatch.With("fee account %s", a.AuctionHouseFeeAccount)
	}
	if a.AuctionHouseTreasury != s.house.AuctionHouseTreasury {
		return ErrAuthorizationMismatch.With("treasury %s", a.AuctionHouseTreasury)
	}

	escrow, err := deriveWithBump(EscrowSeeds(s.house.Address, a.Buyer), s.args.EscrowPaymentBump)
	if err != nil || escrow != a.EscrowPaymentAccount {
		return ErrAuthorizationMismatch.With("escrow %s", a.EscrowPaymentAccount)
	}

	signer, err := deriveWithBump([][]byte{[]byte(Prefix), []byte(Signer)}, s.args.ProgramAsSignerBump)
	if err != nil || signer != a.ProgramAsSigner {
		return ErrAuthorizationMismatch.With("program as signer %s", a.ProgramAsSigner)
	}

	sellerTS := s.tx.Account(a.SellerTradeState)
	if len(sellerTS.Data) == 0 {
		return ErrTradeStateInvalidOrConsumed.With("seller trade state %s", a.SellerTradeState)
	}
	seeds := TradeStateSeeds(a.Seller, s.listing.Address, a.TokenAccount, s.listing.TreasuryMint, a.TokenMint, s.listingPrice, s.args.TokenSize)
	if addr, err := deriveWithBump(seeds, sellerTS.Data[0]); err != nil || addr != a.SellerTradeState {
		return ErrAuthorizationMismatch.With("seller trade state %s", a.SellerTradeState)
	}

	free := TradeStateSeeds(a.Seller, s.listing.Address, a.TokenAccount, s.listing.TreasuryMint, a.TokenMint, 0, s.args.TokenSize)
	if addr, err := deriveWithBump(free, s.args.FreeTradeStateBump); err != nil || addr != a.FreeTradeState {
		return ErrAuthorizationMismatch.With("free trade state %s", a.FreeTradeState)
	}
	return nil
}

// liveTradeState returns the bump byte of a trade state that has not been
// consumed.
func (s *sale) liveTradeState(key ledger.Pubkey) (uint8, error) {
	acct := s.tx.Account(key)
	if len(acct.Data) == 0 || acct.Data[0] == 0 {
		return 0, ErrTradeStateInvalidOrConsumed.With("%s", key)
	}
	if acct.Owner != ProgramID {
		return 0, ErrAuthorizationMismatch.With("trade state %s is not owned by the program", key)
	}
	return acct.Data[0], nil
}

// validateTradeStates checks that the buy and sell orders agree and are
// still live, and that the seller put the asset in the program's custody.
func (s *sale) validateTradeStates() error {
	a := &s.accts
	if s.args.BuyerPrice == 0 && !s.tx.IsSigner(a.Authority) && !s.tx.IsSigner(a.Seller) {
		return ErrCannotMatchFreeSales
	}

	buyerBump, err := s.liveTradeState(a.BuyerTradeState)
	if err != nil {
		return err
	}
	if _, err := s.liveTradeState(a.SellerTradeState); err != nil {
		return err
	}

	holding, err := token.Load(s.tx, a.TokenAccount)
	if err != nil {
		return ErrInvalidAccountData.Wrap(err)
	}
	if holding.Mint != a.TokenMint {
		return ErrAuthorizationMismatch.With("token account %s holds mint %s", a.TokenAccount, holding.Mint)
	}
	delegate, ok := holding.DelegateKey()
	if !ok {
		return ErrBothPartiesNeedToAgreeToSale.With("no delegate on token account %s", a.TokenAccount)
	}
	if delegate != a.ProgramAsSigner {
		return ErrBothPartiesNeedToAgreeToSale.With("token account %s delegated to %s", a.TokenAccount, delegate)
	}

	private := TradeStateSeeds(a.Buyer, s.house.Address, a.TokenAccount, s.house.TreasuryMint, a.TokenMint, s.args.BuyerPrice, s.args.TokenSize)
	if addr, err := deriveWithBump(private, buyerBump); err == nil && addr == a.BuyerTradeState {
		return nil
	}
	public := PublicTradeStateSeeds(a.Buyer, s.house.Address, s.house.TreasuryMint, a.TokenMint, s.args.BuyerPrice, s.args.TokenSize)
	if addr, err := deriveWithBump(public, buyerBump); err == nil && addr == a.BuyerTradeState {
		s.publicBid = true
		return nil
	}
	return ErrAuthorizationMismatch.With("buyer trade state %s", a.BuyerTradeState)
}

// assertSellerHolding checks the asset sits in the seller's associated
// account for the mint.
func (s *sale) assertSellerHolding() error {
	_, err := token.AssertAssociated(s.tx, s.accts.TokenAccount, s.accts.Seller, s.accts.TokenMint)
	if err != nil {
		return tokenAccountError(err)
	}
	return nil
}

func tokenAccountError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, token.ErrUninitialized) || errors.Is(err, ledger.ErrInvalidAccountData) {
		return ErrInvalidAccountData.Wrap(err)
	}
	return ErrAuthorizationMismatch.Wrap(err)
}
