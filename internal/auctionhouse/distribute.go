package auctionhouse

import (
	"fmt"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// Payout is one outbound payment of a settlement.
type Payout struct {
	Recipient ledger.Pubkey `json:"recipient"`
	Account   ledger.Pubkey `json:"account"`
	Amount    uint64        `json:"amount"`
}

// escrowSigner is who may move funds out of the escrow. A native escrow is
// a system account the program signs for with the escrow seeds; a token
// escrow is owned by the auction house.
func (s *sale) escrowSigner() (ledger.Pubkey, ledger.SignerSeeds) {
	if s.native {
		return s.accts.EscrowPaymentAccount, SignerSeedsFor(EscrowSeeds(s.house.Address, s.accts.Buyer), s.args.EscrowPaymentBump)
	}
	return s.house.Address, s.house.signerSeeds()
}

func (s *sale) payFromEscrow(to ledger.Pubkey, amount uint64) error {
	authority, seeds := s.escrowSigner()
	if s.native {
		return ledger.Transfer(s.tx, s.accts.EscrowPaymentAccount, to, amount, seeds)
	}
	return token.Transfer(s.tx, s.accts.EscrowPaymentAccount, to, authority, amount, seeds)
}

// creatorAccounts hands out the per-creator accounts in metadata order.
type creatorAccounts struct {
	keys []ledger.Pubkey
	next int
}

func (c *creatorAccounts) take(what string) (ledger.Pubkey, error) {
	if c.next >= len(c.keys) {
		return ledger.Pubkey{}, ErrNotEnoughAccountKeys.With("missing %s", what)
	}
	k := c.keys[c.next]
	c.next++
	return k, nil
}

// distribute pays the creators their royalty shares and the marketplace its
// fee out of the escrow, in that order, and returns the split with the
// seller's proceeds still to be paid.
func (s *sale) distribute(md *metadata.Metadata) (Split, []Payout, error) {
	shares := make([]uint16, len(md.Creators))
	for i, c := range md.Creators {
		shares[i] = c.Share
	}
	split, err := ComputeSplit(s.args.BuyerPrice, md.SellerFeeBasisPoints, shares, s.house.SellerFeeBasisPoints)
	if err != nil {
		return Split{}, nil, err
	}

	accounts := &creatorAccounts{keys: s.accts.Creators}
	payouts := make([]Payout, 0, len(md.Creators)+1)
	for i, c := range md.Creators {
		wallet, err := accounts.take(fmt.Sprintf("creator %d", i))
		if err != nil {
			return Split{}, nil, err
		}
		if wallet != c.Address {
			return Split{}, nil, ErrAuthorizationMismatch.With("creator %d is %s, got %s", i, c.Address, wallet)
		}

		dest := wallet
		if !s.native {
			if dest, err = accounts.take(fmt.Sprintf("creator %d token account", i)); err != nil {
				return Split{}, nil, err
			}
			if _, err := s.ensureAssociated(dest, wallet, s.house.TreasuryMint, nil); err != nil {
				return Split{}, nil, err
			}
		}

		fee := split.CreatorFees[i]
		if fee == 0 {
			continue
		}
		if err := s.payFromEscrow(dest, fee); err != nil {
			return Split{}, nil, fmt.Errorf("failed to pay creator %s: %w", wallet, err)
		}
		payouts = append(payouts, Payout{Recipient: wallet, Account: dest, Amount: fee})
	}

	if split.HouseFee > 0 {
		if err := s.payFromEscrow(s.house.AuctionHouseTreasury, split.HouseFee); err != nil {
			return Split{}, nil, fmt.Errorf("failed to pay auction house fee: %w", err)
		}
	}
	return split, payouts, nil
}
