package token

import (
	"fmt"

	"github.com/leafsii/auction-house/internal/ledger"
)

func associatedSeeds(wallet, mint ledger.Pubkey) [][]byte {
	return [][]byte{wallet[:], ProgramID[:], mint[:]}
}

// AssociatedAddress is the canonical token account of wallet for mint.
func AssociatedAddress(wallet, mint ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(associatedSeeds(wallet, mint), AssociatedProgramID)
}

// CreateAssociatedAccount allocates and initializes the associated token
// account of wallet for mint, paid for by payer. It fails if the account
// already exists.
func CreateAssociatedAccount(tx *ledger.Txn, payer, wallet, mint ledger.Pubkey, seeds ...ledger.SignerSeeds) (ledger.Pubkey, error) {
	address, bump := AssociatedAddress(wallet, mint)
	signer := ledger.SignerSeeds{
		ProgramID: AssociatedProgramID,
		Seeds:     append(associatedSeeds(wallet, mint), []byte{bump}),
	}
	rent := ledger.MinimumBalance(AccountSize)
	if err := ledger.CreateAccount(tx, payer, address, rent, AccountSize, ProgramID, append(seeds, signer)...); err != nil {
		return ledger.Pubkey{}, fmt.Errorf("failed to create associated account: %w", err)
	}
	if err := InitializeAccount(tx, address, mint, wallet); err != nil {
		return ledger.Pubkey{}, fmt.Errorf("failed to initialize associated account: %w", err)
	}
	return address, nil
}

// AssertAssociated checks that account is the associated token account of
// wallet for mint.
func AssertAssociated(tx *ledger.Txn, account, wallet, mint ledger.Pubkey) (*Account, error) {
	ta, err := Load(tx, account)
	if err != nil {
		return nil, err
	}
	if ta.Owner != wallet {
		return nil, fmt.Errorf("%s owned by %s: %w", account, ta.Owner, ErrInvalidOwner)
	}
	if ta.Mint != mint {
		return nil, fmt.Errorf("%s: %w", account, ErrMintMismatch)
	}
	if want, _ := AssociatedAddress(wallet, mint); want != account {
		return nil, fmt.Errorf("%s: %w", account, ErrInvalidAssociated)
	}
	return ta, nil
}
