package ledger

import (
	"fmt"
	"math/bits"
)

// Transfer moves lamports between accounts the way the system program does:
// the source must be a signing system account without data.
func Transfer(t *Txn, from, to Pubkey, lamports uint64, seeds ...SignerSeeds) error {
	if !t.Authorized(from, seeds...) {
		return fmt.Errorf("transfer from %s: %w", from, ErrMissingSignature)
	}
	src := t.Account(from)
	if src.Owner != SystemProgramID {
		return fmt.Errorf("transfer from %s: %w", from, ErrOwnerMismatch)
	}
	if !src.DataIsEmpty() {
		return fmt.Errorf("transfer from %s carries data: %w", from, ErrInvalidAccountData)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("transfer %d from %s holding %d: %w", lamports, from, src.Lamports, ErrInsufficientFunds)
	}
	if from == to {
		return t.Err()
	}
	dst := t.Account(to)
	sum, carry := bits.Add64(dst.Lamports, lamports, 0)
	if carry != 0 {
		return fmt.Errorf("credit %s: %w", to, ErrArithmeticOverflow)
	}
	src.Lamports -= lamports
	dst.Lamports = sum
	return t.Err()
}

// CreateAccount funds address with lamports from payer, allocates space and
// assigns it to owner. Both payer and the new address must sign.
func CreateAccount(t *Txn, payer, address Pubkey, lamports, space uint64, owner Pubkey, seeds ...SignerSeeds) error {
	if !t.Authorized(address, seeds...) {
		return fmt.Errorf("create account %s: %w", address, ErrMissingSignature)
	}
	acct := t.Account(address)
	if !acct.DataIsEmpty() || acct.Owner != SystemProgramID {
		return fmt.Errorf("create account %s: %w", address, ErrAccountAlreadyInUse)
	}

	// A pre-funded address only needs the shortfall.
	if acct.Lamports < lamports {
		if err := Transfer(t, payer, address, lamports-acct.Lamports, seeds...); err != nil {
			return fmt.Errorf("fund account %s: %w", address, err)
		}
	}
	acct.Data = make([]byte, space)
	acct.Owner = owner
	return t.Err()
}
