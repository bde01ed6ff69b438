package token

import (
	"fmt"
	"math/bits"

	"github.com/leafsii/auction-house/internal/ledger"
)

// InitializeMint sets up a mint in an account already allocated to the
// token program.
func InitializeMint(tx *ledger.Txn, mint, authority ledger.Pubkey, decimals uint8) error {
	acct := tx.Account(mint)
	if acct.Owner != ProgramID || len(acct.Data) != MintSize {
		return fmt.Errorf("mint %s: %w", mint, ErrNotTokenAccount)
	}
	if _, err := UnpackMint(acct.Data); err == nil {
		return fmt.Errorf("mint %s: %w", mint, ErrAlreadyInitialized)
	}
	return PackMint(&Mint{MintAuthority: authority, Decimals: decimals, IsInitialized: true}, acct.Data)
}

// InitializeAccount sets up a token account already allocated to the token
// program.
func InitializeAccount(tx *ledger.Txn, address, mint, owner ledger.Pubkey) error {
	acct := tx.Account(address)
	if acct.Owner != ProgramID || len(acct.Data) != AccountSize {
		return fmt.Errorf("account %s: %w", address, ErrNotTokenAccount)
	}
	if _, err := UnpackAccount(acct.Data); err == nil {
		return fmt.Errorf("account %s: %w", address, ErrAlreadyInitialized)
	}
	if mint != NativeMint {
		if _, err := UnpackMint(tx.Account(mint).Data); err != nil {
			return fmt.Errorf("mint %s: %w", mint, err)
		}
	}
	return PackAccount(&Account{
		Mint:     mint,
		Owner:    owner,
		State:    StateInitialized,
		IsNative: mint == NativeMint,
	}, acct.Data)
}

// MintTo issues amount new tokens into destination.
func MintTo(tx *ledger.Txn, mint, destination, authority ledger.Pubkey, amount uint64, seeds ...ledger.SignerSeeds) error {
	mintAcct := tx.Account(mint)
	m, err := UnpackMint(mintAcct.Data)
	if err != nil {
		return fmt.Errorf("mint %s: %w", mint, err)
	}
	if m.MintAuthority != authority {
		return ErrMintAuthorityDenied
	}
	if !tx.Authorized(authority, seeds...) {
		return fmt.Errorf("mint authority %s: %w", authority, ledger.ErrMissingSignature)
	}
	dst, err := Load(tx, destination)
	if err != nil {
		return err
	}
	if dst.Mint != mint {
		return ErrMintMismatch
	}
	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return ledger.ErrArithmeticOverflow
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ledger.ErrArithmeticOverflow
	}
	m.Supply = supply
	dst.Amount = balance
	if err := PackMint(m, mintAcct.Data); err != nil {
		return err
	}
	return store(tx, destination, dst)
}

// Approve lets delegate move up to amount tokens out of source.
func Approve(tx *ledger.Txn, source, delegate, owner ledger.Pubkey, amount uint64, seeds ...ledger.SignerSeeds) error {
	src, err := Load(tx, source)
	if err != nil {
		return err
	}
	if src.Owner != owner {
		return ErrInvalidOwner
	}
	if !tx.Authorized(owner, seeds...) {
		return fmt.Errorf("owner %s: %w", owner, ledger.ErrMissingSignature)
	}
	src.HasDelegate = true
	src.Delegate = delegate
	src.DelegatedAmount = amount
	return store(tx, source, src)
}

// Revoke clears any delegate on source.
func Revoke(tx *ledger.Txn, source, owner ledger.Pubkey, seeds ...ledger.SignerSeeds) error {
	src, err := Load(tx, source)
	if err != nil {
		return err
	}
	if src.Owner != owner {
		return ErrInvalidOwner
	}
	if !tx.Authorized(owner, seeds...) {
		return fmt.Errorf("owner %s: %w", owner, ledger.ErrMissingSignature)
	}
	src.HasDelegate = false
	src.Delegate = ledger.Pubkey{}
	src.DelegatedAmount = 0
	return store(tx, source, src)
}

// Transfer moves amount tokens from source to destination. authority must
// be the source owner or its delegate, and must have signed. A delegate
// spends down its allowance and is cleared once it reaches zero.
func Transfer(tx *ledger.Txn, source, destination, authority ledger.Pubkey, amount uint64, seeds ...ledger.SignerSeeds) error {
	src, err := Load(tx, source)
	if err != nil {
		return err
	}
	dst, err := Load(tx, destination)
	if err != nil {
		return err
	}
	if src.State == StateFrozen || dst.State == StateFrozen {
		return ErrAccountFrozen
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}
	if src.Amount < amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", amount, source, src.Amount, ErrInsufficientTokens)
	}

	switch {
	case src.HasDelegate && src.Delegate == authority:
		if src.DelegatedAmount < amount {
			return fmt.Errorf("delegate allowance %d below %d: %w", src.DelegatedAmount, amount, ErrInsufficientTokens)
		}
		src.DelegatedAmount -= amount
		if src.DelegatedAmount == 0 {
			src.HasDelegate = false
			src.Delegate = ledger.Pubkey{}
		}
	case src.Owner == authority:
	default:
		return fmt.Errorf("authority %s for %s: %w", authority, source, ErrInvalidOwner)
	}
	if !tx.Authorized(authority, seeds...) {
		return fmt.Errorf("transfer authority %s: %w", authority, ledger.ErrMissingSignature)
	}

	if source == destination {
		return store(tx, source, src)
	}
	balance, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ledger.ErrArithmeticOverflow
	}
	src.Amount -= amount
	dst.Amount = balance
	if err := store(tx, source, src); err != nil {
		return err
	}
	return store(tx, destination, dst)
}
