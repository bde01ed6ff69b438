// Package token is the trusted fungible-token program of the host ledger:
// mint and token-account layouts, transfers under owner or delegate
// authority, and associated token accounts.
package token

import (
	"errors"
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/leafsii/auction-house/internal/ledger"
)

var (
	ProgramID           = ledger.MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedProgramID = ledger.MustPubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWW8JpPqcP4N7pKw")
	// NativeMint marks payment in the ledger's native currency.
	NativeMint = ledger.MustPubkeyFromBase58("So11111111111111111111111111111111111111112")
)

// On-ledger sizes, kept at the canonical values so rent matches.
const (
	AccountSize = 165
	MintSize    = 82
)

var (
	ErrUninitialized       = errors.New("token account is not initialized")
	ErrAlreadyInitialized  = errors.New("token account is already initialized")
	ErrMintMismatch        = errors.New("account not associated with this mint")
	ErrAccountFrozen       = errors.New("token account is frozen")
	ErrInvalidOwner        = errors.New("token account owner does not match")
	ErrNotTokenAccount     = errors.New("account is not owned by the token program")
	ErrInsufficientTokens  = errors.New("insufficient token funds")
	ErrInvalidAssociated   = errors.New("associated token address does not match seed derivation")
	ErrMintAuthorityDenied = errors.New("mint authority does not match")
)

type AccountState uint8

const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// Account is the layout of a token account.
type Account struct {
	Mint            ledger.Pubkey
	Owner           ledger.Pubkey
	Amount          uint64
	HasDelegate     bool
	Delegate        ledger.Pubkey
	State           AccountState
	IsNative        bool
	DelegatedAmount uint64
}

// DelegateKey returns the delegate and whether one is set.
func (a *Account) DelegateKey() (ledger.Pubkey, bool) {
	return a.Delegate, a.HasDelegate
}

type Mint struct {
	MintAuthority ledger.Pubkey
	Supply        uint64
	Decimals      uint8
	IsInitialized bool
}

func unpack(data []byte, v interface{}) error {
	if _, err := bcs.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode token record: %w", err)
	}
	return nil
}

func pack(v interface{}, data []byte) error {
	bz, err := bcs.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}
	if len(bz) > len(data) {
		return fmt.Errorf("record of %d bytes does not fit in %d: %w", len(bz), len(data), ledger.ErrInvalidAccountData)
	}
	copy(data, bz)
	for i := len(bz); i < len(data); i++ {
		data[i] = 0
	}
	return nil
}

// UnpackAccount decodes an initialized token account.
func UnpackAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("token account is %d bytes: %w", len(data), ledger.ErrInvalidAccountData)
	}
	var a Account
	if err := unpack(data, &a); err != nil {
		return nil, err
	}
	if a.State == StateUninitialized {
		return nil, ErrUninitialized
	}
	return &a, nil
}

func PackAccount(a *Account, data []byte) error {
	return pack(a, data)
}

func UnpackMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("mint is %d bytes: %w", len(data), ledger.ErrInvalidAccountData)
	}
	var m Mint
	if err := unpack(data, &m); err != nil {
		return nil, err
	}
	if !m.IsInitialized {
		return nil, ErrUninitialized
	}
	return &m, nil
}

func PackMint(m *Mint, data []byte) error {
	return pack(m, data)
}

// Load reads the token account at key, which must be owned by the token
// program.
func Load(tx *ledger.Txn, key ledger.Pubkey) (*Account, error) {
	acct := tx.Account(key)
	if acct.Owner != ProgramID {
		return nil, fmt.Errorf("%s: %w", key, ErrNotTokenAccount)
	}
	ta, err := UnpackAccount(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return ta, nil
}

func store(tx *ledger.Txn, key ledger.Pubkey, ta *Account) error {
	return PackAccount(ta, tx.Account(key).Data)
}
