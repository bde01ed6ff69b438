package ledger

import (
	"errors"
	"fmt"

	"github.com/fardream/go-bcs/bcs"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrOwnerMismatch        = errors.New("account owner mismatch")
	ErrAccountAlreadyInUse  = errors.New("account already in use")
	ErrInvalidAccountData   = errors.New("invalid account data")
	ErrArithmeticOverflow   = errors.New("arithmetic overflow")
	ErrAccountNotFound      = errors.New("account not found")
	ErrTransactionCompleted = errors.New("transaction already completed")
)

// SystemProgramID owns every plain wallet account.
var SystemProgramID = MustPubkeyFromBase58("11111111111111111111111111111111")

type Account struct {
	Lamports   uint64
	Owner      Pubkey
	Executable bool
	Data       []byte
}

func (a *Account) DataIsEmpty() bool {
	return len(a.Data) == 0
}

// Exists reports whether the account would survive commit.
func (a *Account) Exists() bool {
	return a.Lamports > 0 || len(a.Data) > 0
}

func (a *Account) clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

func encodeAccount(a *Account) ([]byte, error) {
	bz, err := bcs.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	return bz, nil
}

func decodeAccount(bz []byte) (*Account, error) {
	var a Account
	if _, err := bcs.Unmarshal(bz, &a); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return &a, nil
}

// Rent parameters used to size new accounts.
const (
	lamportsPerByteYear     = 3480
	exemptionThresholdYears = 2
	accountStorageOverhead  = 128
)

// MinimumBalance returns the rent-exempt balance for an account holding
// dataLen bytes.
func MinimumBalance(dataLen uint64) uint64 {
	return (dataLen + accountStorageOverhead) * lamportsPerByteYear * exemptionThresholdYears
}
