package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsii/auction-house/internal/ledger"
)

func wallet(t *testing.T) ledger.Pubkey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ledger.PubkeyFromBytes(pub)
	require.NoError(t, err)
	return key
}

type env struct {
	store     *ledger.Store
	payer     ledger.Pubkey
	mint      ledger.Pubkey
	authority ledger.Pubkey
}

func setup(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:     ledger.NewMemStore(),
		payer:     wallet(t),
		mint:      wallet(t),
		authority: wallet(t),
	}
	require.NoError(t, e.store.Execute(context.Background(), []ledger.Pubkey{e.payer, e.mint}, func(tx *ledger.Txn) error {
		tx.Account(e.payer).Lamports = 1_000_000_000
		if err := ledger.CreateAccount(tx, e.payer, e.mint, ledger.MinimumBalance(MintSize), MintSize, ProgramID); err != nil {
			return err
		}
		return InitializeMint(tx, e.mint, e.authority, 0)
	}))
	return e
}

func (e *env) exec(t *testing.T, signers []ledger.Pubkey, fn func(tx *ledger.Txn) error) error {
	t.Helper()
	return e.store.Execute(context.Background(), append(signers, e.payer), fn)
}

func (e *env) fundedATA(t *testing.T, owner ledger.Pubkey, amount uint64) ledger.Pubkey {
	t.Helper()
	var ata ledger.Pubkey
	require.NoError(t, e.exec(t, []ledger.Pubkey{e.authority}, func(tx *ledger.Txn) error {
		var err error
		ata, err = CreateAssociatedAccount(tx, e.payer, owner, e.mint)
		if err != nil {
			return err
		}
		if amount == 0 {
			return nil
		}
		return MintTo(tx, e.mint, ata, e.authority, amount)
	}))
	return ata
}

func (e *env) balance(t *testing.T, key ledger.Pubkey) *Account {
	t.Helper()
	acct, err := e.store.Account(key)
	require.NoError(t, err)
	ta, err := UnpackAccount(acct.Data)
	require.NoError(t, err)
	return ta
}

func TestAssociatedAccountLifecycle(t *testing.T) {
	e := setup(t)
	owner := wallet(t)
	ata := e.fundedATA(t, owner, 5)

	want, _ := AssociatedAddress(owner, e.mint)
	assert.Equal(t, want, ata)

	ta := e.balance(t, ata)
	assert.Equal(t, owner, ta.Owner)
	assert.Equal(t, e.mint, ta.Mint)
	assert.Equal(t, uint64(5), ta.Amount)
	assert.False(t, ta.HasDelegate)

	acct, err := e.store.Account(ata)
	require.NoError(t, err)
	assert.Equal(t, ledger.MinimumBalance(AccountSize), acct.Lamports)

	err = e.exec(t, nil, func(tx *ledger.Txn) error {
		_, err := CreateAssociatedAccount(tx, e.payer, owner, e.mint)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrAccountAlreadyInUse)

	err = e.exec(t, nil, func(tx *ledger.Txn) error {
		_, err := AssertAssociated(tx, ata, wallet(t), e.mint)
		return err
	})
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

func TestTransferAuthority(t *testing.T) {
	owner, delegate, stranger := wallet(t), wallet(t), wallet(t)

	tests := []struct {
		name      string
		approve   uint64
		authority ledger.Pubkey
		signers   []ledger.Pubkey
		amount    uint64
		wantErr   error
	}{
		{name: "owner", authority: owner, signers: []ledger.Pubkey{owner}, amount: 3},
		{name: "owner unsigned", authority: owner, amount: 3, wantErr: ledger.ErrMissingSignature},
		{name: "delegate", approve: 3, authority: delegate, signers: []ledger.Pubkey{delegate}, amount: 3},
		{name: "delegate over allowance", approve: 1, authority: delegate, signers: []ledger.Pubkey{delegate}, amount: 3, wantErr: ErrInsufficientTokens},
		{name: "stranger", authority: stranger, signers: []ledger.Pubkey{stranger}, amount: 1, wantErr: ErrInvalidOwner},
		{name: "overdraw", authority: owner, signers: []ledger.Pubkey{owner}, amount: 11, wantErr: ErrInsufficientTokens},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			src := e.fundedATA(t, owner, 10)
			dst := e.fundedATA(t, wallet(t), 0)
			if tt.approve > 0 {
				require.NoError(t, e.exec(t, []ledger.Pubkey{owner}, func(tx *ledger.Txn) error {
					return Approve(tx, src, delegate, owner, tt.approve)
				}))
			}

			err := e.exec(t, tt.signers, func(tx *ledger.Txn) error {
				return Transfer(tx, src, dst, tt.authority, tt.amount)
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, uint64(10), e.balance(t, src).Amount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(10)-tt.amount, e.balance(t, src).Amount)
			assert.Equal(t, tt.amount, e.balance(t, dst).Amount)
			if tt.approve > 0 {
				assert.False(t, e.balance(t, src).HasDelegate, "exhausted delegate is cleared")
			}
		})
	}
}

func TestTransferDerivedDelegate(t *testing.T) {
	e := setup(t)
	owner := wallet(t)
	program := wallet(t)
	seeds := [][]byte{[]byte("signer")}
	pda, bump := ledger.FindProgramAddress(seeds, program)
	signer := ledger.SignerSeeds{ProgramID: program, Seeds: append(seeds, []byte{bump})}

	src := e.fundedATA(t, owner, 1)
	dst := e.fundedATA(t, wallet(t), 0)
	require.NoError(t, e.exec(t, []ledger.Pubkey{owner}, func(tx *ledger.Txn) error {
		return Approve(tx, src, pda, owner, 1)
	}))
	require.NoError(t, e.exec(t, nil, func(tx *ledger.Txn) error {
		return Transfer(tx, src, dst, pda, 1, signer)
	}))
	assert.Equal(t, uint64(1), e.balance(t, dst).Amount)
}

func TestUnpackRejectsBadLayout(t *testing.T) {
	_, err := UnpackAccount(make([]byte, 10))
	assert.ErrorIs(t, err, ledger.ErrInvalidAccountData)
	_, err = UnpackAccount(make([]byte, AccountSize))
	assert.ErrorIs(t, err, ErrUninitialized)
	_, err = UnpackMint(make([]byte, MintSize))
	assert.ErrorIs(t, err, ErrUninitialized)
}
