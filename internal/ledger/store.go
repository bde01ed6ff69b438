package ledger

import (
	"context"
	"fmt"
	"sync"

	dbm "github.com/tendermint/tm-db"
)

var accountPrefix = []byte("acct/")

func accountKey(key Pubkey) []byte {
	return append(append([]byte{}, accountPrefix...), key[:]...)
}

// Store holds every account of the ledger. Execute runs one transaction at a
// time; writes are buffered in the transaction and land in a single batch.
type Store struct {
	mtx sync.RWMutex
	db  dbm.DB
}

func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

// NewMemStore is a store backed by an in-memory database.
func NewMemStore() *Store {
	return NewStore(dbm.NewMemDB())
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Account returns a copy of the committed account, or ErrAccountNotFound.
func (s *Store) Account(key Pubkey) (*Account, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	acct, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrAccountNotFound)
	}
	return acct, nil
}

// ForEach visits committed accounts in key order until fn returns false.
func (s *Store) ForEach(fn func(Pubkey, *Account) bool) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	end := append(append([]byte{}, accountPrefix[:len(accountPrefix)-1]...), accountPrefix[len(accountPrefix)-1]+1)
	itr, err := s.db.Iterator(accountPrefix, end)
	if err != nil {
		return fmt.Errorf("failed to open account iterator: %w", err)
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		key, err := PubkeyFromBytes(itr.Key()[len(accountPrefix):])
		if err != nil {
			return err
		}
		acct, err := decodeAccount(itr.Value())
		if err != nil {
			return fmt.Errorf("account %s: %w", key, err)
		}
		if !fn(key, acct) {
			break
		}
	}
	return itr.Error()
}

// Execute runs fn inside one transaction signed by signers. If fn returns an
// error nothing it wrote is kept. Accounts left without lamports are removed
// on commit.
func (s *Store) Execute(ctx context.Context, signers []Pubkey, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	tx := newTxn(s, signers)
	if err := fn(tx); err != nil {
		tx.done = true
		return err
	}
	return s.commit(tx)
}

// View runs fn against a transaction that is always discarded. It may run
// concurrently with other views but not with Execute.
func (s *Store) View(ctx context.Context, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	tx := newTxn(s, nil)
	defer func() { tx.done = true }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Err()
}

func (s *Store) commit(tx *Txn) error {
	if tx.done {
		return ErrTransactionCompleted
	}
	tx.done = true

	batch := s.db.NewBatch()
	defer batch.Close()

	for key, acct := range tx.accounts {
		if acct.Lamports == 0 {
			if err := batch.Delete(accountKey(key)); err != nil {
				return fmt.Errorf("failed to stage delete of %s: %w", key, err)
			}
			continue
		}
		bz, err := encodeAccount(acct)
		if err != nil {
			return err
		}
		if err := batch.Set(accountKey(key), bz); err != nil {
			return fmt.Errorf("failed to stage write of %s: %w", key, err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// load must be called with the lock held. A missing account returns nil.
func (s *Store) load(key Pubkey) (*Account, error) {
	bz, err := s.db.Get(accountKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", key, err)
	}
	if bz == nil {
		return nil, nil
	}
	return decodeAccount(bz)
}
