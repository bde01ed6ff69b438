package ledger

// Txn is the working set of one Store.Execute call. Accounts returned by
// Account are live: changes to them are committed with the transaction.
type Txn struct {
	store    *Store
	signers  map[Pubkey]bool
	accounts map[Pubkey]*Account
	err      error
	done     bool
}

func newTxn(s *Store, signers []Pubkey) *Txn {
	tx := &Txn{
		store:    s,
		signers:  make(map[Pubkey]bool, len(signers)),
		accounts: make(map[Pubkey]*Account),
	}
	for _, k := range signers {
		tx.signers[k] = true
	}
	return tx
}

// Account returns the working copy of key. An address nobody has funded
// reads as an empty system account, the same as on chain.
func (t *Txn) Account(key Pubkey) *Account {
	if acct, ok := t.accounts[key]; ok {
		return acct
	}
	acct, err := t.store.load(key)
	if err != nil && t.err == nil {
		t.err = err
	}
	if acct == nil {
		acct = &Account{Owner: SystemProgramID}
	}
	t.accounts[key] = acct
	return acct
}

// Err reports the first storage error hit while loading accounts.
func (t *Txn) Err() error {
	return t.err
}

// SetAccount replaces key wholesale. Used to seed a ledger.
func (t *Txn) SetAccount(key Pubkey, acct *Account) {
	t.accounts[key] = acct.clone()
}

// IsSigner reports whether key signed the transaction.
func (t *Txn) IsSigner(key Pubkey) bool {
	return t.signers[key]
}

// Authorized reports whether key signed the transaction or is the derived
// address of one of the signer seed sets.
func (t *Txn) Authorized(key Pubkey, seeds ...SignerSeeds) bool {
	if t.signers[key] {
		return true
	}
	for _, s := range seeds {
		addr, err := s.Address()
		if err == nil && addr == key {
			return true
		}
	}
	return false
}
