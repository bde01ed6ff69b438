package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	dbm "github.com/tendermint/tm-db"
)

// GenesisAccount is the JSON form of one account in a genesis file.
type GenesisAccount struct {
	Address    Pubkey `json:"address"`
	Lamports   uint64 `json:"lamports"`
	Owner      Pubkey `json:"owner"`
	Executable bool   `json:"executable,omitempty"`
	Data       []byte `json:"data,omitempty"`
}

type Genesis struct {
	Accounts []GenesisAccount `json:"accounts"`
}

// Add records acct under key, replacing an earlier entry for the same key.
func (g *Genesis) Add(key Pubkey, acct *Account) {
	entry := GenesisAccount{
		Address:    key,
		Lamports:   acct.Lamports,
		Owner:      acct.Owner,
		Executable: acct.Executable,
		Data:       append([]byte(nil), acct.Data...),
	}
	for i := range g.Accounts {
		if g.Accounts[i].Address == key {
			g.Accounts[i] = entry
			return
		}
	}
	g.Accounts = append(g.Accounts, entry)
}

// Validate rejects duplicate addresses and accounts that would be garbage
// collected on load.
func (g *Genesis) Validate() error {
	seen := make(map[Pubkey]struct{}, len(g.Accounts))
	for i, a := range g.Accounts {
		if a.Address.IsZero() {
			return fmt.Errorf("account %d: address is required", i)
		}
		if _, ok := seen[a.Address]; ok {
			return fmt.Errorf("account %s: duplicate address", a.Address)
		}
		seen[a.Address] = struct{}{}
		if a.Lamports == 0 {
			return fmt.Errorf("account %s: zero lamports", a.Address)
		}
	}
	return nil
}

func ReadGenesis(path string) (*Genesis, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(bz, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return &g, nil
}

func (g *Genesis) Write(path string) error {
	sort.Slice(g.Accounts, func(i, j int) bool {
		return g.Accounts[i].Address.String() < g.Accounts[j].Address.String()
	})
	bz, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode genesis: %w", err)
	}
	if err := os.WriteFile(path, bz, 0o644); err != nil {
		return fmt.Errorf("failed to write genesis: %w", err)
	}
	return nil
}

// Load writes every genesis account into the store in one transaction.
func (s *Store) Load(ctx context.Context, g *Genesis) error {
	return s.Execute(ctx, nil, func(tx *Txn) error {
		for _, a := range g.Accounts {
			tx.SetAccount(a.Address, &Account{
				Lamports:   a.Lamports,
				Owner:      a.Owner,
				Executable: a.Executable,
				Data:       a.Data,
			})
		}
		return nil
	})
}

// Snapshot dumps the committed state as a genesis document.
func (s *Store) Snapshot() (*Genesis, error) {
	g := &Genesis{}
	err := s.ForEach(func(key Pubkey, acct *Account) bool {
		g.Add(key, acct)
		return true
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Backend names accepted by Open.
const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
)

// Open creates a store on the named tm-db backend. dir is ignored for memdb.
func Open(backend, dir string) (*Store, error) {
	switch backend {
	case "", BackendMemDB:
		return NewMemStore(), nil
	case BackendGoLevelDB:
		db, err := dbm.NewDB("ledger", dbm.GoLevelDBBackend, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger database: %w", err)
		}
		return NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
