package fixture

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// BankLamports is the balance of the wallet that funds everything a World
// creates.
const BankLamports = 1 << 60

// NamedKey returns the deterministic signing key of the wallet called name.
func NamedKey(name string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte("wallet:" + name))
	return ed25519.NewKeyFromSeed(seed[:])
}

// NamedWallet returns the public key of NamedKey(name).
func NamedWallet(name string) ledger.Pubkey {
	pub := NamedKey(name).Public().(ed25519.PublicKey)
	key, _ := ledger.PubkeyFromBytes(pub)
	return key
}

// World drives a ledger store on behalf of every wallet it knows, signing
// whatever it is asked to.
type World struct {
	Store *ledger.Store
	Bank  ledger.Pubkey
}

func NewWorld(ctx context.Context, store *ledger.Store) (*World, error) {
	w := &World{Store: store, Bank: NamedWallet("bank")}
	err := store.Execute(ctx, nil, func(tx *ledger.Txn) error {
		tx.SetAccount(w.Bank, &ledger.Account{Lamports: BankLamports, Owner: ledger.SystemProgramID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Run executes fn signed by the bank and signers.
func (w *World) Run(ctx context.Context, signers []ledger.Pubkey, fn func(tx *ledger.Txn) error) error {
	all := append([]ledger.Pubkey{w.Bank}, signers...)
	return w.Store.Execute(ctx, all, fn)
}

// Wallet returns the named wallet funded with lamports.
func (w *World) Wallet(ctx context.Context, name string, lamports uint64) (ledger.Pubkey, error) {
	key := NamedWallet(name)
	err := w.Run(ctx, nil, func(tx *ledger.Txn) error {
		return ledger.Transfer(tx, w.Bank, key, lamports)
	})
	return key, err
}

func (w *World) Marketplace(ctx context.Context, p MarketplaceParams) (*auctionhouse.Marketplace, error) {
	var house *auctionhouse.Marketplace
	err := w.Run(ctx, nil, func(tx *ledger.Txn) error {
		var err error
		house, err = CreateMarketplace(tx, w.Bank, p)
		return err
	})
	return house, err
}

// Delegate registers an auctioneer on house.
func (w *World) Delegate(ctx context.Context, house *auctionhouse.Marketplace, authority ledger.Pubkey, scopes ...auctionhouse.AuthorityScope) (*auctionhouse.Marketplace, ledger.Pubkey, error) {
	var (
		updated *auctionhouse.Marketplace
		record  ledger.Pubkey
	)
	err := w.Run(ctx, []ledger.Pubkey{house.Authority}, func(tx *ledger.Txn) error {
		if err := ledger.Transfer(tx, w.Bank, house.Authority, ledger.MinimumBalance(256)); err != nil {
			return err
		}
		var err error
		updated, record, err = DelegateAuctioneer(tx, house, authority, scopes...)
		return err
	})
	return updated, record, err
}

// Asset mints a new asset named name to owner.
func (w *World) Asset(ctx context.Context, name string, owner ledger.Pubkey, sellerFeeBps uint16, creators ...metadata.Creator) (Asset, error) {
	mint := NamedWallet("mint:" + name)
	var asset Asset
	err := w.Run(ctx, []ledger.Pubkey{mint}, func(tx *ledger.Txn) error {
		var err error
		asset, err = CreateAsset(tx, w.Bank, AssetParams{
			Mint:                 mint,
			Owner:                owner,
			Name:                 name,
			SellerFeeBasisPoints: sellerFeeBps,
			Creators:             creators,
		})
		return err
	})
	return asset, err
}

// Currency creates a fungible payment mint.
func (w *World) Currency(ctx context.Context, name string, decimals uint8) (ledger.Pubkey, error) {
	mint := NamedWallet("mint:" + name)
	err := w.Run(ctx, []ledger.Pubkey{mint}, func(tx *ledger.Txn) error {
		return CreateMint(tx, w.Bank, mint, w.Bank, decimals)
	})
	return mint, err
}

// MintTokens issues amount of a currency into owner's associated account,
// creating it when needed.
func (w *World) MintTokens(ctx context.Context, mint, owner ledger.Pubkey, amount uint64) (ledger.Pubkey, error) {
	ata, _ := token.AssociatedAddress(owner, mint)
	err := w.Run(ctx, nil, func(tx *ledger.Txn) error {
		if tx.Account(ata).DataIsEmpty() {
			if _, err := token.CreateAssociatedAccount(tx, w.Bank, owner, mint); err != nil {
				return err
			}
		}
		return token.MintTo(tx, mint, ata, w.Bank, amount)
	})
	return ata, err
}

// List places a sell order for asset.
func (w *World) List(ctx context.Context, house *auctionhouse.Marketplace, seller ledger.Pubkey, asset Asset, price, size uint64) (ledger.Pubkey, error) {
	var ts ledger.Pubkey
	err := w.Run(ctx, []ledger.Pubkey{seller}, func(tx *ledger.Txn) error {
		var err error
		ts, err = Sell(tx, house, seller, asset.TokenAccount, asset.Mint, price, size)
		return err
	})
	return ts, err
}

// Bid deposits price into the buyer's escrow and places a buy order.
func (w *World) Bid(ctx context.Context, house *auctionhouse.Marketplace, buyer ledger.Pubkey, asset Asset, price, size uint64, public bool) (ledger.Pubkey, error) {
	var ts ledger.Pubkey
	err := w.Run(ctx, []ledger.Pubkey{buyer}, func(tx *ledger.Txn) error {
		if price > 0 {
			if _, err := Deposit(tx, house, buyer, price); err != nil {
				return err
			}
		}
		var err error
		ts, err = Buy(tx, house, buyer, asset.TokenAccount, asset.Mint, price, size, public)
		return err
	})
	return ts, err
}
