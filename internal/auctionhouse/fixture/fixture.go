// Package fixture writes the ledger records the collaborators of the
// settlement engine would have written: marketplaces, assets, listings,
// bids, escrow deposits and auctioneer delegations. It backs tests, the
// demo genesis and local tooling.
package fixture

import (
	"fmt"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// DefaultFeeAccountFunding is what a new marketplace fee account starts
// with so it can pay for receiving accounts.
const DefaultFeeAccountFunding = 1_000_000_000

type MarketplaceParams struct {
	Creator              ledger.Pubkey
	Authority            ledger.Pubkey
	TreasuryMint         ledger.Pubkey
	SellerFeeBasisPoints uint16
	RequiresSignOff      bool
	CanChangeSalePrice   bool
	FeeAccountFunding    uint64
}

func createRecord(tx *ledger.Txn, payer, address ledger.Pubkey, data []byte, seeds ledger.SignerSeeds) error {
	size := uint64(len(data))
	if err := ledger.CreateAccount(tx, payer, address, ledger.MinimumBalance(size), size, auctionhouse.ProgramID, seeds); err != nil {
		return err
	}
	copy(tx.Account(address).Data, data)
	return nil
}

// CreateMarketplace writes an auction house record with its fee account
// funded and, for a token treasury mint, its treasury token account.
func CreateMarketplace(tx *ledger.Txn, payer ledger.Pubkey, p MarketplaceParams) (*auctionhouse.Marketplace, error) {
	if p.SellerFeeBasisPoints > auctionhouse.MaxBasisPoints {
		return nil, fmt.Errorf("seller fee %d above %d basis points", p.SellerFeeBasisPoints, auctionhouse.MaxBasisPoints)
	}
	addr, bump := auctionhouse.AuctionHouseAddress(p.Creator, p.TreasuryMint)
	fee, feeBump := auctionhouse.FeeAccountAddress(addr)
	treasury, treasuryBump := auctionhouse.TreasuryAddress(addr)

	house := &auctionhouse.Marketplace{
		Address: addr,
		AuctionHouse: auctionhouse.AuctionHouse{
			AuctionHouseFeeAccount:        fee,
			AuctionHouseTreasury:          treasury,
			TreasuryWithdrawalDestination: p.Authority,
			FeeWithdrawalDestination:      p.Authority,
			TreasuryMint:                  p.TreasuryMint,
			Authority:                     p.Authority,
			Creator:                       p.Creator,
			Bump:                          bump,
			TreasuryBump:                  treasuryBump,
			FeePayerBump:                  feeBump,
			SellerFeeBasisPoints:          p.SellerFeeBasisPoints,
			RequiresSignOff:               p.RequiresSignOff,
			CanChangeSalePrice:            p.CanChangeSalePrice,
		},
	}
	bz, err := auctionhouse.EncodeAuctionHouse(&house.AuctionHouse)
	if err != nil {
		return nil, err
	}
	seeds := auctionhouse.SignerSeedsFor(auctionhouse.AuctionHouseSeeds(p.Creator, p.TreasuryMint), bump)
	if err := createRecord(tx, payer, addr, bz, seeds); err != nil {
		return nil, fmt.Errorf("failed to create auction house: %w", err)
	}

	funding := p.FeeAccountFunding
	if funding == 0 {
		funding = DefaultFeeAccountFunding
	}
	if err := ledger.Transfer(tx, payer, fee, funding); err != nil {
		return nil, fmt.Errorf("failed to fund fee account: %w", err)
	}

	if p.TreasuryMint != token.NativeMint {
		treasurySeeds := auctionhouse.SignerSeedsFor([][]byte{[]byte(auctionhouse.Prefix), addr[:], []byte(auctionhouse.Treasury)}, treasuryBump)
		if err := ledger.CreateAccount(tx, payer, treasury, ledger.MinimumBalance(token.AccountSize), token.AccountSize, token.ProgramID, treasurySeeds); err != nil {
			return nil, fmt.Errorf("failed to create treasury: %w", err)
		}
		if err := token.InitializeAccount(tx, treasury, p.TreasuryMint, addr); err != nil {
			return nil, fmt.Errorf("failed to initialize treasury: %w", err)
		}
	}
	return house, nil
}

// UpdateMarketplace rewrites the stored record of house.
func UpdateMarketplace(tx *ledger.Txn, house *auctionhouse.Marketplace) error {
	if !tx.IsSigner(house.Authority) {
		return fmt.Errorf("auction house authority %s: %w", house.Authority, ledger.ErrMissingSignature)
	}
	bz, err := auctionhouse.EncodeAuctionHouse(&house.AuctionHouse)
	if err != nil {
		return err
	}
	acct := tx.Account(house.Address)
	if len(acct.Data) != len(bz) {
		return fmt.Errorf("auction house %s: %w", house.Address, ledger.ErrInvalidAccountData)
	}
	copy(acct.Data, bz)
	return nil
}

// DelegateAuctioneer registers authority as the auctioneer of house with the
// given scopes and returns the updated marketplace and the scope record.
func DelegateAuctioneer(tx *ledger.Txn, house *auctionhouse.Marketplace, authority ledger.Pubkey, scopes ...auctionhouse.AuthorityScope) (*auctionhouse.Marketplace, ledger.Pubkey, error) {
	record, bump := auctionhouse.AuctioneerAddress(house.Address, authority)
	rec := &auctionhouse.AuctioneerRecord{
		AuctioneerAuthority: authority,
		AuctionHouse:        house.Address,
		Bump:                bump,
	}
	for _, s := range scopes {
		if int(s) >= auctionhouse.ScopeCount {
			return nil, ledger.Pubkey{}, fmt.Errorf("unknown scope %d", s)
		}
		rec.Scopes[s] = true
	}
	bz, err := auctionhouse.EncodeAuctioneer(rec)
	if err != nil {
		return nil, ledger.Pubkey{}, err
	}
	seeds := auctionhouse.SignerSeedsFor(auctionhouse.AuctioneerSeeds(house.Address, authority), bump)
	if err := createRecord(tx, house.Authority, record, bz, seeds); err != nil {
		return nil, ledger.Pubkey{}, fmt.Errorf("failed to create auctioneer record: %w", err)
	}

	updated := *house
	updated.HasAuctioneer = true
	updated.AuctioneerAddress = record
	if err := UpdateMarketplace(tx, &updated); err != nil {
		return nil, ledger.Pubkey{}, err
	}
	return &updated, record, nil
}

// CreateMint allocates and initializes mint. The mint key must sign.
func CreateMint(tx *ledger.Txn, payer, mint, authority ledger.Pubkey, decimals uint8) error {
	if err := ledger.CreateAccount(tx, payer, mint, ledger.MinimumBalance(token.MintSize), token.MintSize, token.ProgramID); err != nil {
		return fmt.Errorf("failed to create mint: %w", err)
	}
	return token.InitializeMint(tx, mint, authority, decimals)
}

// AssetParams describes a single-unit asset with royalty metadata.
type AssetParams struct {
	Mint                 ledger.Pubkey
	Owner                ledger.Pubkey
	Name                 string
	SellerFeeBasisPoints uint16
	Creators             []metadata.Creator
	// Supply defaults to one unit.
	Supply uint64
}

// Asset is what CreateAsset wrote.
type Asset struct {
	Mint         ledger.Pubkey
	TokenAccount ledger.Pubkey
	Metadata     ledger.Pubkey
}

// CreateAsset mints an asset into its owner's associated account and
// attaches metadata. payer is the mint and update authority.
func CreateAsset(tx *ledger.Txn, payer ledger.Pubkey, p AssetParams) (Asset, error) {
	if err := CreateMint(tx, payer, p.Mint, payer, 0); err != nil {
		return Asset{}, err
	}
	ata, err := token.CreateAssociatedAccount(tx, payer, p.Owner, p.Mint)
	if err != nil {
		return Asset{}, err
	}
	supply := p.Supply
	if supply == 0 {
		supply = 1
	}
	if err := token.MintTo(tx, p.Mint, ata, payer, supply); err != nil {
		return Asset{}, fmt.Errorf("failed to mint asset: %w", err)
	}
	md, err := metadata.Create(tx, payer, &metadata.Metadata{
		UpdateAuthority:      payer,
		Mint:                 p.Mint,
		Name:                 p.Name,
		SellerFeeBasisPoints: p.SellerFeeBasisPoints,
		Creators:             p.Creators,
		IsMutable:            true,
	})
	if err != nil {
		return Asset{}, err
	}
	return Asset{Mint: p.Mint, TokenAccount: ata, Metadata: md}, nil
}

func createTradeState(tx *ledger.Txn, payer, address ledger.Pubkey, seeds [][]byte, bump uint8) error {
	signer := auctionhouse.SignerSeedsFor(seeds, bump)
	rent := ledger.MinimumBalance(auctionhouse.TradeStateSize)
	if err := ledger.CreateAccount(tx, payer, address, rent, auctionhouse.TradeStateSize, auctionhouse.ProgramID, signer); err != nil {
		return fmt.Errorf("failed to create trade state: %w", err)
	}
	tx.Account(address).Data[0] = bump
	return nil
}

// Sell lists size units held in tokenAccount at price: the seller approves
// the program's custodial signer and a seller trade state is written under
// house. A listing made through an auctioneer uses auctionhouse.AuctionPrice.
func Sell(tx *ledger.Txn, house *auctionhouse.Marketplace, seller, tokenAccount, mint ledger.Pubkey, price, size uint64) (ledger.Pubkey, error) {
	signer, _ := auctionhouse.ProgramAsSignerAddress()
	if err := token.Approve(tx, tokenAccount, signer, seller, size); err != nil {
		return ledger.Pubkey{}, fmt.Errorf("failed to approve program as signer: %w", err)
	}
	seeds := auctionhouse.TradeStateSeeds(seller, house.Address, tokenAccount, house.TreasuryMint, mint, price, size)
	address, bump := ledger.FindProgramAddress(seeds, auctionhouse.ProgramID)
	if err := createTradeState(tx, seller, address, seeds, bump); err != nil {
		return ledger.Pubkey{}, err
	}
	return address, nil
}

// Buy writes a buyer trade state. A public bid is not bound to tokenAccount.
func Buy(tx *ledger.Txn, house *auctionhouse.Marketplace, buyer, tokenAccount, mint ledger.Pubkey, price, size uint64, public bool) (ledger.Pubkey, error) {
	if !tx.IsSigner(buyer) {
		return ledger.Pubkey{}, fmt.Errorf("buyer %s: %w", buyer, ledger.ErrMissingSignature)
	}
	seeds := auctionhouse.TradeStateSeeds(buyer, house.Address, tokenAccount, house.TreasuryMint, mint, price, size)
	if public {
		seeds = auctionhouse.PublicTradeStateSeeds(buyer, house.Address, house.TreasuryMint, mint, price, size)
	}
	address, bump := ledger.FindProgramAddress(seeds, auctionhouse.ProgramID)
	if err := createTradeState(tx, buyer, address, seeds, bump); err != nil {
		return ledger.Pubkey{}, err
	}
	return address, nil
}

// Deposit moves amount from the buyer into its escrow under house. For a
// token marketplace the escrow token account is created on first use and
// funded from the buyer's associated account.
func Deposit(tx *ledger.Txn, house *auctionhouse.Marketplace, buyer ledger.Pubkey, amount uint64) (ledger.Pubkey, error) {
	escrow, bump := auctionhouse.EscrowAddress(house.Address, buyer)
	if house.IsNative() {
		if err := ledger.Transfer(tx, buyer, escrow, amount); err != nil {
			return ledger.Pubkey{}, fmt.Errorf("failed to deposit: %w", err)
		}
		return escrow, nil
	}

	if tx.Account(escrow).DataIsEmpty() {
		seeds := auctionhouse.SignerSeedsFor(auctionhouse.EscrowSeeds(house.Address, buyer), bump)
		if err := ledger.CreateAccount(tx, buyer, escrow, ledger.MinimumBalance(token.AccountSize), token.AccountSize, token.ProgramID, seeds); err != nil {
			return ledger.Pubkey{}, fmt.Errorf("failed to create escrow: %w", err)
		}
		if err := token.InitializeAccount(tx, escrow, house.TreasuryMint, house.Address); err != nil {
			return ledger.Pubkey{}, fmt.Errorf("failed to initialize escrow: %w", err)
		}
	}
	source, _ := token.AssociatedAddress(buyer, house.TreasuryMint)
	if err := token.Transfer(tx, source, escrow, buyer, amount); err != nil {
		return ledger.Pubkey{}, fmt.Errorf("failed to deposit: %w", err)
	}
	return escrow, nil
}
