package auctionhouse

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/token"
)

const discriminatorSize = 8

func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorSize]
}

var (
	auctionHouseDiscriminator = discriminator("AuctionHouse")
	auctioneerDiscriminator   = discriminator("Auctioneer")
)

// AuctionHouse is the configuration record of one marketplace.
type AuctionHouse struct {
	AuctionHouseFeeAccount        ledger.Pubkey `json:"auction_house_fee_account"`
	AuctionHouseTreasury          ledger.Pubkey `json:"auction_house_treasury"`
	TreasuryWithdrawalDestination ledger.Pubkey `json:"treasury_withdrawal_destination"`
	FeeWithdrawalDestination      ledger.Pubkey `json:"fee_withdrawal_destination"`
	TreasuryMint                  ledger.Pubkey `json:"treasury_mint"`
	Authority                     ledger.Pubkey `json:"authority"`
	Creator                       ledger.Pubkey `json:"creator"`
	Bump                          uint8         `json:"bump"`
	TreasuryBump                  uint8         `json:"treasury_bump"`
	FeePayerBump                  uint8         `json:"fee_payer_bump"`
	SellerFeeBasisPoints          uint16        `json:"seller_fee_basis_points"`
	RequiresSignOff               bool          `json:"requires_sign_off"`
	CanChangeSalePrice            bool          `json:"can_change_sale_price"`
	EscrowPaymentBump             uint8         `json:"escrow_payment_bump"`
	HasAuctioneer                 bool          `json:"has_auctioneer"`
	AuctioneerAddress             ledger.Pubkey `json:"auctioneer_address"`
}

// AuctioneerRecord is the scope record of an auctioneer delegated by an
// auction house.
type AuctioneerRecord struct {
	AuctioneerAuthority ledger.Pubkey    `json:"auctioneer_authority"`
	AuctionHouse        ledger.Pubkey    `json:"auction_house"`
	Bump                uint8            `json:"bump"`
	Scopes              [ScopeCount]bool `json:"scopes"`
}

func (a *AuctioneerRecord) HasScope(s AuthorityScope) bool {
	return int(s) < len(a.Scopes) && a.Scopes[s]
}

func encodeRecord(disc []byte, v interface{}) ([]byte, error) {
	bz, err := bcs.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return append(append([]byte{}, disc...), bz...), nil
}

func decodeRecord(disc, data []byte, v interface{}) error {
	if len(data) < discriminatorSize || !bytes.Equal(data[:discriminatorSize], disc) {
		return ErrInvalidAccountData.With("unexpected account discriminator")
	}
	if _, err := bcs.Unmarshal(data[discriminatorSize:], v); err != nil {
		return ErrInvalidAccountData.Wrap(err)
	}
	return nil
}

func EncodeAuctionHouse(h *AuctionHouse) ([]byte, error) {
	return encodeRecord(auctionHouseDiscriminator, h)
}

func DecodeAuctionHouse(data []byte) (*AuctionHouse, error) {
	var h AuctionHouse
	if err := decodeRecord(auctionHouseDiscriminator, data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func EncodeAuctioneer(a *AuctioneerRecord) ([]byte, error) {
	return encodeRecord(auctioneerDiscriminator, a)
}

func DecodeAuctioneer(data []byte) (*AuctioneerRecord, error) {
	var a AuctioneerRecord
	if err := decodeRecord(auctioneerDiscriminator, data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// IsAuctionHouse reports whether data holds an auction house record.
func IsAuctionHouse(data []byte) bool {
	return len(data) >= discriminatorSize && bytes.Equal(data[:discriminatorSize], auctionHouseDiscriminator)
}

// Marketplace is an auction house configuration together with its address.
// The engine takes it as an explicit value rather than reading ambient
// state, and checks it against the ledger before use.
type Marketplace struct {
	Address ledger.Pubkey `json:"address"`
	AuctionHouse
}

// IsNative reports whether the marketplace settles in the native currency.
func (m *Marketplace) IsNative() bool {
	return m.TreasuryMint == token.NativeMint
}

// LoadMarketplace reads the auction house record stored at address.
func LoadMarketplace(tx *ledger.Txn, address ledger.Pubkey) (*Marketplace, error) {
	acct := tx.Account(address)
	if acct.Owner != ProgramID {
		return nil, ErrAuthorizationMismatch.With("%s is not owned by the auction house program", address)
	}
	h, err := DecodeAuctionHouse(acct.Data)
	if err != nil {
		return nil, err
	}
	return &Marketplace{Address: address, AuctionHouse: *h}, nil
}

// verify checks that m is the canonical marketplace for its creator and
// treasury mint, that the ledger holds exactly this record, and that the fee
// account and treasury are its derived accounts.
func (m *Marketplace) verify(tx *ledger.Txn) error {
	want, err := ledger.CreateProgramAddress(m.signerSeeds().Seeds, ProgramID)
	if err != nil || want != m.Address {
		return ErrAuthorizationMismatch.With("auction house %s is not derived from its creator and treasury mint", m.Address)
	}
	stored, err := LoadMarketplace(tx, m.Address)
	if err != nil {
		return err
	}
	if stored.AuctionHouse != m.AuctionHouse {
		return ErrAuthorizationMismatch.With("auction house %s differs from the ledger record", m.Address)
	}
	fee, err := ledger.CreateProgramAddress(m.feeAccountSeeds().Seeds, ProgramID)
	if err != nil || fee != m.AuctionHouseFeeAccount {
		return ErrAuthorizationMismatch.With("fee account of %s", m.Address)
	}
	treasury, err := ledger.CreateProgramAddress(
		[][]byte{[]byte(Prefix), m.Address[:], []byte(Treasury), {m.TreasuryBump}}, ProgramID)
	if err != nil || treasury != m.AuctionHouseTreasury {
		return ErrAuthorizationMismatch.With("treasury of %s", m.Address)
	}
	return nil
}

// signerSeeds let the program sign as the auction house itself.
func (m *Marketplace) signerSeeds() ledger.SignerSeeds {
	return ledger.SignerSeeds{
		ProgramID: ProgramID,
		Seeds:     [][]byte{[]byte(Prefix), m.Creator[:], m.TreasuryMint[:], {m.Bump}},
	}
}

func (m *Marketplace) feeAccountSeeds() ledger.SignerSeeds {
	return ledger.SignerSeeds{
		ProgramID: ProgramID,
		Seeds:     [][]byte{[]byte(Prefix), m.Address[:], []byte(FeePayer), {m.FeePayerBump}},
	}
}
