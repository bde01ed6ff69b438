// Package metadata holds the asset metadata record read by the settlement
// engine: the royalty rate and the creators that share it.
package metadata

import (
	"errors"
	"fmt"

	"github.com/fardream/go-bcs/bcs"

	"github.com/leafsii/auction-house/internal/ledger"
)

var ProgramID = ledger.MustPubkeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

const (
	Prefix         = "metadata"
	MaxCreators    = 5
	MaxBasisPoints = 10000
	keyMetadataV1  = 4
)

var (
	ErrEmpty               = errors.New("metadata account is empty")
	ErrWrongKey            = errors.New("account is not a metadata record")
	ErrInvalidBasisPoints  = errors.New("basis points cannot exceed 10000")
	ErrTooManyCreators     = errors.New("too many creators")
	ErrShareTotalMismatch  = errors.New("creator shares must add up to 10000")
	ErrDuplicateCreator    = errors.New("duplicate creator address")
	ErrMintMismatch        = errors.New("metadata mint does not match")
	ErrDerivationMismatch  = errors.New("metadata address does not match derivation")
	ErrUpdateAuthorityDeny = errors.New("update authority must sign")
)

// Creator shares the royalty. Share is in basis points of the royalty total.
type Creator struct {
	Address  ledger.Pubkey `json:"address"`
	Verified bool          `json:"verified"`
	Share    uint16        `json:"share"`
}

type Metadata struct {
	Key                  uint8         `json:"-"`
	UpdateAuthority      ledger.Pubkey `json:"update_authority"`
	Mint                 ledger.Pubkey `json:"mint"`
	Name                 string        `json:"name"`
	Symbol               string        `json:"symbol"`
	URI                  string        `json:"uri"`
	SellerFeeBasisPoints uint16        `json:"seller_fee_basis_points"`
	Creators             []Creator     `json:"creators"`
	PrimarySaleHappened  bool          `json:"primary_sale_happened"`
	IsMutable            bool          `json:"is_mutable"`
}

// Address derives the metadata account for mint.
func Address(mint ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress([][]byte{[]byte(Prefix), ProgramID[:], mint[:]}, ProgramID)
}

// Validate checks the royalty configuration.
func (m *Metadata) Validate() error {
	if m.SellerFeeBasisPoints > MaxBasisPoints {
		return ErrInvalidBasisPoints
	}
	if len(m.Creators) > MaxCreators {
		return ErrTooManyCreators
	}
	if len(m.Creators) == 0 {
		return nil
	}
	seen := make(map[ledger.Pubkey]struct{}, len(m.Creators))
	var total uint32
	for _, c := range m.Creators {
		if _, dup := seen[c.Address]; dup {
			return fmt.Errorf("%s: %w", c.Address, ErrDuplicateCreator)
		}
		seen[c.Address] = struct{}{}
		total += uint32(c.Share)
	}
	if total != MaxBasisPoints {
		return fmt.Errorf("shares add up to %d: %w", total, ErrShareTotalMismatch)
	}
	return nil
}

func Encode(m *Metadata) ([]byte, error) {
	bz, err := bcs.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return bz, nil
}

func Decode(data []byte) (*Metadata, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	var m Metadata
	if _, err := bcs.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if m.Key != keyMetadataV1 {
		return nil, ErrWrongKey
	}
	return &m, nil
}

// Load reads the metadata record of mint from address, checking that the
// address is the derived metadata account for that mint.
func Load(tx *ledger.Txn, address, mint ledger.Pubkey) (*Metadata, error) {
	if want, _ := Address(mint); want != address {
		return nil, fmt.Errorf("%s: %w", address, ErrDerivationMismatch)
	}
	acct := tx.Account(address)
	if acct.Owner != ProgramID {
		return nil, ErrEmpty
	}
	m, err := Decode(acct.Data)
	if err != nil {
		return nil, err
	}
	if m.Mint != mint {
		return nil, ErrMintMismatch
	}
	return m, nil
}

// Create writes a new metadata record for m.Mint, paid for by payer. The
// update authority must sign.
func Create(tx *ledger.Txn, payer ledger.Pubkey, m *Metadata, seeds ...ledger.SignerSeeds) (ledger.Pubkey, error) {
	if err := m.Validate(); err != nil {
		return ledger.Pubkey{}, err
	}
	if !tx.Authorized(m.UpdateAuthority, seeds...) {
		return ledger.Pubkey{}, ErrUpdateAuthorityDeny
	}
	m.Key = keyMetadataV1
	bz, err := Encode(m)
	if err != nil {
		return ledger.Pubkey{}, err
	}

	address, bump := Address(m.Mint)
	signer := ledger.SignerSeeds{
		ProgramID: ProgramID,
		Seeds:     [][]byte{[]byte(Prefix), ProgramID[:], m.Mint[:], {bump}},
	}
	size := uint64(len(bz))
	if err := ledger.CreateAccount(tx, payer, address, ledger.MinimumBalance(size), size, ProgramID, append(seeds, signer)...); err != nil {
		return ledger.Pubkey{}, fmt.Errorf("failed to create metadata account: %w", err)
	}
	copy(tx.Account(address).Data, bz)
	return address, nil
}
