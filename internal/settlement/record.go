package settlement

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fardream/go-bcs/bcs"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/repository"
)

// Record is a settled sale as the service reports and stores it.
type Record struct {
	ID        string                `json:"id"`
	Path      auctionhouse.Path     `json:"path"`
	Digest    string                `json:"digest"`
	SettledAt time.Time             `json:"settled_at"`
	Receipt   *auctionhouse.Receipt `json:"receipt"`
}

// Event is published on every settlement.
type Event struct {
	Type   string  `json:"type"`
	Record *Record `json:"record"`
}

const EventSaleExecuted = "sale.executed"

// Digest is the hex blake2b-256 of the BCS-encoded receipt.
func Digest(r *auctionhouse.Receipt) (string, error) {
	bz, err := bcs.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode receipt: %w", err)
	}
	sum := blake2b.Sum256(bz)
	return hex.EncodeToString(sum[:]), nil
}

func newRecord(r *auctionhouse.Receipt, at time.Time) (*Record, error) {
	digest, err := Digest(r)
	if err != nil {
		return nil, err
	}
	return &Record{
		ID:        uuid.NewString(),
		Path:      r.Path,
		Digest:    digest,
		SettledAt: at.UTC(),
		Receipt:   r,
	}, nil
}

func (r *Record) settlement() (repository.Settlement, error) {
	receipt, err := json.Marshal(r.Receipt)
	if err != nil {
		return repository.Settlement{}, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	rc := r.Receipt
	return repository.Settlement{
		ID:                  r.ID,
		Path:                string(r.Path),
		AuctionHouse:        rc.AuctionHouse.String(),
		ListingAuctionHouse: rc.ListingAuctionHouse.String(),
		Buyer:               rc.Buyer.String(),
		Seller:              rc.Seller.String(),
		TokenMint:           rc.TokenMint.String(),
		TreasuryMint:        rc.TreasuryMint.String(),
		Price:               rc.Price,
		TokenSize:           rc.TokenSize,
		RoyaltyTotal:        rc.RoyaltyTotal,
		HouseFee:            rc.HouseFee,
		SellerProceeds:      rc.SellerProceeds,
		Digest:              r.Digest,
		Receipt:             receipt,
		SettledAt:           r.SettledAt,
	}, nil
}

func recordFromSettlement(s *repository.Settlement) (*Record, error) {
	var receipt auctionhouse.Receipt
	if err := json.Unmarshal(s.Receipt, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt %s: %w", s.ID, err)
	}
	return &Record{
		ID:        s.ID,
		Path:      auctionhouse.Path(s.Path),
		Digest:    s.Digest,
		SettledAt: s.SettledAt,
		Receipt:   &receipt,
	}, nil
}
