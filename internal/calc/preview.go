package calc

import (
	"github.com/shopspring/decimal"

	"github.com/leafsii/auction-house/internal/auctionhouse"
)

// Payout is one line of a split preview.
type Payout struct {
	Recipient string          `json:"recipient"`
	Amount    uint64          `json:"amount"`
	UIAmount  decimal.Decimal `json:"ui_amount"`
	Percent   decimal.Decimal `json:"percent"`
}

// SplitPreview is a settlement split rendered for display.
type SplitPreview struct {
	Price            uint64          `json:"price"`
	UIPrice          decimal.Decimal `json:"ui_price"`
	Decimals         uint8           `json:"decimals"`
	RoyaltyPercent   decimal.Decimal `json:"royalty_percent"`
	HouseFeePercent  decimal.Decimal `json:"house_fee_percent"`
	Creators         []Payout        `json:"creators"`
	RoyaltyTotal     Payout          `json:"royalty_total"`
	HouseFee         Payout          `json:"house_fee"`
	SellerProceeds   Payout          `json:"seller_proceeds"`
	ReturnedToSeller uint64          `json:"returned_to_seller"`
}

func payout(recipient string, amount, price uint64, decimals uint8) Payout {
	return Payout{
		Recipient: recipient,
		Amount:    amount,
		UIAmount:  ToUI(amount, decimals),
		Percent:   ShareOf(amount, price),
	}
}

// PreviewSplit renders split for a mint with decimals. creators names the
// recipients of split.CreatorFees in order.
func PreviewSplit(split *auctionhouse.Split, creators []string, royaltyBps, feeBps uint16, decimals uint8) SplitPreview {
	p := SplitPreview{
		Price:            split.Price,
		UIPrice:          ToUI(split.Price, decimals),
		Decimals:         decimals,
		RoyaltyPercent:   BpsToPercent(royaltyBps),
		HouseFeePercent:  BpsToPercent(feeBps),
		Creators:         make([]Payout, 0, len(split.CreatorFees)),
		RoyaltyTotal:     payout("creators", split.RoyaltiesPaid, split.Price, decimals),
		HouseFee:         payout("treasury", split.HouseFee, split.Price, decimals),
		SellerProceeds:   payout("seller", split.SellerProceeds, split.Price, decimals),
		ReturnedToSeller: split.RoyaltyTotal - split.RoyaltiesPaid,
	}
	for i, fee := range split.CreatorFees {
		name := ""
		if i < len(creators) {
			name = creators[i]
		}
		p.Creators = append(p.Creators, payout(name, fee, split.Price, decimals))
	}
	return p
}
