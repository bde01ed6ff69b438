package auctionhouse

import (
	"math/bits"
)

func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrNumericalOverflow.With("%d * %d", a, b)
	}
	return lo, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrNumericalOverflow.With("%d + %d", a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrNumericalOverflow.With("%d - %d", a, b)
	}
	return diff, nil
}

// bpsOf returns amount * bps / 10000. The product amount * bps must fit in
// 64 bits.
func bpsOf(amount uint64, bps uint16) (uint64, error) {
	product, err := checkedMul(amount, uint64(bps))
	if err != nil {
		return 0, err
	}
	return product / MaxBasisPoints, nil
}

// Split is how a gross price is shared out. CreatorFees follows the
// metadata creator order.
type Split struct {
	Price                  uint64   `json:"price"`
	RoyaltyTotal           uint64   `json:"royalty_total"`
	CreatorFees            []uint64 `json:"creator_fees"`
	RoyaltiesPaid          uint64   `json:"royalties_paid"`
	LeftoverAfterRoyalties uint64   `json:"leftover_after_royalties"`
	HouseFee               uint64   `json:"house_fee"`
	SellerProceeds         uint64   `json:"seller_proceeds"`
}

// ComputeSplit divides price between creators, the marketplace and the
// seller. The royalty total is royaltyBps of price; each creator gets its
// share of that total, truncated, and whatever truncation leaves over goes
// back to the seller. The marketplace fee is feeBps of the gross price.
func ComputeSplit(price uint64, royaltyBps uint16, shares []uint16, feeBps uint16) (Split, error) {
	s := Split{Price: price, CreatorFees: make([]uint64, len(shares))}

	royaltyTotal, err := bpsOf(price, royaltyBps)
	if err != nil {
		return Split{}, err
	}
	s.RoyaltyTotal = royaltyTotal

	remainingFee := royaltyTotal
	for i, share := range shares {
		fee, err := bpsOf(royaltyTotal, share)
		if err != nil {
			return Split{}, err
		}
		if remainingFee, err = checkedSub(remainingFee, fee); err != nil {
			return Split{}, err
		}
		s.CreatorFees[i] = fee
		s.RoyaltiesPaid += fee
	}

	remainingPrice, err := checkedSub(price, royaltyTotal)
	if err != nil {
		return Split{}, err
	}
	if s.LeftoverAfterRoyalties, err = checkedAdd(remainingPrice, remainingFee); err != nil {
		return Split{}, err
	}
	if s.HouseFee, err = bpsOf(price, feeBps); err != nil {
		return Split{}, err
	}
	if s.SellerProceeds, err = checkedSub(s.LeftoverAfterRoyalties, s.HouseFee); err != nil {
		return Split{}, err
	}
	return s, nil
}
