package auctionhouse

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestComputeSplit(t *testing.T) {
	tests := []struct {
		name       string
		price      uint64
		royaltyBps uint16
		shares     []uint16
		feeBps     uint16
		want       Split
	}{
		{
			name:       "two creators",
			price:      1_000_000,
			royaltyBps: 500,
			shares:     []uint16{5000, 5000},
			feeBps:     200,
			want: Split{
				Price: 1_000_000, RoyaltyTotal: 50_000, CreatorFees: []uint64{25_000, 25_000},
				RoyaltiesPaid: 50_000, LeftoverAfterRoyalties: 950_000, HouseFee: 20_000, SellerProceeds: 930_000,
			},
		},
		{
			name:       "truncation dust returns to seller",
			price:      1001,
			royaltyBps: 1000,
			shares:     []uint16{3333, 3333, 3334},
			feeBps:     250,
			want: Split{
				Price: 1001, RoyaltyTotal: 100, CreatorFees: []uint64{33, 33, 33},
				RoyaltiesPaid: 99, LeftoverAfterRoyalties: 902, HouseFee: 25, SellerProceeds: 877,
			},
		},
		{
			name:       "no creators keeps royalty with seller",
			price:      10_000,
			royaltyBps: 1000,
			feeBps:     100,
			want: Split{
				Price: 10_000, RoyaltyTotal: 1000, CreatorFees: []uint64{},
				LeftoverAfterRoyalties: 10_000, HouseFee: 100, SellerProceeds: 9_900,
			},
		},
		{
			name:       "zero price",
			price:      0,
			royaltyBps: 1000,
			shares:     []uint16{10000},
			feeBps:     500,
			want:       Split{CreatorFees: []uint64{0}},
		},
		{
			name:   "max price without fees",
			price:  math.MaxUint64,
			shares: []uint16{10000},
			want: Split{
				Price: math.MaxUint64, CreatorFees: []uint64{0},
				LeftoverAfterRoyalties: math.MaxUint64, SellerProceeds: math.MaxUint64,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSplit(tt.price, tt.royaltyBps, tt.shares, tt.feeBps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeSplitOverflow(t *testing.T) {
	for _, fee := range []uint16{2, 200, MaxBasisPoints} {
		_, err := ComputeSplit(math.MaxUint64, 0, nil, fee)
		assert.ErrorIs(t, err, ErrNumericalOverflow, "fee %d", fee)
	}

	_, err := ComputeSplit(math.MaxUint64/200+1, 0, nil, 200)
	assert.ErrorIs(t, err, ErrNumericalOverflow)
	s, err := ComputeSplit(math.MaxUint64/200, 0, nil, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/200*200/MaxBasisPoints), s.HouseFee)

	_, err = ComputeSplit(math.MaxUint64, 2, []uint16{10000}, 0)
	assert.ErrorIs(t, err, ErrNumericalOverflow)

	// royalty and fee together above the whole price
	_, err = ComputeSplit(100, 9000, nil, 2000)
	assert.ErrorIs(t, err, ErrNumericalOverflow)
}

func TestComputeSplitLargePriceLowRate(t *testing.T) {
	// only amount * bps has to fit, not amount * 10000
	s, err := ComputeSplit(2_000_000_000_000_000, 0, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000_000_000), s.HouseFee)
	assert.Equal(t, uint64(1_999_800_000_000_000), s.SellerProceeds)

	s, err = ComputeSplit(math.MaxUint64, 1, []uint16{MaxBasisPoints}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/MaxBasisPoints), s.RoyaltyTotal)
	assert.Equal(t, uint64(math.MaxUint64/MaxBasisPoints), s.HouseFee)
	assert.Equal(t, uint64(math.MaxUint64), s.CreatorFees[0]+s.HouseFee+s.SellerProceeds)
}

func drawShares(t *rapid.T) []uint16 {
	n := rapid.IntRange(0, 5).Draw(t, "creators").(int)
	if n == 0 {
		return nil
	}
	shares := make([]uint16, n)
	left := MaxBasisPoints
	for i := 0; i < n-1; i++ {
		s := rapid.IntRange(0, left).Draw(t, "share").(int)
		shares[i] = uint16(s)
		left -= s
	}
	shares[n-1] = uint16(left)
	return shares
}

func TestComputeSplitConservesPrice(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		price := rapid.Uint64Range(0, math.MaxUint64/MaxBasisPoints).Draw(t, "price").(uint64)
		royalty := rapid.IntRange(0, 5000).Draw(t, "royalty").(int)
		fee := rapid.IntRange(0, 5000).Draw(t, "fee").(int)
		shares := drawShares(t)

		s, err := ComputeSplit(price, uint16(royalty), shares, uint16(fee))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var paid uint64
		for _, f := range s.CreatorFees {
			paid += f
		}
		if paid+s.HouseFee+s.SellerProceeds != price {
			t.Fatalf("split %+v does not add up to %d", s, price)
		}
		if paid > s.RoyaltyTotal {
			t.Fatalf("creators paid %d above royalty total %d", paid, s.RoyaltyTotal)
		}
		if len(shares) > 0 && s.RoyaltyTotal-paid >= uint64(len(shares)) {
			t.Fatalf("creator dust %d out of range", s.RoyaltyTotal-paid)
		}
	})
}

func TestComputeSplitNeverWraps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		price := rapid.Uint64().Draw(t, "price").(uint64)
		royalty := rapid.IntRange(0, MaxBasisPoints).Draw(t, "royalty").(int)
		fee := rapid.IntRange(0, MaxBasisPoints).Draw(t, "fee").(int)

		s, err := ComputeSplit(price, uint16(royalty), []uint16{MaxBasisPoints}, uint16(fee))
		if err != nil {
			if !errors.Is(err, ErrNumericalOverflow) {
				t.Fatalf("unexpected error kind: %v", err)
			}
			return
		}
		if s.CreatorFees[0]+s.HouseFee+s.SellerProceeds != price {
			t.Fatalf("split %+v does not add up to %d", s, price)
		}
	})
}
