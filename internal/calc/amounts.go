package calc

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the precision of the native currency.
const NativeDecimals = 9

var maxUint64 = fromUint64(math.MaxUint64)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ToUI converts a base-unit amount to its display value for a mint with the
// given decimals.
func ToUI(amount uint64, decimals uint8) decimal.Decimal {
	return fromUint64(amount).Shift(-int32(decimals))
}

// FromUI converts a display value back to base units. Values that need more
// precision than the mint carries are rejected rather than rounded.
func FromUI(ui decimal.Decimal, decimals uint8) (uint64, error) {
	if ui.IsNegative() {
		return 0, fmt.Errorf("invalid amount %s: must not be negative", ui)
	}
	base := ui.Shift(int32(decimals))
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %s: more than %d decimals", ui, decimals)
	}
	if base.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("invalid amount %s: exceeds 64-bit base units", ui)
	}
	return base.BigInt().Uint64(), nil
}

// ParseUI parses a display string such as "1.25" into base units.
func ParseUI(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromUI(d, decimals)
}

// BpsToPercent renders basis points as a percentage: 250 is 2.5.
func BpsToPercent(bps uint16) decimal.Decimal {
	return decimal.NewFromInt(int64(bps)).Shift(-2)
}

// ShareOf is amount's share of total as a percentage, 0 when total is 0.
func ShareOf(amount, total uint64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return fromUint64(amount).Div(fromUint64(total)).Shift(2).Round(4)
}
