package calc

import (
	"fmt"
	"time"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10000

// ValidateBasisPoints checks a fee rate is at most 100%.
func ValidateBasisPoints(bps uint16, what string) error {
	if bps > MaxBasisPoints {
		return fmt.Errorf("invalid %s: %d basis points exceeds %d", what, bps, MaxBasisPoints)
	}
	return nil
}

// ValidateMinReceived checks the seller would receive at least minReceived
// (slippage protection for quotes taken before the marketplace fee changes).
func ValidateMinReceived(proceeds, minReceived uint64) error {
	if proceeds < minReceived {
		return fmt.Errorf("seller proceeds %d less than minimum required %d", proceeds, minReceived)
	}
	return nil
}

// ValidateQuote checks if a quote is still valid (not expired)
func ValidateQuote(quoteTimestamp time.Time, ttl time.Duration, now time.Time) error {
	expirationTime := quoteTimestamp.Add(ttl)
	if now.After(expirationTime) {
		return fmt.Errorf("quote expired at %v", expirationTime)
	}
	return nil
}
