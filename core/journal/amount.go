package journal

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// ParseAmount converts a decimal major-unit amount ("1500.00") to minor units.
// Non-positive amounts, amounts finer than the minor unit and amounts past int64 minor units are rejected.
func ParseAmount(raw string, scale int32) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	minor := d.Shift(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", raw, scale)
	}
	if !minor.IsPositive() {
		return 0, fmt.Errorf("amount %q must be positive", raw)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %q is out of range", raw)
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a major-unit decimal string.
func FormatAmount(minor int64, scale int32) string {
	return decimal.New(minor, -scale).StringFixed(scale)
}
