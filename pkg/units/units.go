// Package units converts between raw token amounts in minor units and
// decimal display strings.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision of every token the client handles.
const Decimals = 18

var ten = big.NewInt(10)

func scale(decimals int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
}

// Format renders amount with decimals fractional digits, trimming trailing
// zeros. Whole amounts render without a decimal point.
func Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// Parse reads a decimal string into minor units. More than decimals
// fractional digits is an error rather than a silent truncation, and
// exponent notation is rejected.
func Parse(value string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("invalid amount %q", value)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if -int(d.Exponent()) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FormatEther formats an 18-decimal amount.
func FormatEther(amount *big.Int) string {
	return Format(amount, Decimals)
}

// ParseEther parses an 18-decimal amount.
func ParseEther(value string) (*big.Int, error) {
	return Parse(value, Decimals)
}

// MustParseEther is ParseEther for constants and tests.
func MustParseEther(value string) *big.Int {
	v, err := ParseEther(value)
	if err != nil {
		panic(err)
	}
	return v
}

// Ether returns n whole tokens in minor units.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), scale(Decimals))
}
