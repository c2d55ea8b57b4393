package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// UnlimitedSupply is the sentinel raw value meaning no supply cap.
const UnlimitedSupply = "0"

// ParseRawAmount parses a raw base-unit decimal string into a big integer.
func ParseRawAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a valid integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}

// ToBaseUnits converts a whole-token decimal string (optionally fractional,
// e.g. "400" or "400.5") into raw base units using the token's decimals.
func ToBaseUnits(whole string, decimals int) (*big.Int, error) {
	whole = strings.TrimSpace(whole)
	if whole == "" {
		return nil, fmt.Errorf("amount is required")
	}
	if decimals < 0 {
		return nil, fmt.Errorf("decimals must not be negative")
	}

	neg := strings.HasPrefix(whole, "-")
	if neg {
		return nil, fmt.Errorf("amount must not be negative")
	}

	intPart := whole
	fracPart := ""
	if idx := strings.IndexByte(whole, '.'); idx >= 0 {
		intPart, fracPart = whole[:idx], whole[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		return nil, fmt.Errorf("amount has more than %d decimal places", decimals)
	}

	digits := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a valid number", whole)
	}
	return v, nil
}

// ValidateAddress checks that s is a syntactically valid contract or wallet
// address for the supported chain family.
func ValidateAddress(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("address is required")
	}
	if !common.IsHexAddress(s) {
		return fmt.Errorf("address %q is not a valid hex address", s)
	}
	return nil
}

// NormalizeAddress returns the checksummed form of a valid address.
func NormalizeAddress(s string) (string, error) {
	if err := ValidateAddress(s); err != nil {
		return "", err
	}
	return common.HexToAddress(strings.TrimSpace(s)).Hex(), nil
}

// ApplySupplyDelta adds (or, when negative is set, subtracts) a raw base-unit
// delta to a raw supply string and returns the new total. The result cannot go
// below zero.
func ApplySupplyDelta(supply, delta string, negative bool) (string, error) {
	cur, err := ParseRawAmount(supply)
	if err != nil {
		return "", fmt.Errorf("supply: %w", err)
	}
	d, err := ParseRawAmount(delta)
	if err != nil {
		return "", fmt.Errorf("delta: %w", err)
	}
	if negative {
		cur.Sub(cur, d)
		if cur.Sign() < 0 {
			return "", fmt.Errorf("supply delta would drive total below zero")
		}
	} else {
		cur.Add(cur, d)
	}
	return cur.String(), nil
}
