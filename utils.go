package x402

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ParseAtomicAmount parses an unsigned decimal string in the asset's atomic unit
func ParseAtomicAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok {
		return nil, NewValidationError(ErrCodeInvalidAmount, fmt.Sprintf("invalid atomic amount: %q", amount))
	}
	if v.Sign() < 0 {
		return nil, NewValidationError(ErrCodeInvalidAmount, fmt.Sprintf("atomic amount must be non-negative: %s", amount))
	}
	return v, nil
}

// IsValidAddress reports whether s is a 0x-prefixed 20-byte hex address
func IsValidAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ValidateAddress returns a validation error for malformed addresses
func ValidateAddress(s string) error {
	if !IsValidAddress(s) {
		return NewValidationError(ErrCodeInvalidAddress, "invalid ethereum address")
	}
	return nil
}

// ValidateTxHash returns a validation error for malformed transaction hashes
func ValidateTxHash(s string) error {
	if !txHashRegex.MatchString(s) {
		return NewValidationError(ErrCodeInvalidHash, "invalid transaction hash")
	}
	return nil
}
