package evm

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// CreateNonce reads a fresh 32-byte nonce from r and returns it 0x-hex encoded
func CreateNonce(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hexutil.Encode(nonce), nil
}

// CreateValidityWindow returns validAfter and validBefore for a signing instant.
// A zero or negative timeout uses DefaultTimeoutSeconds.
func CreateValidityWindow(nowUnix int64, timeoutSeconds int) (validAfter, validBefore *big.Int) {
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}
	validAfter = big.NewInt(nowUnix - ValidAfterGrace)
	validBefore = big.NewInt(nowUnix + int64(timeoutSeconds))
	return validAfter, validBefore
}

// HexToBytes decodes a hex string with or without 0x prefix
func HexToBytes(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

// BytesToHex encodes bytes as 0x-prefixed hex
func BytesToHex(b []byte) string {
	return hexutil.Encode(b)
}

// IsValidAddress reports whether s is a 0x-prefixed 20-byte address
func IsValidAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress returns the checksummed form of an address
func NormalizeAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// ParseAmount converts a decimal token amount ("0.01") to atomic units
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must be non-negative: %s", amount)
	}
	return d.Shift(int32(decimals)).Floor().BigInt(), nil
}

// FormatAmount converts atomic units to a decimal string with the given precision
func FormatAmount(atomic *big.Int, decimals int, places int32) string {
	return decimal.NewFromBigInt(atomic, -int32(decimals)).StringFixed(places)
}
