package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/skillpay/x402-skills"
	x402evm "github.com/skillpay/x402-skills/mechanisms/evm"
)

// Hardhat account #0
const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestNewClientSignerFromPrivateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"with prefix", testPrivateKey, false},
		{"without prefix", strings.TrimPrefix(testPrivateKey, "0x"), false},
		{"empty", "", true},
		{"garbage", "0xnothex", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewClientSignerFromPrivateKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, x402.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.EqualFold(testAddress, signer.Address()))
		})
	}
}

func TestClientSigner_SignTypedDataRecoverable(t *testing.T) {
	signer, err := NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	authorization := x402evm.ExactEIP3009Authorization{
		From:        signer.Address(),
		To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Value:       "10000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000900",
		Nonce:       "0x" + strings.Repeat("ab", 32),
	}
	domain := x402evm.NetworkDomain{
		ChainID:           big.NewInt(8453),
		AssetName:         "USD Coin",
		AssetVersion:      "2",
		VerifyingContract: x402evm.USDCBaseAddress,
	}
	message, err := x402evm.AuthorizationMessage(authorization)
	require.NoError(t, err)

	sig, err := signer.SignTypedData(context.Background(), domain.TypedDataDomain(),
		x402evm.TransferWithAuthorizationTypes, "TransferWithAuthorization", message)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := x402evm.RecoverAuthorizationSigner(authorization, domain, x402evm.BytesToHex(sig))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestClientSigner_CanceledContext(t *testing.T) {
	signer, err := NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = signer.SignTypedData(ctx, x402evm.TypedDataDomain{}, nil, "TransferWithAuthorization", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
