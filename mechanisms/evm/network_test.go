package evm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/skillpay/x402-skills"
)

func TestGetEvmChainID(t *testing.T) {
	tests := []struct {
		network string
		want    int64
	}{
		{"base", 8453},
		{"base-sepolia", 84532},
		{"eip155:84532", 84532},
		{"eip155:10", 10},
		{"eip155:abc", 8453},
		{"solana", 8453},
		{"", 8453},
	}

	for _, tt := range tests {
		t.Run(tt.network, func(t *testing.T) {
			assert.Equal(t, tt.want, GetEvmChainID(tt.network).Int64())
		})
	}
}

func TestChainIDsAreNotShared(t *testing.T) {
	GetEvmChainID("base").SetInt64(1)
	GetEvmChainID("unknown").SetInt64(2)
	ChainIDBase().SetInt64(3)
	ChainIDBaseSepolia().SetInt64(4)
	config, err := GetNetworkConfig(NetworkBase)
	require.NoError(t, err)
	config.ChainID.SetInt64(5)

	assert.Equal(t, int64(8453), ChainIDBase().Int64())
	assert.Equal(t, int64(84532), ChainIDBaseSepolia().Int64())
	assert.Equal(t, int64(8453), GetEvmChainID("eip155:8453").Int64())
	again, err := GetNetworkConfig(NetworkBaseCAIP2)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), again.ChainID.Int64())
}

func TestResolveDomain(t *testing.T) {
	tests := []struct {
		name string
		req  x402.PaymentRequirements
		want NetworkDomain
	}{
		{
			name: "base defaults",
			req:  x402.PaymentRequirements{Network: "base"},
			want: NetworkDomain{AssetName: "USD Coin", AssetVersion: "2", VerifyingContract: USDCBaseAddress},
		},
		{
			name: "sepolia default asset name",
			req:  x402.PaymentRequirements{Network: "base-sepolia", Asset: USDCSepoliaAddress},
			want: NetworkDomain{AssetName: "USDC", AssetVersion: "2", VerifyingContract: USDCSepoliaAddress},
		},
		{
			name: "extra overrides",
			req: x402.PaymentRequirements{
				Network: "eip155:8453",
				Asset:   "0x1111111111111111111111111111111111111111",
				Extra:   map[string]interface{}{"name": "Token", "version": "7"},
			},
			want: NetworkDomain{AssetName: "Token", AssetVersion: "7", VerifyingContract: "0x1111111111111111111111111111111111111111"},
		},
		{
			name: "unknown network falls back to base usdc",
			req:  x402.PaymentRequirements{Network: "eip155:999"},
			want: NetworkDomain{AssetName: "USD Coin", AssetVersion: "2", VerifyingContract: USDCBaseAddress},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDomain(tt.req)
			assert.Equal(t, tt.want.AssetName, got.AssetName)
			assert.Equal(t, tt.want.AssetVersion, got.AssetVersion)
			assert.Equal(t, tt.want.VerifyingContract, got.VerifyingContract)
		})
	}
}

func TestNetworkNameMapping(t *testing.T) {
	assert.Equal(t, x402.Network("eip155:8453"), ToCAIP2("base"))
	assert.Equal(t, x402.Network("eip155:84532"), ToCAIP2("base-sepolia"))
	assert.Equal(t, x402.Network("eip155:10"), ToCAIP2("eip155:10"))
	assert.Equal(t, x402.Network("base"), ToLegacy("eip155:8453"))
	assert.Equal(t, x402.Network("eip155:10"), ToLegacy("eip155:10"))
}

func TestParseAndFormatAmount(t *testing.T) {
	v, err := ParseAmount("0.01", DefaultDecimals)
	assert.NoError(t, err)
	assert.Equal(t, "10000", v.String())

	v, err = ParseAmount("1.2345678", DefaultDecimals)
	assert.NoError(t, err)
	assert.Equal(t, "1234567", v.String())

	_, err = ParseAmount("-1", DefaultDecimals)
	assert.Error(t, err)

	assert.Equal(t, "0.40", FormatAmount(v.SetInt64(400000), DefaultDecimals, 2))
}
