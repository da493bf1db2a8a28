package evm

import (
	"math/big"
)

const (
	// Scheme identifier
	SchemeExact = "exact"

	// Default token decimals for USDC
	DefaultDecimals = 6

	// EIP-3009 function names
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionBalanceOf                 = "balanceOf"
	FunctionTransfer                  = "transfer"

	// ValidAfterGrace is how far validAfter is set in the past to tolerate clock skew
	ValidAfterGrace = 600 // seconds

	// DefaultTimeoutSeconds is used when a requirement carries no maxTimeoutSeconds
	DefaultTimeoutSeconds = 900

	// NonceSize is the EIP-3009 nonce length in bytes
	NonceSize = 32

	// Default signing domain, USDC on Base
	DefaultAssetName    = "USD Coin"
	DefaultAssetVersion = "2"
	USDCBaseAddress     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	USDCSepoliaAddress  = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"

	// Legacy v1 network names
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"

	// CAIP-2 network identifiers
	NetworkBaseCAIP2        = "eip155:8453"
	NetworkBaseSepoliaCAIP2 = "eip155:84532"

	// Public RPC endpoints
	BaseRPCURL        = "https://mainnet.base.org"
	BaseSepoliaRPCURL = "https://sepolia.base.org"
)

var (
	chainIDBase        = big.NewInt(8453)
	chainIDBaseSepolia = big.NewInt(84532)

	baseUSDC = AssetInfo{
		Address:  USDCBaseAddress,
		Name:     DefaultAssetName,
		Version:  DefaultAssetVersion,
		Decimals: DefaultDecimals,
	}
	sepoliaUSDC = AssetInfo{
		Address:  USDCSepoliaAddress,
		Name:     "USDC",
		Version:  DefaultAssetVersion,
		Decimals: DefaultDecimals,
	}

	// networkConfigs is keyed by both the legacy and the CAIP-2 identifier.
	// Read it through GetNetworkConfig, which copies the chain ID.
	networkConfigs = map[string]NetworkConfig{
		NetworkBaseCAIP2:        {ChainID: chainIDBase, DefaultAsset: baseUSDC, LegacyName: NetworkBase, RPCURL: BaseRPCURL},
		NetworkBase:             {ChainID: chainIDBase, DefaultAsset: baseUSDC, LegacyName: NetworkBase, RPCURL: BaseRPCURL},
		NetworkBaseSepoliaCAIP2: {ChainID: chainIDBaseSepolia, DefaultAsset: sepoliaUSDC, LegacyName: NetworkBaseSepolia, RPCURL: BaseSepoliaRPCURL},
		NetworkBaseSepolia:      {ChainID: chainIDBaseSepolia, DefaultAsset: sepoliaUSDC, LegacyName: NetworkBaseSepolia, RPCURL: BaseSepoliaRPCURL},
	}

	// TransferWithAuthorizationTypes is the EIP-712 type set signed for EIP-3009
	TransferWithAuthorizationTypes = map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	// ERC20BalanceOfABI for checking token balance
	ERC20BalanceOfABI = []byte(`[
		{
			"inputs": [
				{"name": "account", "type": "address"}
			],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20TransferABI for building unsigned token transfers
	ERC20TransferABI = []byte(`[
		{
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "transfer",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
)
