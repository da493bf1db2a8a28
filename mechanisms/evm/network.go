package evm

import (
	"fmt"
	"math/big"
	"strings"

	x402 "github.com/skillpay/x402-skills"
)

// NetworkDomain is the resolved EIP-712 signing domain for a requirement
type NetworkDomain struct {
	ChainID           *big.Int
	AssetName         string
	AssetVersion      string
	VerifyingContract string
}

// TypedDataDomain converts the resolved domain to its EIP-712 form
func (d NetworkDomain) TypedDataDomain() TypedDataDomain {
	return TypedDataDomain{
		Name:              d.AssetName,
		Version:           d.AssetVersion,
		ChainID:           d.ChainID,
		VerifyingContract: d.VerifyingContract,
	}
}

// GetNetworkConfig returns the configuration for a legacy or CAIP-2 network name
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	if config, ok := networkConfigs[network]; ok {
		config.ChainID = new(big.Int).Set(config.ChainID)
		return &config, nil
	}
	return nil, fmt.Errorf("no configuration for network: %s", network)
}

// ChainIDBase returns the Base mainnet chain ID
func ChainIDBase() *big.Int {
	return new(big.Int).Set(chainIDBase)
}

// ChainIDBaseSepolia returns the Base Sepolia chain ID
func ChainIDBaseSepolia() *big.Int {
	return new(big.Int).Set(chainIDBaseSepolia)
}

// GetEvmChainID resolves a network identifier to a chain ID. Known names match
// exactly, then an "eip155:<id>" form is parsed, and anything else falls back
// to Base mainnet.
func GetEvmChainID(network string) *big.Int {
	if config, ok := networkConfigs[network]; ok {
		return new(big.Int).Set(config.ChainID)
	}
	if ref, ok := strings.CutPrefix(network, "eip155:"); ok {
		if id, ok := new(big.Int).SetString(ref, 10); ok && id.Sign() > 0 {
			return id
		}
	}
	return ChainIDBase()
}

// ToCAIP2 maps a legacy network name to its CAIP-2 identifier.
// Unknown names are returned unchanged.
func ToCAIP2(network x402.Network) x402.Network {
	if network.IsCAIP2() {
		return network
	}
	if config, ok := networkConfigs[string(network)]; ok {
		return x402.Network("eip155:" + config.ChainID.String())
	}
	return network
}

// ToLegacy maps a CAIP-2 identifier to the v1 network name where one exists
func ToLegacy(network x402.Network) x402.Network {
	if config, ok := networkConfigs[string(network)]; ok && config.LegacyName != "" {
		return x402.Network(config.LegacyName)
	}
	return network
}

// DefaultAsset returns the default stablecoin for a network, or Base USDC
func DefaultAsset(network x402.Network) AssetInfo {
	if config, ok := networkConfigs[string(network)]; ok {
		return config.DefaultAsset
	}
	return baseUSDC
}

// ResolveDomain derives the signing domain from the requirement's network,
// asset and extra.name / extra.version overrides.
func ResolveDomain(requirements x402.PaymentRequirements) NetworkDomain {
	asset := DefaultAsset(requirements.Network)

	domain := NetworkDomain{
		ChainID:           GetEvmChainID(string(requirements.Network)),
		AssetName:         DefaultAssetName,
		AssetVersion:      DefaultAssetVersion,
		VerifyingContract: asset.Address,
	}
	if requirements.Asset != "" {
		domain.VerifyingContract = requirements.Asset
	}
	if strings.EqualFold(domain.VerifyingContract, asset.Address) {
		domain.AssetName = asset.Name
		domain.AssetVersion = asset.Version
	}

	name, version := requirements.DomainOverride()
	if name != "" {
		domain.AssetName = name
	}
	if version != "" {
		domain.AssetVersion = version
	}
	return domain
}
