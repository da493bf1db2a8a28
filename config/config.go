// Package config loads SkillPay settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/client"
	x402http "github.com/skillpay/x402-skills/http"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	"github.com/skillpay/x402-skills/server"
)

// Environment variables
const (
	EnvPrivateKey     = "SKILLPAY_PRIVATE_KEY"
	EnvWalletKey      = "WALLET_KEY"
	EnvAPIURL         = "SKILLPAY_API_URL"
	EnvNetwork        = "SKILLPAY_NETWORK"
	EnvPayTo          = "SKILLPAY_PAY_TO"
	EnvFacilitatorURL = "SKILLPAY_FACILITATOR_URL"
	EnvRPCURL         = "SKILLPAY_RPC_URL"
	EnvPort           = "PORT"
)

// Defaults
const (
	DefaultAPIURL = client.DefaultAPIURL
	DefaultPort   = server.DefaultPort
)

// Config is the merged configuration. Overrides win over the environment,
// which wins over defaults.
type Config struct {
	PrivateKey     string
	APIURL         string
	Network        string
	PayTo          string
	FacilitatorURL string
	RPCURL         string
	Port           int
}

// Load reads the given env files, or ./.env when none are given, then merges
// overrides, environment and defaults. Missing env files are ignored.
// Variables already set in the process environment are never replaced.
func Load(overrides Config, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to load %s: %w", x402.ErrConfiguration, file, err)
		}
	}

	config := &Config{
		PrivateKey:     first(overrides.PrivateKey, os.Getenv(EnvPrivateKey), os.Getenv(EnvWalletKey)),
		APIURL:         first(overrides.APIURL, os.Getenv(EnvAPIURL), DefaultAPIURL),
		Network:        first(overrides.Network, os.Getenv(EnvNetwork), evm.NetworkBase),
		PayTo:          first(overrides.PayTo, os.Getenv(EnvPayTo)),
		FacilitatorURL: first(overrides.FacilitatorURL, os.Getenv(EnvFacilitatorURL), x402http.DefaultFacilitatorURL),
		Port:           overrides.Port,
	}
	config.RPCURL = first(overrides.RPCURL, os.Getenv(EnvRPCURL), defaultRPCURL(config.Network))

	if config.Port == 0 {
		config.Port = DefaultPort
		if value := os.Getenv(EnvPort); value != "" {
			port, err := strconv.Atoi(value)
			if err != nil || port <= 0 || port > 65535 {
				return nil, fmt.Errorf("%w: invalid %s %q", x402.ErrConfiguration, EnvPort, value)
			}
			config.Port = port
		}
	}
	return config, nil
}

// RequireKey fails unless a signing key is configured
func (c *Config) RequireKey() error {
	if c.PrivateKey == "" {
		return x402.NewPaymentError(x402.ErrConfiguration, x402.ErrCodeMissingKey,
			EnvPrivateKey+" or "+EnvWalletKey+" environment variable is required. Set it to a hex-encoded private key with USDC on Base.", nil)
	}
	return nil
}

// RequirePayTo fails unless a valid payee address is configured
func (c *Config) RequirePayTo() error {
	if c.PayTo == "" {
		return fmt.Errorf("%w: %s is required", x402.ErrConfiguration, EnvPayTo)
	}
	if err := x402.ValidateAddress(c.PayTo); err != nil {
		return fmt.Errorf("%w: %s: %w", x402.ErrConfiguration, EnvPayTo, err)
	}
	return nil
}

// Addr is the listen address for Port
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func defaultRPCURL(network string) string {
	if config, err := evm.GetNetworkConfig(network); err == nil && config.RPCURL != "" {
		return config.RPCURL
	}
	return evm.BaseRPCURL
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
