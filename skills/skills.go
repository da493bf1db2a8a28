// Package skills implements the built-in chain skills: balance lookups,
// transaction decoding, wallet generation and unsigned transfer building.
package skills

import (
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/client"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	"github.com/skillpay/x402-skills/server"
)

// Gas limits for the unsigned transfers built by Send
const (
	GasETHTransfer   = 21000
	GasTokenTransfer = 65000
)

const ethDecimals = 18

// Skills serves chain lookups for one network
type Skills struct {
	reader  ChainReader
	network string
	chainID *big.Int
	usdc    common.Address
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures Skills
type Option func(*Skills)

// WithLogger sets the skills logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Skills) {
		s.logger = logger
	}
}

// WithClock sets the clock used for response timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Skills) {
		s.now = now
	}
}

// New creates skills reading chain state from reader
func New(reader ChainReader, network string, opts ...Option) *Skills {
	if network == "" {
		network = evm.NetworkBase
	}
	s := &Skills{
		reader:  reader,
		network: string(evm.ToLegacy(x402.Network(network))),
		chainID: evm.GetEvmChainID(network),
		usdc:    common.HexToAddress(evm.DefaultAsset(x402.Network(network)).Address),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds every built-in skill to srv
func Register(srv *server.SkillServer, s *Skills) error {
	for _, skill := range []server.Skill{
		server.NewSkill("balance", server.SkillOptions{
			Description: "Get ETH and USDC balances for any Base address",
			Endpoint:    "/balance/:address",
			Example:     "/balance/0x101Cd32b9bEEE93845Ead7Bc604a5F1873330acf",
			Handler:     s.Balance,
		}),
		server.NewSkill("tx", server.SkillOptions{
			Description: "Get decoded transaction details for any Base tx",
			Endpoint:    "/tx/:hash",
			Example:     "/tx/0x...",
			Handler:     s.Tx,
		}),
		server.NewSkill("wallet", server.SkillOptions{
			Description: "Generate a fresh Base wallet keypair",
			Endpoint:    "/wallet/generate",
			Handler:     s.Wallet,
		}),
		server.NewSkill("fund", server.SkillOptions{
			Description: "Get balances and funding instructions for a Base address",
			Endpoint:    "/fund/:address",
			Handler:     s.Fund,
		}),
		server.NewSkill("send", server.SkillOptions{
			Description: "Build an unsigned ETH or USDC transfer",
			Endpoint:    "/send",
			Method:      http.MethodPost,
			Example:     `POST /send {"to":"0x...","amount":"0.1","token":"USDC"}`,
			Handler:     s.Send,
		}),
	} {
		if err := srv.Add(skill); err != nil {
			return err
		}
	}
	return nil
}

func (s *Skills) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Skills) fail(c *gin.Context, message string, err error) {
	s.logger.Error(message, "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message, "details": err.Error()})
}

func (s *Skills) balances(c *gin.Context, address common.Address) (client.Balances, error) {
	ctx := c.Request.Context()
	wei, err := s.reader.BalanceAt(ctx, address, nil)
	if err != nil {
		return client.Balances{}, err
	}
	usdc, err := tokenBalance(ctx, s.reader, s.usdc, address)
	if err != nil {
		return client.Balances{}, err
	}
	return client.Balances{
		ETH:  decimal.NewFromBigInt(wei, -ethDecimals).StringFixed(6),
		USDC: decimal.NewFromBigInt(usdc, -evm.DefaultDecimals).StringFixed(2),
	}, nil
}

// Balance serves GET /balance/:address
func (s *Skills) Balance(c *gin.Context) {
	address := c.Param("address")
	if !x402.IsValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ethereum address"})
		return
	}

	balances, err := s.balances(c, common.HexToAddress(address))
	if err != nil {
		s.fail(c, "failed to fetch balance", err)
		return
	}
	c.JSON(http.StatusOK, client.BalanceResult{
		Address:   address,
		Network:   s.network,
		Balances:  balances,
		Timestamp: s.timestamp(),
	})
}

// Fund serves GET /fund/:address
func (s *Skills) Fund(c *gin.Context) {
	address := c.Param("address")
	if !x402.IsValidAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ethereum address"})
		return
	}

	balances, err := s.balances(c, common.HexToAddress(address))
	if err != nil {
		s.fail(c, "failed to fetch balance", err)
		return
	}
	c.JSON(http.StatusOK, client.FundResult{
		Address:  address,
		Network:  s.network,
		ChainID:  s.chainID.Int64(),
		Balances: balances,
		Steps: []string{
			"Send USDC on " + s.network + " to " + address + " to pay for skill calls",
			"Send a small amount of ETH on " + s.network + " for gas if you broadcast transactions",
			"Each skill call costs $0.01 USDC, settled by the x402 facilitator",
		},
		Timestamp: s.timestamp(),
	})
}

// Tx serves GET /tx/:hash
func (s *Skills) Tx(c *gin.Context) {
	hash := c.Param("hash")
	if err := x402.ValidateTxHash(hash); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction hash"})
		return
	}

	ctx := c.Request.Context()
	txHash := common.HexToHash(hash)
	tx, pending, err := s.reader.TransactionByHash(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		s.fail(c, "failed to fetch transaction", err)
		return
	}

	result := client.TxResult{
		Hash:      tx.Hash().Hex(),
		Network:   s.network,
		Value:     decimal.NewFromBigInt(tx.Value(), -ethDecimals).StringFixed(6) + " ETH",
		GasUsed:   "pending",
		Status:    "pending",
		Timestamp: s.timestamp(),
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		result.From = from.Hex()
	}
	if to := tx.To(); to != nil {
		result.To = to.Hex()
	}

	if !pending {
		receipt, err := s.reader.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			result.GasUsed = new(big.Int).SetUint64(receipt.GasUsed).String()
			result.Status = "reverted"
			if receipt.Status == types.ReceiptStatusSuccessful {
				result.Status = "success"
			}
			if receipt.BlockNumber != nil {
				block := receipt.BlockNumber.Uint64()
				result.BlockNumber = &block
			}
		case !errors.Is(err, ethereum.NotFound):
			s.fail(c, "failed to fetch transaction receipt", err)
			return
		}
	}
	c.JSON(http.StatusOK, result)
}

// Wallet serves GET /wallet/generate
func (s *Skills) Wallet(c *gin.Context) {
	key, err := crypto.GenerateKey()
	if err != nil {
		s.fail(c, "failed to generate wallet", err)
		return
	}
	c.JSON(http.StatusOK, client.WalletResult{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		Network:    s.network,
		ChainID:    s.chainID.Int64(),
		Note:       "Fund this wallet with ETH for gas and USDC for x402 payments. Keep the private key safe.",
		Timestamp:  s.timestamp(),
	})
}

type sendRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	Token  string `json:"token"`
}

// Send serves POST /send with an unsigned transfer for the caller to sign
func (s *Skills) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields: to, amount"})
		return
	}
	if !x402.IsValidAddress(req.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient address"})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive number"})
		return
	}
	token := strings.ToUpper(req.Token)
	if token == "" {
		token = client.TokenUSDC
	}

	to := common.HexToAddress(req.To)
	var inner *types.DynamicFeeTx
	switch token {
	case client.TokenETH:
		inner = &types.DynamicFeeTx{
			ChainID: s.chainID,
			To:      &to,
			Value:   amount.Shift(ethDecimals).Floor().BigInt(),
			Gas:     GasETHTransfer,
		}
	case client.TokenUSDC:
		data, err := transferABI.Pack(evm.FunctionTransfer, to, amount.Shift(evm.DefaultDecimals).Floor().BigInt())
		if err != nil {
			s.fail(c, "failed to build transfer", err)
			return
		}
		inner = &types.DynamicFeeTx{
			ChainID: s.chainID,
			To:      &s.usdc,
			Value:   new(big.Int),
			Data:    data,
			Gas:     GasTokenTransfer,
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "token must be ETH or USDC"})
		return
	}

	tx := types.NewTx(inner)
	c.JSON(http.StatusOK, client.SendResult{
		Tx: client.UnsignedTx{
			To:      tx.To().Hex(),
			Value:   hexutil.EncodeBig(tx.Value()),
			Data:    hexutil.Encode(tx.Data()),
			ChainID: tx.ChainId().Int64(),
			Gas:     tx.Gas(),
		},
		Token:     token,
		Amount:    amount.String(),
		Network:   s.network,
		Note:      "Sign this transaction locally and broadcast it. Nonce and fees are left to your wallet.",
		Timestamp: s.timestamp(),
	})
}
