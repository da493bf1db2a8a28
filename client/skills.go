package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	x402 "github.com/skillpay/x402-skills"
)

// Supported tokens for Send
const (
	TokenETH  = "ETH"
	TokenUSDC = "USDC"
)

// DefaultSlippage is the trade slippage percentage when none is given
const DefaultSlippage = 1.0

func call[T any](ctx context.Context, c *Client, method, path string, body interface{}) (*SkillResponse[T], error) {
	result, err := c.Request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	response := &SkillResponse[T]{
		Status:         result.Status,
		PaidAmount:     result.PaidAmount,
		ResponseTimeMs: result.ElapsedMs(),
		Raw:            result.Data,
	}
	if result.Status >= http.StatusOK && result.Status < http.StatusMultipleChoices {
		if err := json.Unmarshal(result.Data, &response.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
	}
	return response, nil
}

func skillError(skill, code, message string) error {
	return x402.NewValidationError(code, skill+": "+message)
}

// Balance returns ETH and USDC balances for address
func (c *Client) Balance(ctx context.Context, address string) (*SkillResponse[BalanceResult], error) {
	if !x402.IsValidAddress(address) {
		return nil, skillError("balance", x402.ErrCodeInvalidAddress, "invalid ethereum address")
	}
	return call[BalanceResult](ctx, c, http.MethodGet, "/balance/"+address, nil)
}

// Tx returns decoded details for a transaction hash
func (c *Client) Tx(ctx context.Context, hash string) (*SkillResponse[TxResult], error) {
	if err := x402.ValidateTxHash(hash); err != nil {
		return nil, skillError("tx", x402.ErrCodeInvalidHash, "invalid transaction hash")
	}
	return call[TxResult](ctx, c, http.MethodGet, "/tx/"+hash, nil)
}

// Price returns the USD price of token
func (c *Client) Price(ctx context.Context, token string) (*SkillResponse[PriceResult], error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return nil, skillError("price", x402.ErrCodeInvalidPayment, "token is required")
	}
	return call[PriceResult](ctx, c, http.MethodGet, "/price/"+token, nil)
}

// Wallet generates a fresh keypair server side
func (c *Client) Wallet(ctx context.Context) (*SkillResponse[WalletResult], error) {
	return call[WalletResult](ctx, c, http.MethodGet, "/wallet/generate", nil)
}

// Chat sends message after history to the chat skill
func (c *Client) Chat(ctx context.Context, message string, history []ChatMessage) (*SkillResponse[ChatResult], error) {
	messages := append(append([]ChatMessage{}, history...), ChatMessage{Role: "user", Content: message})
	return call[ChatResult](ctx, c, http.MethodPost, "/chat", map[string]interface{}{"messages": messages})
}

// Send asks for an unsigned ETH or USDC transfer to be built
func (c *Client) Send(ctx context.Context, to, amount, token string) (*SkillResponse[SendResult], error) {
	if !x402.IsValidAddress(to) {
		return nil, skillError("send", x402.ErrCodeInvalidAddress, "invalid recipient address")
	}
	if err := positiveAmount(amount); err != nil {
		return nil, skillError("send", x402.ErrCodeInvalidAmount, err.Error())
	}
	token = strings.ToUpper(token)
	if token != TokenETH && token != TokenUSDC {
		return nil, skillError("send", x402.ErrCodeInvalidPayment, fmt.Sprintf("unsupported token %q", token))
	}
	return call[SendResult](ctx, c, http.MethodPost, "/send", map[string]string{
		"to":     to,
		"amount": amount,
		"token":  token,
	})
}

// Trade asks for an unsigned swap of amount src into dst. A zero slippage
// uses DefaultSlippage.
func (c *Client) Trade(ctx context.Context, src, dst, amount string, slippage float64) (*SkillResponse[TradeResult], error) {
	if err := positiveAmount(amount); err != nil {
		return nil, skillError("trade", x402.ErrCodeInvalidAmount, err.Error())
	}
	if slippage == 0 {
		slippage = DefaultSlippage
	}
	return call[TradeResult](ctx, c, http.MethodPost, "/trade", map[string]interface{}{
		"src":      src,
		"dst":      dst,
		"amount":   amount,
		"from":     c.Address(),
		"slippage": slippage,
	})
}

// Fund returns balances and funding steps for address, or the client's own
// address when empty
func (c *Client) Fund(ctx context.Context, address string) (*SkillResponse[FundResult], error) {
	if address == "" {
		address = c.Address()
	}
	if !x402.IsValidAddress(address) {
		return nil, skillError("fund", x402.ErrCodeInvalidAddress, "invalid ethereum address")
	}
	return call[FundResult](ctx, c, http.MethodGet, "/fund/"+address, nil)
}

func positiveAmount(amount string) error {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || !value.IsPositive() {
		return fmt.Errorf("amount must be a positive number")
	}
	return nil
}
