package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/client"
)

// Tool names
const (
	ToolBalance     = "skillpay_balance"
	ToolTx          = "skillpay_tx"
	ToolPrice       = "skillpay_price"
	ToolWallet      = "skillpay_wallet"
	ToolChat        = "skillpay_chat"
	ToolSend        = "skillpay_send"
	ToolPay         = "skillpay_pay"
	ToolSetup       = "skillpay_setup"
	ToolSpendLimit  = "skillpay_spend_limit"
	ToolSpendStatus = "skillpay_spend_status"
)

type tool struct {
	name        string
	description string
	schema      argsSchema
	run         func(ctx context.Context, args json.RawMessage) (string, error)
}

func (p *Plugin) tools() []tool {
	return []tool{
		{
			name:        ToolBalance,
			description: "Get ETH and USDC balances for any Ethereum address on Base. Costs $0.01 USDC via x402.",
			schema:      balanceSchema,
			run: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Address string `json:"address"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.BalanceResult], error) {
					return c.Balance(ctx, args.Address)
				})
			},
		},
		{
			name:        ToolTx,
			description: "Get decoded transaction details for any Base transaction hash. Costs $0.01 USDC via x402.",
			schema:      txSchema,
			run: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Hash string `json:"hash"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.TxResult], error) {
					return c.Tx(ctx, args.Hash)
				})
			},
		},
		{
			name:        ToolPrice,
			description: "Get the current USD price for a token on Base (ETH, USDC, WETH, DAI, USDT, CBETH). Costs $0.01 USDC via x402.",
			schema:      priceSchema,
			run: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.PriceResult], error) {
					return c.Price(ctx, args.Token)
				})
			},
		},
		{
			name:        ToolWallet,
			description: "Generate a fresh Ethereum wallet keypair for the Base network. Costs $0.01 USDC via x402.",
			schema:      emptySchema,
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.WalletResult], error) {
					return c.Wallet(ctx)
				})
			},
		},
		{
			name:        ToolChat,
			description: "Chat with the SkillPay agent about x402, on-chain data or the skill catalog. Costs $0.01 USDC via x402.",
			schema:      chatSchema,
			run: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Message string `json:"message"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.ChatResult], error) {
					return c.Chat(ctx, args.Message, nil)
				})
			},
		},
		{
			name:        ToolSend,
			description: "Build an unsigned ETH or USDC transfer on Base for you to sign. Costs $0.01 USDC via x402.",
			schema:      sendSchema,
			run: func(ctx context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					To     string `json:"to"`
					Amount string `json:"amount"`
					Token  string `json:"token"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				if args.Token == "" {
					args.Token = client.TokenUSDC
				}
				return runSkill(ctx, p, func(ctx context.Context, c *client.Client) (*client.SkillResponse[client.SendResult], error) {
					return c.Send(ctx, args.To, args.Amount, args.Token)
				})
			},
		},
		{
			name:        ToolPay,
			description: "Call any x402-paywalled URL, paying up to maxAmount atomic USDC. The session spend limit also applies.",
			schema:      paySchema,
			run:         p.pay,
		},
		{
			name:        ToolSetup,
			description: "Configure the session wallet: import a private key, or generate a new one when none is given.",
			schema:      setupSchema,
			run: func(_ context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					PrivateKey string `json:"privateKey"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				result, err := p.Setup(args.PrivateKey)
				if err != nil {
					return "", err
				}
				return formatJSON(result)
			},
		},
		{
			name:        ToolSpendLimit,
			description: "Set or clear the session spend limit in USD, e.g. {\"limit\": \"1.00\"} or {\"clear\": true}.",
			schema:      spendLimitSchema,
			run: func(_ context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Limit string `json:"limit"`
					Clear bool   `json:"clear"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				if args.Clear {
					p.governor.ClearLimit()
				} else if err := p.governor.SetLimit(args.Limit); err != nil {
					return "", err
				}
				return formatJSON(p.governor.Status())
			},
		},
		{
			name:        ToolSpendStatus,
			description: "Report session spend: budget, spent, remaining and paid call count. With reset, the report shows spend as it stood before the counters were cleared.",
			schema:      spendStatusSchema,
			run: func(_ context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					Reset bool `json:"reset"`
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", err
				}
				status := p.governor.Status()
				if args.Reset {
					p.governor.Reset()
				}
				return formatJSON(status)
			},
		},
	}
}

// runSkill makes one paid skill call under the session budget
func runSkill[T any](ctx context.Context, p *Plugin, do func(context.Context, *client.Client) (*client.SkillResponse[T], error)) (string, error) {
	c, err := p.skillClient()
	if err != nil {
		return "", err
	}

	var response *client.SkillResponse[T]
	err = p.paid(SkillCost, func() (string, int, error) {
		r, err := do(ctx, c)
		if err != nil {
			return "", 0, err
		}
		response = r
		return r.PaidAmount, r.Status, nil
	})
	if err != nil {
		return "", err
	}
	return formatResponse(response.Status, response.Raw, response.PaidAmount)
}

func (p *Plugin) pay(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		URL       string            `json:"url"`
		Method    string            `json:"method"`
		Body      json.RawMessage   `json:"body"`
		Headers   map[string]string `json:"headers"`
		MaxAmount string            `json:"maxAmount"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}
	c, err := p.skillClient()
	if err != nil {
		return "", err
	}

	if args.MaxAmount == "" {
		args.MaxAmount = client.DefaultPayMaxAmount
	}
	limit, err := x402.ParseAtomicAmount(args.MaxAmount)
	if err != nil {
		return "", err
	}
	// the negotiator rejects anything above what the session has left
	if remaining, limited := p.governor.Remaining(); limited && remaining.Cmp(limit) < 0 {
		limit = remaining
	}
	if args.Method == "" {
		args.Method = http.MethodGet
	}

	opts := client.PayOptions{
		Method:    args.Method,
		Headers:   args.Headers,
		MaxAmount: limit.String(),
	}
	if len(args.Body) > 0 && string(args.Body) != "null" {
		opts.Body = args.Body
	}

	var status int
	var data []byte
	var paidAmount string
	err = p.paid("0", func() (string, int, error) {
		result, err := c.Pay(ctx, args.URL, opts)
		if err != nil {
			return "", 0, err
		}
		status, data, paidAmount = result.Status, result.Data, result.PaidAmount
		return result.PaidAmount, result.Status, nil
	})
	if err != nil {
		return "", err
	}
	return formatResponse(status, data, paidAmount)
}

func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

// formatResponse renders a call result for the agent. Error statuses are
// returned as errors so the tool result is flagged.
func formatResponse(status int, body []byte, paidAmount string) (string, error) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(body)
	}

	if status >= http.StatusBadRequest {
		return "", fmt.Errorf("request failed with status %d: %s", status, pretty.String())
	}
	text := pretty.String()
	if paidAmount != "" && paidAmount != "0" {
		text += fmt.Sprintf("\n(paid %s atomic USDC)", paidAmount)
	}
	return text, nil
}
