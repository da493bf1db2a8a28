package mcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/client"
	"github.com/skillpay/x402-skills/spend"
)

// SkillCost is the atomic USDC price checked against the session budget
// before each skill call
const SkillCost = "10000"

// Config configures a Plugin
type Config struct {
	// PrivateKey is optional; skillpay_setup can provide one later
	PrivateKey string
	APIURL     string
	Network    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Plugin owns one agent session: a lazily created skill client and the
// session spend governor
type Plugin struct {
	config   Config
	governor *spend.Governor
	logger   *slog.Logger

	mu     sync.Mutex
	client *client.Client

	// held across budget check, paid call and record
	payMu sync.Mutex
}

// NewPlugin creates a plugin session. A configured but malformed key is an
// ErrConfiguration; a missing key is not.
func NewPlugin(config Config, governor *spend.Governor) (*Plugin, error) {
	if governor == nil {
		return nil, fmt.Errorf("%w: spend governor is required", x402.ErrConfiguration)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	p := &Plugin{
		config:   config,
		governor: governor,
		logger:   config.Logger,
	}
	if config.PrivateKey != "" {
		if _, err := p.connect(config.PrivateKey); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Address is the session wallet, or empty before setup
func (p *Plugin) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return ""
	}
	return p.client.Address()
}

// Governor is the session spend governor
func (p *Plugin) Governor() *spend.Governor {
	return p.governor
}

func (p *Plugin) connect(privateKey string) (*client.Client, error) {
	c, err := client.New(client.Config{
		PrivateKey: privateKey,
		APIURL:     p.config.APIURL,
		Network:    p.config.Network,
		HTTPClient: p.config.HTTPClient,
		Logger:     p.logger,
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
	p.logger.Info("wallet configured", "address", c.Address())
	return c, nil
}

func (p *Plugin) skillClient() (*client.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil, x402.NewPaymentError(x402.ErrConfiguration, x402.ErrCodeMissingKey,
			"no wallet configured: call skillpay_setup or set SKILLPAY_PRIVATE_KEY", nil)
	}
	return p.client, nil
}

// SetupResult is returned by skillpay_setup
type SetupResult struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey,omitempty"`
	Generated  bool   `json:"generated"`
	Network    string `json:"network"`
	Note       string `json:"note"`
}

// Setup imports privateKey, or generates a fresh key when it is empty.
// The generated key is returned once so the caller can store it.
func (p *Plugin) Setup(privateKey string) (*SetupResult, error) {
	generated := privateKey == ""
	if generated {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate key: %w", x402.ErrConfiguration, err)
		}
		privateKey = hexutil.Encode(crypto.FromECDSA(key))
	}

	c, err := p.connect(privateKey)
	if err != nil {
		return nil, err
	}

	result := &SetupResult{
		Address:   c.Address(),
		Generated: generated,
		Network:   c.Network(),
		Note:      "Wallet ready. Fund it with USDC on " + c.Network() + " to pay for skill calls.",
	}
	if generated {
		result.PrivateKey = privateKey
		result.Note = "Generated a new wallet. Save the private key, then fund the address with USDC on " + c.Network() + "."
	}
	return result, nil
}

// paid runs call under the session budget. The budget is checked against
// cost beforehand. The amount call reports as paid is recorded only when the
// final status is below 400, since a rejected retry was never settled.
func (p *Plugin) paid(cost string, call func() (string, int, error)) error {
	p.payMu.Lock()
	defer p.payMu.Unlock()

	if err := p.reserve(cost); err != nil {
		return err
	}
	paid, status, err := call()
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		p.logger.Warn("payment not settled, spend not recorded", "status", status, "attempted", paid)
		return nil
	}
	p.record(paid)
	return nil
}

// reserve checks cost against the session budget
func (p *Plugin) reserve(cost string) error {
	if p.governor.CanSpend(cost) {
		return nil
	}
	status := p.governor.Status()
	return x402.NewPaymentError(x402.ErrBudgetExceeded, x402.ErrCodeBudgetExceeded,
		fmt.Sprintf("session spend limit reached: spent $%s of $%s", status.Spent, status.MaxBudget),
		map[string]interface{}{"cost": cost, "remaining": status.Remaining})
}

// record adds a settled payment to the session spend
func (p *Plugin) record(paid string) {
	if paid == "" || paid == "0" {
		return
	}
	if err := p.governor.RecordSpend(paid); err != nil {
		p.logger.Error("failed to record spend", "amount", paid, "error", err)
	}
}
