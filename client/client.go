// Package client calls priced skills, paying for each call with an x402
// transfer authorization signed by a local key.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	x402 "github.com/skillpay/x402-skills"
	x402http "github.com/skillpay/x402-skills/http"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	evmsigners "github.com/skillpay/x402-skills/signers/evm"
)

// DefaultAPIURL is the skill server used when none is configured
const DefaultAPIURL = "http://localhost:4020"

// DefaultPayMaxAmount caps Pay at $1.00 in atomic USDC when no max is given
const DefaultPayMaxAmount = "1000000"

// Config configures a Client
type Config struct {
	// PrivateKey is a hex secp256k1 key holding USDC. Required.
	PrivateKey string
	APIURL     string
	// Network defaults to "base"
	Network    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls skills on one server
type Client struct {
	apiURL  string
	network string
	signer  *evmsigners.ClientSigner
	payer   *x402http.Client
	logger  *slog.Logger
}

// New creates a client. A missing or malformed key is an ErrConfiguration.
func New(config Config) (*Client, error) {
	signer, err := evmsigners.NewClientSignerFromPrivateKey(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	apiURL := strings.TrimRight(config.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	network := config.Network
	if network == "" {
		network = evm.NetworkBase
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []x402http.ClientOption{x402http.WithLogger(logger)}
	if config.HTTPClient != nil {
		opts = append(opts, x402http.WithHTTPClient(config.HTTPClient))
	}

	return &Client{
		apiURL:  apiURL,
		network: network,
		signer:  signer,
		payer:   x402http.NewClient(evm.NewExactEvmClient(signer), opts...),
		logger:  logger,
	}, nil
}

// Address is the paying wallet address
func (c *Client) Address() string {
	return c.signer.Address()
}

// Network is the configured network name
func (c *Client) Network() string {
	return c.network
}

// Request performs a paid call to path on the skill server
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*x402http.CallResult, error) {
	return c.payer.Call(ctx, method, c.apiURL+path, body)
}

// PayOptions configures Pay
type PayOptions struct {
	Method  string
	Body    interface{}
	Headers map[string]string
	// MaxAmount in atomic units, DefaultPayMaxAmount when empty
	MaxAmount string
}

// Pay calls any x402 endpoint, refusing to pay more than opts.MaxAmount
func (c *Client) Pay(ctx context.Context, url string, opts PayOptions) (*x402http.CallResult, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, x402.NewValidationError(x402.ErrCodeInvalidPayment, fmt.Sprintf("invalid url: %q", url))
	}
	maxAmount := opts.MaxAmount
	if maxAmount == "" {
		maxAmount = DefaultPayMaxAmount
	}
	callOpts := []x402http.CallOption{x402http.WithMaxAmount(maxAmount)}
	if len(opts.Headers) > 0 {
		callOpts = append(callOpts, x402http.WithHeaders(opts.Headers))
	}
	return c.payer.Call(ctx, opts.Method, url, opts.Body, callOpts...)
}
