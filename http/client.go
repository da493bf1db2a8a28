package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	x402 "github.com/skillpay/x402-skills"
)

// HeaderRequestID correlates the unpaid and paid attempts of one call
const HeaderRequestID = "X-Request-Id"

// PaymentSigner turns a parsed offer into a proof header
type PaymentSigner interface {
	SignPayment(ctx context.Context, offer x402.PaymentOffer) (x402.PaymentHeader, error)
}

// Client performs a priced HTTP call: send, detect 402, sign, retry once.
// A Client holds no per-call state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	signer     PaymentSigner
	logger     *slog.Logger
	now        func() time.Time
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client. Deadlines belong there or on ctx.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a negotiator around signer
func NewClient(signer PaymentSigner, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		signer:     signer,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallResult is the outcome of a priced call
type CallResult struct {
	Status     int             `json:"status"`
	Data       json.RawMessage `json:"data"`
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	PaidAmount string          `json:"paidAmount"`
	Elapsed    time.Duration   `json:"-"`
}

// ElapsedMs reports the wall-clock duration of the call in milliseconds
func (r *CallResult) ElapsedMs() int64 {
	return r.Elapsed.Milliseconds()
}

// Decode unmarshals the response data into v
func (r *CallResult) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

type callOptions struct {
	maxAmount string
	headers   map[string]string
}

// CallOption configures a single call
type CallOption func(*callOptions)

// WithMaxAmount refuses to sign when the required atomic amount exceeds max
func WithMaxAmount(max string) CallOption {
	return func(o *callOptions) {
		o.maxAmount = max
	}
}

// WithHeaders adds request headers, overriding the JSON defaults
func WithHeaders(headers map[string]string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

var nonJSONPlaceholder = json.RawMessage(`{"error":"non-json response"}`)

// Call sends method url with an optional JSON body. A non-402 response is
// returned as is with PaidAmount "0". A 402 triggers exactly one sign and
// retry; whatever the retry returns, including another 402, is the result.
func (c *Client) Call(ctx context.Context, method, url string, body interface{}, opts ...CallOption) (*CallResult, error) {
	options := &callOptions{}
	for _, opt := range opts {
		opt(options)
	}

	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	var payload []byte
	if body != nil && sendsBody(method) {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "method", method, "url", url)
	start := c.now()

	resp, err := c.send(ctx, method, url, payload, requestID, options.headers, nil)
	if err != nil {
		return nil, err
	}

	result := &CallResult{
		Status:     resp.status,
		Data:       resp.data(),
		URL:        url,
		Method:     method,
		PaidAmount: "0",
	}
	if resp.status != http.StatusPaymentRequired {
		result.Elapsed = c.now().Sub(start)
		logger.Debug("call completed without payment", "status", resp.status)
		return result, nil
	}

	offer, err := ParsePaymentRequired(resp.header, resp.body)
	if err != nil {
		return nil, err
	}
	requirements := offer.Requirements()
	if err := requirements.ValidateAmount(); err != nil {
		logger.Warn("malformed payment requirements", "amount", requirements.Amount)
		return nil, err
	}

	if options.maxAmount != "" {
		if err := checkMaxAmount(requirements.Amount, options.maxAmount); err != nil {
			logger.Warn("payment refused", "required", requirements.Amount, "max", options.maxAmount)
			return nil, err
		}
	}

	proof, err := c.signer.SignPayment(ctx, offer)
	if err != nil {
		return nil, err
	}
	logger.Info("payment signed",
		"x402_version", offer.X402Version(),
		"network", requirements.Network,
		"amount", requirements.Amount,
		"pay_to", requirements.PayTo)

	paid, err := c.send(ctx, method, url, payload, requestID, options.headers, &proof)
	if err != nil {
		return nil, err
	}

	result.Status = paid.status
	result.Data = paid.data()
	result.PaidAmount = requirements.Amount
	result.Elapsed = c.now().Sub(start)

	if paid.status == http.StatusPaymentRequired {
		logger.Warn("payment rejected", "status", paid.status)
	} else {
		logger.Debug("paid call completed", "status", paid.status)
	}
	return result, nil
}

// GetWithPayment performs a GET with payment handling and returns the raw response
func (c *Client) GetWithPayment(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostWithPayment performs a POST with payment handling and returns the raw response
func (c *Client) PostWithPayment(ctx context.Context, url string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do sends req through a PaymentRoundTripper built on the client's transport
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return WrapClient(c.httpClient, c.signer, WithRoundTripLogger(c.logger)).Do(req)
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

func (r *rawResponse) data() json.RawMessage {
	if len(r.body) == 0 || !json.Valid(r.body) {
		return nonJSONPlaceholder
	}
	return json.RawMessage(r.body)
}

func (c *Client) send(
	ctx context.Context,
	method, url string,
	payload []byte,
	requestID string,
	headers map[string]string,
	proof *x402.PaymentHeader,
) (*rawResponse, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderRequestID, requestID)
	if proof != nil {
		req.Header.Set(proof.Name, proof.Value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", x402.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", x402.ErrTransport, err)
	}

	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

func sendsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

func checkMaxAmount(required, max string) error {
	requiredAmount, err := x402.ParseAtomicAmount(required)
	if err != nil {
		return err
	}
	maxAmount, err := x402.ParseAtomicAmount(max)
	if err != nil {
		return err
	}
	if requiredAmount.Cmp(maxAmount) > 0 {
		return x402.NewBudgetError(required, max)
	}
	return nil
}
