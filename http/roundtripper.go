package http

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// PaymentRoundTripper implements http.RoundTripper with x402 payment handling.
// It follows the same single-retry policy as Client.Call.
type PaymentRoundTripper struct {
	Transport http.RoundTripper
	Signer    PaymentSigner
	// MaxAmount, when set, caps the atomic amount the transport will sign for
	MaxAmount string
	Logger    *slog.Logger
}

// RoundTripOption configures a PaymentRoundTripper
type RoundTripOption func(*PaymentRoundTripper)

// WithRoundTripMaxAmount caps the amount signed by the transport
func WithRoundTripMaxAmount(max string) RoundTripOption {
	return func(t *PaymentRoundTripper) {
		t.MaxAmount = max
	}
}

// WithRoundTripLogger sets the transport logger
func WithRoundTripLogger(logger *slog.Logger) RoundTripOption {
	return func(t *PaymentRoundTripper) {
		t.Logger = logger
	}
}

// WrapClient returns a copy of client whose transport pays 402 responses.
// The original client is not modified.
func WrapClient(client *http.Client, signer PaymentSigner, opts ...RoundTripOption) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	rt := &PaymentRoundTripper{
		Transport: transport,
		Signer:    signer,
		Logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}

	wrapped := *client
	wrapped.Transport = rt
	return &wrapped
}

// RoundTrip implements http.RoundTripper
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderRequestID) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, uuid.NewString())
	}

	// The body may be needed twice
	if req.Body != nil && req.GetBody == nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(bytes.NewReader(data))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	offer, err := ParsePaymentRequired(resp.Header, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	if err := offer.Requirements().ValidateAmount(); err != nil {
		return nil, err
	}
	if t.MaxAmount != "" {
		if err := checkMaxAmount(offer.Requirements().Amount, t.MaxAmount); err != nil {
			return nil, err
		}
	}

	ctx := req.Context()
	proof, err := t.Signer.SignPayment(ctx, offer)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	paymentReq := req.Clone(ctx)
	if req.GetBody != nil {
		paymentReq.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
	}
	paymentReq.Header.Set(proof.Name, proof.Value)

	if t.Logger != nil {
		t.Logger.Debug("retrying with payment",
			"url", req.URL.String(),
			"header", proof.Name,
			"amount", offer.Requirements().Amount)
	}

	return t.Transport.RoundTrip(paymentReq)
}

var _ http.RoundTripper = (*PaymentRoundTripper)(nil)
