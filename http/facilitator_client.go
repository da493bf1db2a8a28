package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/types"
)

// FacilitatorClient verifies and settles payment proofs on behalf of a
// resource server. Payload and requirements are passed in their wire form.
type FacilitatorClient interface {
	Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.VerifyResponse, error)
	Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.SettleResponse, error)
	GetSupported(ctx context.Context) (x402.SupportedResponse, error)
}

// HTTPFacilitatorClient communicates with remote facilitator services over HTTP
type HTTPFacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
	identifier   string
}

// AuthProvider generates authentication headers for facilitator requests
type AuthProvider interface {
	// GetAuthHeaders returns authentication headers for each endpoint
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers for facilitator endpoints
type AuthHeaders struct {
	Verify    map[string]string
	Settle    map[string]string
	Supported map[string]string
}

// StaticAuthProvider sends the same headers to every endpoint
type StaticAuthProvider map[string]string

// GetAuthHeaders implements AuthProvider
func (p StaticAuthProvider) GetAuthHeaders(ctx context.Context) (AuthHeaders, error) {
	return AuthHeaders{Verify: p, Settle: p, Supported: p}, nil
}

// BearerAuth returns a StaticAuthProvider with an Authorization bearer token
func BearerAuth(token string) StaticAuthProvider {
	return StaticAuthProvider{"Authorization": "Bearer " + token}
}

// FacilitatorConfig configures the HTTP facilitator client
type FacilitatorConfig struct {
	// URL is the base URL of the facilitator service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration

	// Identifier for this facilitator (optional)
	Identifier string
}

// DefaultFacilitatorURL is the default public facilitator
const DefaultFacilitatorURL = "https://facilitator.payai.network"

// getSupportedRetries is the number of retry attempts for GetSupported on 429 rate limit errors
const getSupportedRetries = 3

// getSupportedRetryBaseDelay is the base delay for exponential backoff on retries
var getSupportedRetryBaseDelay = 1 * time.Second

// NewHTTPFacilitatorClient creates a new HTTP facilitator client
func NewHTTPFacilitatorClient(config *FacilitatorConfig) *HTTPFacilitatorClient {
	if config == nil {
		config = &FacilitatorConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	identifier := config.Identifier
	if identifier == "" {
		identifier = url
	}

	return &HTTPFacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
		identifier:   identifier,
	}
}

// URL returns the facilitator base URL
func (c *HTTPFacilitatorClient) URL() string {
	return c.url
}

// Identifier returns the facilitator identifier used in logs
func (c *HTTPFacilitatorClient) Identifier() string {
	return c.identifier
}

// Verify checks if a payment is valid (supports both V1 and V2).
// A rejection reported by the facilitator is returned as a response with
// IsValid false rather than as an error.
func (c *HTTPFacilitatorClient) Verify(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.VerifyResponse, error) {
	var verifyResponse x402.VerifyResponse
	status, responseBody, err := c.post(ctx, "/verify", payloadBytes, requirementsBytes, func(h AuthHeaders) map[string]string { return h.Verify })
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(responseBody, &verifyResponse); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal verify response (%d): %w", x402.ErrTransport, status, err)
	}

	if status != http.StatusOK && verifyResponse.InvalidReason == "" {
		return nil, fmt.Errorf("%w: facilitator verify failed (%d): %s", x402.ErrTransport, status, string(responseBody))
	}
	if status != http.StatusOK {
		verifyResponse.IsValid = false
	}
	return &verifyResponse, nil
}

// Settle executes a payment (supports both V1 and V2).
// A failure reported by the facilitator is returned as a response with
// Success false rather than as an error.
func (c *HTTPFacilitatorClient) Settle(ctx context.Context, payloadBytes []byte, requirementsBytes []byte) (*x402.SettleResponse, error) {
	var settleResponse x402.SettleResponse
	status, responseBody, err := c.post(ctx, "/settle", payloadBytes, requirementsBytes, func(h AuthHeaders) map[string]string { return h.Settle })
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(responseBody, &settleResponse); err != nil {
		return nil, fmt.Errorf("%w: facilitator settle failed (%d): %s", x402.ErrTransport, status, string(responseBody))
	}

	if status != http.StatusOK && settleResponse.ErrorReason == "" {
		return nil, fmt.Errorf("%w: facilitator settle failed (%d): %s", x402.ErrTransport, status, string(responseBody))
	}
	if status != http.StatusOK {
		settleResponse.Success = false
	}
	return &settleResponse, nil
}

// GetSupported gets supported payment kinds (shared by both V1 and V2).
// Retries up to 3 times with exponential backoff on 429 rate limit errors.
func (c *HTTPFacilitatorClient) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	var lastErr error

	for attempt := range getSupportedRetries {
		req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/supported", nil)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("failed to create supported request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		if c.authProvider != nil {
			authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
			if err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to get auth headers: %w", err)
			}
			for k, v := range authHeaders.Supported {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("%w: supported request failed: %w", x402.ErrTransport, err)
		}

		responseBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return x402.SupportedResponse{}, fmt.Errorf("%w: failed to read response body: %w", x402.ErrTransport, err)
		}

		if resp.StatusCode == http.StatusOK {
			var supportedResponse x402.SupportedResponse
			if err := json.Unmarshal(responseBody, &supportedResponse); err != nil {
				return x402.SupportedResponse{}, fmt.Errorf("failed to decode supported response: %w", err)
			}
			return supportedResponse, nil
		}

		lastErr = fmt.Errorf("%w: facilitator supported failed (%d): %s", x402.ErrTransport, resp.StatusCode, string(responseBody))

		// Retry on 429 with exponential backoff, except on the last attempt
		if resp.StatusCode == http.StatusTooManyRequests && attempt < getSupportedRetries-1 {
			delay := getSupportedRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return x402.SupportedResponse{}, ctx.Err()
			}
		}

		return x402.SupportedResponse{}, lastErr
	}

	return x402.SupportedResponse{}, lastErr
}

// post sends {x402Version, paymentPayload, paymentRequirements} to path
func (c *HTTPFacilitatorClient) post(
	ctx context.Context,
	path string,
	payloadBytes, requirementsBytes []byte,
	pick func(AuthHeaders) map[string]string,
) (int, []byte, error) {
	version, err := types.DetectVersion(payloadBytes)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to detect version: %w", err)
	}

	requestBody := map[string]interface{}{
		"x402Version":         version,
		"paymentPayload":      json.RawMessage(payloadBytes),
		"paymentRequirements": json.RawMessage(requirementsBytes),
	}

	body, err := json.Marshal(requestBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.authProvider != nil {
		authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range pick(authHeaders) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s request failed: %w", x402.ErrTransport, path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response body: %w", x402.ErrTransport, err)
	}
	return resp.StatusCode, responseBody, nil
}

var _ FacilitatorClient = (*HTTPFacilitatorClient)(nil)
