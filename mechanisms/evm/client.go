package evm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/types"
)

// ExactEvmClient signs EIP-3009 authorizations for the exact scheme and wraps
// them in the envelope matching the offer's protocol version.
type ExactEvmClient struct {
	signer ClientEvmSigner
	now    func() time.Time
	random io.Reader
}

// ClientOption configures an ExactEvmClient
type ClientOption func(*ExactEvmClient)

// WithClock overrides the wall clock used for the validity window
func WithClock(now func() time.Time) ClientOption {
	return func(c *ExactEvmClient) {
		c.now = now
	}
}

// WithRandom overrides the nonce source
func WithRandom(r io.Reader) ClientOption {
	return func(c *ExactEvmClient) {
		c.random = r
	}
}

// NewExactEvmClient creates a new ExactEvmClient
func NewExactEvmClient(signer ClientEvmSigner, opts ...ClientOption) *ExactEvmClient {
	c := &ExactEvmClient{
		signer: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the scheme identifier
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// Address returns the payer address
func (c *ExactEvmClient) Address() string {
	return c.signer.Address()
}

// CreateAuthorization builds and signs a fresh authorization for requirements.
// Every call draws a new nonce.
func (c *ExactEvmClient) CreateAuthorization(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (*ExactEIP3009Payload, error) {
	value, err := x402.ParseAtomicAmount(requirements.Amount)
	if err != nil {
		return nil, err
	}

	nonce, err := CreateNonce(c.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", x402.ErrSigning, err)
	}

	validAfter, validBefore := CreateValidityWindow(c.now().Unix(), requirements.MaxTimeoutSeconds)

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	domain := ResolveDomain(requirements)
	signature, err := c.signAuthorization(ctx, authorization, domain)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign authorization: %w", x402.ErrSigning, err)
	}

	return &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}, nil
}

// SignPayment signs the offer's requirement and returns the proof header to
// attach to the retried request.
func (c *ExactEvmClient) SignPayment(ctx context.Context, offer x402.PaymentOffer) (x402.PaymentHeader, error) {
	requirements := offer.Requirements()
	if requirements.Scheme == "" {
		requirements.Scheme = SchemeExact
	}
	if requirements.Scheme != SchemeExact {
		return x402.PaymentHeader{}, x402.NewPaymentError(x402.ErrSigning, x402.ErrCodeUnsupportedScheme,
			fmt.Sprintf("unsupported scheme: %s", requirements.Scheme), nil)
	}

	evmPayload, err := c.CreateAuthorization(ctx, requirements)
	if err != nil {
		return x402.PaymentHeader{}, err
	}
	payload, err := json.Marshal(evmPayload)
	if err != nil {
		return x402.PaymentHeader{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var (
		name     string
		envelope interface{}
	)
	switch o := offer.(type) {
	case x402.OfferV1:
		name = x402.HeaderPayment
		envelope = types.PaymentPayloadV1{
			X402Version: o.X402Version(),
			Scheme:      requirements.Scheme,
			Network:     string(requirements.Network),
			Payload:     payload,
		}
	case x402.OfferV2:
		name = x402.HeaderPaymentSignature
		envelope = types.PaymentPayloadV2{
			X402Version: x402.ProtocolVersionV2,
			Resource:    types.ResourceInfoFrom(o.Resource),
			Accepted:    types.FromRequirementsV2(requirements),
			Payload:     payload,
		}
	default:
		return x402.PaymentHeader{}, fmt.Errorf("unsupported offer type %T", offer)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return x402.PaymentHeader{}, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return x402.PaymentHeader{
		Name:  name,
		Value: base64.StdEncoding.EncodeToString(data),
	}, nil
}

// signAuthorization signs the EIP-3009 authorization using EIP-712
func (c *ExactEvmClient) signAuthorization(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	domain NetworkDomain,
) ([]byte, error) {
	message, err := AuthorizationMessage(authorization)
	if err != nil {
		return nil, err
	}
	return c.signer.SignTypedData(ctx, domain.TypedDataDomain(), TransferWithAuthorizationTypes, "TransferWithAuthorization", message)
}

// DecodePaymentHeader decodes a proof header value into its EIP-3009 payload.
// The returned version is read from the envelope.
func DecodePaymentHeader(value string) (int, *ExactEIP3009Payload, error) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid base64 payment header: %w", err)
	}
	version, err := types.DetectVersion(data)
	if err != nil {
		return 0, nil, err
	}

	var raw json.RawMessage
	if version == x402.ProtocolVersionV2 {
		p, err := types.ToPaymentPayloadV2(data)
		if err != nil {
			return 0, nil, err
		}
		raw = p.Payload
	} else {
		p, err := types.ToPaymentPayloadV1(data)
		if err != nil {
			return 0, nil, err
		}
		raw = p.Payload
	}

	var payload ExactEIP3009Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, nil, fmt.Errorf("invalid exact payload: %w", err)
	}
	return version, &payload, nil
}
