package evm_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	evmsigners "github.com/skillpay/x402-skills/signers/evm"
	"github.com/skillpay/x402-skills/types"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type failingSigner struct {
	calls int
}

func (f *failingSigner) Address() string { return "0x0000000000000000000000000000000000000001" }

func (f *failingSigner) SignTypedData(
	ctx context.Context,
	domain evm.TypedDataDomain,
	types map[string][]evm.TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	f.calls++
	return nil, errors.New("hardware wallet unplugged")
}

func testRequirements() x402.PaymentRequirements {
	return x402.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base",
		Amount:            "10000",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Asset:             evm.USDCBaseAddress,
		MaxTimeoutSeconds: 300,
	}
}

func newTestClient(t *testing.T, now time.Time) (*evm.ExactEvmClient, *evmsigners.ClientSigner) {
	t.Helper()
	signer, err := evmsigners.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	return evm.NewExactEvmClient(signer, evm.WithClock(func() time.Time { return now })), signer
}

func decodeHeader(t *testing.T, value string) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(value)
	require.NoError(t, err)
	return data
}

func TestSignPayment_V1Envelope(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	client, signer := newTestClient(t, now)
	req := testRequirements()

	header, err := client.SignPayment(context.Background(), x402.OfferV1{Accepted: req})
	require.NoError(t, err)
	assert.Equal(t, x402.HeaderPayment, header.Name)

	envelope, err := types.ToPaymentPayloadV1(decodeHeader(t, header.Value))
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.X402Version)
	assert.Equal(t, "exact", envelope.Scheme)
	assert.Equal(t, "base", envelope.Network)

	var payload evm.ExactEIP3009Payload
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))

	auth := payload.Authorization
	assert.True(t, strings.EqualFold(signer.Address(), auth.From))
	assert.Equal(t, req.PayTo, auth.To)
	assert.Equal(t, "10000", auth.Value)
	assert.Equal(t, "1699999400", auth.ValidAfter)
	assert.Equal(t, "1700000300", auth.ValidBefore)
	assert.Len(t, auth.Nonce, 66)

	recovered, err := evm.RecoverAuthorizationSigner(auth, evm.ResolveDomain(req), payload.Signature)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestSignPayment_V2Envelope(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	client, signer := newTestClient(t, now)
	req := testRequirements()
	req.Network = "eip155:8453"
	req.MaxTimeoutSeconds = 0

	offer := x402.OfferV2{
		Accepted: req,
		Resource: &x402.ResourceInfo{URL: "https://api.example/balance/0x1", Description: "balance"},
	}
	header, err := client.SignPayment(context.Background(), offer)
	require.NoError(t, err)
	assert.Equal(t, x402.HeaderPaymentSignature, header.Name)

	envelope, err := types.ToPaymentPayloadV2(decodeHeader(t, header.Value))
	require.NoError(t, err)
	assert.Equal(t, 2, envelope.X402Version)
	require.NotNil(t, envelope.Resource)
	assert.Equal(t, "https://api.example/balance/0x1", envelope.Resource.URL)
	assert.Equal(t, "10000", envelope.Accepted.Amount)
	assert.Equal(t, "eip155:8453", envelope.Accepted.Network)

	version, payload, err := evm.DecodePaymentHeader(header.Value)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.True(t, strings.EqualFold(signer.Address(), payload.Authorization.From))
	// default timeout
	assert.Equal(t, "1700000900", payload.Authorization.ValidBefore)
}

func TestSignPayment_WindowContainsNow(t *testing.T) {
	signer, err := evmsigners.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	client := evm.NewExactEvmClient(signer)

	before := time.Now().Unix()
	payload, err := client.CreateAuthorization(context.Background(), testRequirements())
	require.NoError(t, err)

	validAfter, _ := x402.ParseAtomicAmount(payload.Authorization.ValidAfter)
	validBefore, _ := x402.ParseAtomicAmount(payload.Authorization.ValidBefore)
	assert.Less(t, validAfter.Int64(), before)
	assert.Greater(t, validBefore.Int64(), before)
	assert.GreaterOrEqual(t, validBefore.Int64()-validAfter.Int64(), int64(300))
}

func TestSignPayment_FreshNonce(t *testing.T) {
	client, _ := newTestClient(t, time.Unix(1_700_000_000, 0))

	first, err := client.CreateAuthorization(context.Background(), testRequirements())
	require.NoError(t, err)
	second, err := client.CreateAuthorization(context.Background(), testRequirements())
	require.NoError(t, err)

	assert.NotEqual(t, first.Authorization.Nonce, second.Authorization.Nonce)
	assert.NotEqual(t, first.Signature, second.Signature)
}

func TestSignPayment_InjectedRandomness(t *testing.T) {
	signer, err := evmsigners.NewClientSignerFromPrivateKey(testPrivateKey)
	require.NoError(t, err)
	client := evm.NewExactEvmClient(signer, evm.WithRandom(bytes.NewReader(bytes.Repeat([]byte{0x11}, 32))))

	payload, err := client.CreateAuthorization(context.Background(), testRequirements())
	require.NoError(t, err)
	assert.Equal(t, "0x"+strings.Repeat("11", 32), payload.Authorization.Nonce)
}

func TestSignPayment_Errors(t *testing.T) {
	t.Run("signer failure wraps ErrSigning", func(t *testing.T) {
		signer := &failingSigner{}
		client := evm.NewExactEvmClient(signer)

		_, err := client.SignPayment(context.Background(), x402.OfferV1{Accepted: testRequirements()})
		require.Error(t, err)
		assert.ErrorIs(t, err, x402.ErrSigning)
		assert.Equal(t, 1, signer.calls)
	})

	t.Run("invalid amount is a validation error", func(t *testing.T) {
		signer := &failingSigner{}
		client := evm.NewExactEvmClient(signer)
		req := testRequirements()
		req.Amount = "-5"

		_, err := client.SignPayment(context.Background(), x402.OfferV1{Accepted: req})
		assert.ErrorIs(t, err, x402.ErrValidation)
		assert.Zero(t, signer.calls)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		client := evm.NewExactEvmClient(&failingSigner{})
		req := testRequirements()
		req.Scheme = "upto"

		_, err := client.SignPayment(context.Background(), x402.OfferV2{Accepted: req})
		assert.ErrorIs(t, err, x402.ErrSigning)
	})
}
