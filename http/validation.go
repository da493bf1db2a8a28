package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/types"
)

// Base64 regex pattern - requires at least one character
var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// DecodedPayment is a validated payment proof header
type DecodedPayment struct {
	Version int
	// Raw is the decoded envelope JSON, forwarded to the facilitator unchanged
	Raw []byte
	V1  *types.PaymentPayloadV1
	V2  *types.PaymentPayloadV2
}

// ValidateAndDecodePaymentHeader validates and decodes a payment header string.
// It performs validation of:
// - Base64 format
// - JSON structure
// - Required fields and their types for the envelope version
func ValidateAndDecodePaymentHeader(paymentHeader string) (*DecodedPayment, error) {
	if paymentHeader == "" {
		return nil, fmt.Errorf("payment header is empty")
	}

	if !base64Regex.MatchString(paymentHeader) {
		return nil, fmt.Errorf("invalid payment header format: not valid base64")
	}

	decoded, err := base64.StdEncoding.DecodeString(paymentHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid payment header format: base64 decoding failed - %v", err)
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(decoded, &rawPayload); err != nil {
		return nil, fmt.Errorf("invalid payment header format: not valid JSON - %v", err)
	}

	if _, exists := rawPayload["x402Version"]; !exists {
		return nil, fmt.Errorf("missing required field: x402Version")
	}
	versionNumber, ok := rawPayload["x402Version"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid field type: x402Version must be a number")
	}
	version := int(versionNumber)
	if version < x402.ProtocolVersionV1 {
		return nil, fmt.Errorf("invalid value: x402Version must be at least 1")
	}
	if version > x402.ProtocolVersionV2 {
		return nil, fmt.Errorf("unsupported x402Version: %d", version)
	}

	if _, exists := rawPayload["payload"]; !exists {
		return nil, fmt.Errorf("missing required field: payload")
	}
	if _, ok := rawPayload["payload"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid field type: payload must be an object")
	}

	result := &DecodedPayment{Version: version, Raw: decoded}

	if version == x402.ProtocolVersionV1 {
		for _, field := range []string{"scheme", "network"} {
			if _, exists := rawPayload[field]; !exists {
				return nil, fmt.Errorf("missing required field: %s", field)
			}
			if _, ok := rawPayload[field].(string); !ok {
				return nil, fmt.Errorf("invalid field type: %s must be a string", field)
			}
		}
		payload, err := types.ToPaymentPayloadV1(decoded)
		if err != nil {
			return nil, fmt.Errorf("failed to parse payment payload: %v", err)
		}
		result.V1 = payload
		return result, nil
	}

	if _, exists := rawPayload["accepted"]; !exists {
		return nil, fmt.Errorf("missing required field: accepted")
	}
	if _, ok := rawPayload["accepted"].(map[string]interface{}); !ok {
		return nil, fmt.Errorf("invalid field type: accepted must be an object")
	}

	if resource, exists := rawPayload["resource"]; exists && resource != nil {
		resourceMap, ok := resource.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid field type: resource must be an object")
		}
		if _, ok := resourceMap["url"].(string); !ok {
			return nil, fmt.Errorf("invalid field type: resource.url must be a string")
		}
	}

	payload, err := types.ToPaymentPayloadV2(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment payload: %v", err)
	}
	result.V2 = payload
	return result, nil
}
