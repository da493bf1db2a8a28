package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	x402 "github.com/skillpay/x402-skills"
)

// EncodeHeader marshals v to JSON and base64 encodes it for use as a header value
func EncodeHeader(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeHeader reverses EncodeHeader into v
func DecodeHeader(value string, v interface{}) error {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid header JSON: %w", err)
	}
	return nil
}

// GetPaymentSettleResponse extracts the settlement result from response headers.
// The v2 header is preferred over the v1 header.
func GetPaymentSettleResponse(header http.Header) (x402.SettleResponse, error) {
	for _, name := range []string{x402.HeaderPaymentSettle, x402.HeaderPaymentResponse} {
		value := header.Get(name)
		if value == "" {
			continue
		}
		var response x402.SettleResponse
		if err := DecodeHeader(value, &response); err != nil {
			return x402.SettleResponse{}, err
		}
		return response, nil
	}
	return x402.SettleResponse{}, fmt.Errorf("payment response header not found")
}
