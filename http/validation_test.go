package http

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func encodeMap(t *testing.T, payload map[string]interface{}) string {
	t.Helper()
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes)
}

func TestValidateAndDecodePaymentHeader(t *testing.T) {
	t.Run("Empty/Invalid Base64", func(t *testing.T) {
		tests := []struct {
			name          string
			header        string
			expectedError string
		}{
			{
				name:          "empty string",
				header:        "",
				expectedError: "payment header is empty",
			},
			{
				name:          "invalid base64 characters",
				header:        "invalid@#$%",
				expectedError: "invalid payment header format: not valid base64",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ValidateAndDecodePaymentHeader(tt.header)
				if err == nil {
					t.Errorf("expected error but got none")
					return
				}
				if err.Error() != tt.expectedError {
					t.Errorf("expected error %q, got %q", tt.expectedError, err.Error())
				}
			})
		}
	})

	t.Run("Valid Base64 but Invalid JSON", func(t *testing.T) {
		for _, content := range []string{"not json at all", "{invalid json}"} {
			t.Run(content, func(t *testing.T) {
				encoded := base64.StdEncoding.EncodeToString([]byte(content))
				_, err := ValidateAndDecodePaymentHeader(encoded)
				if err == nil {
					t.Errorf("expected error but got none")
					return
				}
				if !strings.HasPrefix(err.Error(), "invalid payment header format: not valid JSON") {
					t.Errorf("expected JSON error, got %q", err.Error())
				}
			})
		}
	})

	t.Run("Missing or Invalid Fields", func(t *testing.T) {
		tests := []struct {
			name          string
			payload       map[string]interface{}
			expectedError string
		}{
			{
				name:          "missing x402Version",
				payload:       map[string]interface{}{"payload": map[string]interface{}{}},
				expectedError: "missing required field: x402Version",
			},
			{
				name:          "x402Version as string",
				payload:       map[string]interface{}{"x402Version": "1", "payload": map[string]interface{}{}},
				expectedError: "invalid field type: x402Version must be a number",
			},
			{
				name:          "x402Version zero",
				payload:       map[string]interface{}{"x402Version": 0, "payload": map[string]interface{}{}},
				expectedError: "invalid value: x402Version must be at least 1",
			},
			{
				name:          "x402Version from the future",
				payload:       map[string]interface{}{"x402Version": 9, "payload": map[string]interface{}{}},
				expectedError: "unsupported x402Version: 9",
			},
			{
				name:          "missing payload",
				payload:       map[string]interface{}{"x402Version": 1, "scheme": "exact", "network": "base"},
				expectedError: "missing required field: payload",
			},
			{
				name:          "payload as string",
				payload:       map[string]interface{}{"x402Version": 1, "payload": "nope"},
				expectedError: "invalid field type: payload must be an object",
			},
			{
				name:          "v1 missing scheme",
				payload:       map[string]interface{}{"x402Version": 1, "network": "base", "payload": map[string]interface{}{}},
				expectedError: "missing required field: scheme",
			},
			{
				name:          "v1 network as number",
				payload:       map[string]interface{}{"x402Version": 1, "scheme": "exact", "network": 8453, "payload": map[string]interface{}{}},
				expectedError: "invalid field type: network must be a string",
			},
			{
				name:          "v2 missing accepted",
				payload:       map[string]interface{}{"x402Version": 2, "payload": map[string]interface{}{}},
				expectedError: "missing required field: accepted",
			},
			{
				name:          "v2 accepted as array",
				payload:       map[string]interface{}{"x402Version": 2, "accepted": []interface{}{}, "payload": map[string]interface{}{}},
				expectedError: "invalid field type: accepted must be an object",
			},
			{
				name: "v2 resource as string",
				payload: map[string]interface{}{
					"x402Version": 2,
					"resource":    "not an object",
					"accepted":    map[string]interface{}{},
					"payload":     map[string]interface{}{},
				},
				expectedError: "invalid field type: resource must be an object",
			},
			{
				name: "v2 resource.url as number",
				payload: map[string]interface{}{
					"x402Version": 2,
					"resource":    map[string]interface{}{"url": 123},
					"accepted":    map[string]interface{}{},
					"payload":     map[string]interface{}{},
				},
				expectedError: "invalid field type: resource.url must be a string",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ValidateAndDecodePaymentHeader(encodeMap(t, tt.payload))
				if err == nil {
					t.Errorf("expected error but got none")
					return
				}
				if err.Error() != tt.expectedError {
					t.Errorf("expected error %q, got %q", tt.expectedError, err.Error())
				}
			})
		}
	})

	t.Run("Valid V2 Payload", func(t *testing.T) {
		payload := map[string]interface{}{
			"x402Version": 2,
			"resource": map[string]interface{}{
				"url":         "http://test.com/api",
				"description": "Test API",
				"mimeType":    "application/json",
			},
			"accepted": map[string]interface{}{
				"scheme":            "exact",
				"network":           "eip155:84532",
				"asset":             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				"amount":            "10000",
				"payTo":             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				"maxTimeoutSeconds": 60,
			},
			"payload": map[string]interface{}{
				"signature": "0x123...",
			},
		}

		decoded, err := ValidateAndDecodePaymentHeader(encodeMap(t, payload))
		if err != nil {
			t.Fatalf("expected no error but got: %v", err)
		}
		if decoded.Version != 2 || decoded.V2 == nil {
			t.Fatalf("expected v2 payload, got version %d", decoded.Version)
		}
		if decoded.V2.Resource.URL != "http://test.com/api" {
			t.Errorf("expected resource.url http://test.com/api, got %s", decoded.V2.Resource.URL)
		}
		if decoded.V2.Accepted.Amount != "10000" {
			t.Errorf("expected accepted.amount 10000, got %s", decoded.V2.Accepted.Amount)
		}
	})

	t.Run("Valid V1 Payload", func(t *testing.T) {
		payload := map[string]interface{}{
			"x402Version": 1,
			"scheme":      "exact",
			"network":     "base",
			"payload": map[string]interface{}{
				"signature": "0xabc",
			},
		}

		decoded, err := ValidateAndDecodePaymentHeader(encodeMap(t, payload))
		if err != nil {
			t.Fatalf("expected no error but got: %v", err)
		}
		if decoded.V1 == nil || decoded.V1.Network != "base" {
			t.Fatalf("expected v1 payload on base, got %+v", decoded.V1)
		}
		if len(decoded.Raw) == 0 {
			t.Error("expected raw envelope bytes")
		}
	})
}
