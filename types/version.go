package types

import (
	"encoding/json"
	"fmt"

	x402 "github.com/skillpay/x402-skills"
)

// DetectVersion reads the x402Version field of a JSON envelope.
// A missing field is reported as version 1.
func DetectVersion(data []byte) (int, error) {
	var probe struct {
		X402Version *int `json:"x402Version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid x402 envelope: %w", err)
	}
	if probe.X402Version == nil {
		return x402.ProtocolVersionV1, nil
	}
	switch *probe.X402Version {
	case x402.ProtocolVersionV1, x402.ProtocolVersionV2:
		return *probe.X402Version, nil
	default:
		return 0, fmt.Errorf("unsupported x402 version: %d", *probe.X402Version)
	}
}
