package types

import (
	"encoding/json"

	x402 "github.com/skillpay/x402-skills"
)

// PaymentPayloadV2 represents a v2 payment payload structure
// V2 has accepted field with nested scheme/network/requirements
type PaymentPayloadV2 struct {
	X402Version int                    `json:"x402Version"`
	Resource    *ResourceInfoV2        `json:"resource,omitempty"`
	Accepted    PaymentRequirementsV2  `json:"accepted"`
	Payload     json.RawMessage        `json:"payload"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentRequirementsV2 represents v2 payment requirements structure
type PaymentRequirementsV2 struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequiredV2 represents a v2 402 response structure
type PaymentRequiredV2 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Resource    *ResourceInfoV2         `json:"resource,omitempty"`
	Accepts     []PaymentRequirementsV2 `json:"accepts"`
	Extensions  map[string]interface{}  `json:"extensions,omitempty"`
}

// ResourceInfoV2 describes the resource being accessed
type ResourceInfoV2 struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Canonical converts the v2 wire shape to the version-independent requirements.
// The resource descriptor, when present, fills in resource and description.
func (r PaymentRequirementsV2) Canonical(resource *ResourceInfoV2) x402.PaymentRequirements {
	req := x402.PaymentRequirements{
		Scheme:            r.Scheme,
		Network:           x402.Network(r.Network),
		Amount:            r.Amount,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: r.MaxTimeoutSeconds,
		Asset:             r.Asset,
		Extra:             r.Extra,
	}
	if resource != nil {
		req.Resource = resource.URL
		req.Description = resource.Description
		req.MimeType = resource.MimeType
	}
	return req
}

// FromRequirementsV2 builds the v2 wire shape
func FromRequirementsV2(r x402.PaymentRequirements) PaymentRequirementsV2 {
	return PaymentRequirementsV2{
		Scheme:            r.Scheme,
		Network:           string(r.Network),
		Asset:             r.Asset,
		Amount:            r.Amount,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: r.MaxTimeoutSeconds,
		Extra:             r.Extra,
	}
}

// ResourceInfoFrom converts the canonical descriptor to its v2 wire shape
func ResourceInfoFrom(info *x402.ResourceInfo) *ResourceInfoV2 {
	if info == nil {
		return nil
	}
	return &ResourceInfoV2{URL: info.URL, Description: info.Description, MimeType: info.MimeType}
}

// Info converts the wire descriptor back to the canonical one
func (r *ResourceInfoV2) Info() *x402.ResourceInfo {
	if r == nil {
		return nil
	}
	return &x402.ResourceInfo{URL: r.URL, Description: r.Description, MimeType: r.MimeType}
}

// Unmarshal helpers

// ToPaymentPayloadV2 unmarshals bytes to v2 payment payload
func ToPaymentPayloadV2(data []byte) (*PaymentPayloadV2, error) {
	var payload PaymentPayloadV2
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToPaymentRequiredV2 unmarshals bytes to v2 payment required response
func ToPaymentRequiredV2(data []byte) (*PaymentRequiredV2, error) {
	var required PaymentRequiredV2
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, err
	}
	return &required, nil
}
