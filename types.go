package x402

import (
	"fmt"
	"strings"
)

// Protocol versions understood by this module
const (
	ProtocolVersionV1 = 1
	ProtocolVersionV2 = 2
)

// SchemeExact is the only payment scheme negotiated by this module
const SchemeExact = "exact"

// Wire header names
const (
	// HeaderPayment carries a v1 payment proof
	HeaderPayment = "X-PAYMENT"
	// HeaderPaymentResponse carries a v1 settlement result
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
	// HeaderPaymentRequired carries v2 requirements on a 402 response
	HeaderPaymentRequired = "PAYMENT-REQUIRED"
	// HeaderPaymentSignature carries a v2 payment proof
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	// HeaderPaymentSettle carries a v2 settlement result
	HeaderPaymentSettle = "PAYMENT-RESPONSE"
)

// Network represents a blockchain network identifier.
// Legacy v1 names ("base", "base-sepolia") and CAIP-2 identifiers
// ("eip155:8453") are both accepted.
type Network string

// Parse splits a CAIP-2 network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// IsCAIP2 reports whether the network uses the namespace:reference form
func (n Network) IsCAIP2() bool {
	_, _, err := n.Parse()
	return err == nil
}

// PaymentRequirements is the canonical, version-independent description of
// what a provider will accept for a resource. Amount is always in the asset's
// atomic unit, whichever wire field it arrived in.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Amount            string                 `json:"amount"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// DomainOverride returns the signing-domain name and version carried in Extra.
// Empty strings mean "use the protocol default".
func (r PaymentRequirements) DomainOverride() (name, version string) {
	if r.Extra == nil {
		return "", ""
	}
	if v, ok := r.Extra["name"].(string); ok {
		name = v
	}
	if v, ok := r.Extra["version"].(string); ok {
		version = v
	}
	return name, version
}

// ValidateAmount checks that Amount is a non-negative base-10 integer.
func (r PaymentRequirements) ValidateAmount() error {
	_, err := ParseAtomicAmount(r.Amount)
	return err
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentHeader is a ready-to-send proof header. Name depends on the protocol
// version that produced it.
type PaymentHeader struct {
	Name  string
	Value string
}

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind represents a single supported payment configuration
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds a facilitator supports
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions,omitempty"`
}
