package x402

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this module wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrConfiguration is a missing or invalid signing key or required setup value
	ErrConfiguration = errors.New("x402: configuration error")
	// ErrNoPaymentRequirements means a 402 response carried no usable requirement
	ErrNoPaymentRequirements = errors.New("x402: no payment requirements found")
	// ErrSigning is an unusable key or a rejected typed-data signature
	ErrSigning = errors.New("x402: signing failed")
	// ErrBudgetExceeded is a required amount over the caller or session cap
	ErrBudgetExceeded = errors.New("x402: budget exceeded")
	// ErrValidation is malformed address, hash or amount input
	ErrValidation = errors.New("x402: validation failed")
	// ErrTransport is a network or IO failure
	ErrTransport = errors.New("x402: transport failure")
	// ErrGatewayDegraded means payment verification is unavailable and routes are served unpaywalled
	ErrGatewayDegraded = errors.New("x402: payment verification unavailable")
	// ErrRegistrationClosed is returned when a skill is added after the gateway was installed
	ErrRegistrationClosed = errors.New("x402: skill registration is closed")
)

// Common error codes
const (
	ErrCodeInvalidPayment     = "invalid_payment"
	ErrCodePaymentRequired    = "payment_required"
	ErrCodeSignatureInvalid   = "signature_invalid"
	ErrCodeSettlementFailed   = "settlement_failed"
	ErrCodeUnsupportedScheme  = "unsupported_scheme"
	ErrCodeUnsupportedNetwork = "unsupported_network"
	ErrCodeBudgetExceeded     = "budget_exceeded"
	ErrCodeInvalidAddress     = "invalid_address"
	ErrCodeInvalidHash        = "invalid_hash"
	ErrCodeInvalidAmount      = "invalid_amount"
	ErrCodeMissingKey         = "missing_private_key"
	ErrCodeInvalidArguments   = "invalid_arguments"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	// Kind is one of the Err* sentinels above
	Kind error `json:"-"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the error kind to errors.Is
func (e *PaymentError) Unwrap() error {
	return e.Kind
}

// NewPaymentError creates a new payment error
func NewPaymentError(kind error, code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
		Kind:    kind,
	}
}

// NewBudgetError reports a required amount above the allowed maximum
func NewBudgetError(required, max string) *PaymentError {
	return NewPaymentError(ErrBudgetExceeded, ErrCodeBudgetExceeded,
		fmt.Sprintf("payment exceeds max amount: required %s > max %s", required, max),
		map[string]interface{}{
			"required": required,
			"max":      max,
		})
}

// NewValidationError reports malformed input detected before any network call
func NewValidationError(code, message string) *PaymentError {
	return NewPaymentError(ErrValidation, code, message, nil)
}
