package server

import (
	"fmt"

	"github.com/gin-gonic/gin"

	x402 "github.com/skillpay/x402-skills"
	x402http "github.com/skillpay/x402-skills/http"
)

// PaymentGate turns priced routes into enforcing middleware. An error
// wrapping x402.ErrGatewayDegraded means verification is unavailable;
// any other error aborts installation.
type PaymentGate interface {
	Middleware(routes x402http.RoutesConfig) (gin.HandlerFunc, error)
}

// DegradedGate is a gate with no verifier behind it. Servers using it
// serve every route unpaywalled.
type DegradedGate struct {
	Reason string
}

// Middleware implements PaymentGate
func (g DegradedGate) Middleware(x402http.RoutesConfig) (gin.HandlerFunc, error) {
	reason := g.Reason
	if reason == "" {
		reason = "no payment verifier configured"
	}
	return nil, fmt.Errorf("%w: %s", x402.ErrGatewayDegraded, reason)
}
