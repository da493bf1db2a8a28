package http

import (
	"encoding/json"
	"net/http"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/types"
)

// ParsePaymentRequired extracts the payment offer from a 402 response.
//
// A PAYMENT-REQUIRED header with a non-empty accepts list yields a v2 offer;
// a malformed header is ignored. Otherwise the body is read as a v1 envelope.
// Only the first accepted requirement is used. When neither carries a
// requirement the error wraps x402.ErrNoPaymentRequirements.
func ParsePaymentRequired(header http.Header, body []byte) (x402.PaymentOffer, error) {
	if value := header.Get(x402.HeaderPaymentRequired); value != "" {
		var required types.PaymentRequiredV2
		if err := DecodeHeader(value, &required); err == nil && len(required.Accepts) > 0 {
			return x402.OfferV2{
				Accepted: required.Accepts[0].Canonical(required.Resource),
				Resource: required.Resource.Info(),
			}, nil
		}
	}

	if len(body) > 0 {
		var required types.PaymentRequiredV1
		if err := json.Unmarshal(body, &required); err == nil && len(required.Accepts) > 0 {
			return x402.OfferV1{
				Version:  required.X402Version,
				Accepted: required.Accepts[0].Canonical(),
			}, nil
		}
	}

	return nil, x402.ErrNoPaymentRequirements
}
