package x402

// PaymentOffer is a parsed "402 Payment Required" prompt. It is a closed set:
// OfferV1 (requirements in the JSON body) or OfferV2 (requirements in the
// PAYMENT-REQUIRED header). Consumers switch on the concrete type once.
type PaymentOffer interface {
	// X402Version is the protocol version the proof must be sent in
	X402Version() int
	// Requirements returns the selected (first) requirement
	Requirements() PaymentRequirements

	sealedOffer()
}

// OfferV1 is a version 1 offer, read from the 402 response body
type OfferV1 struct {
	// Version echoes the body's x402Version field (defaults to 1)
	Version  int
	Accepted PaymentRequirements
}

// X402Version implements PaymentOffer
func (o OfferV1) X402Version() int {
	if o.Version == 0 {
		return ProtocolVersionV1
	}
	return o.Version
}

// Requirements implements PaymentOffer
func (o OfferV1) Requirements() PaymentRequirements { return o.Accepted }

func (OfferV1) sealedOffer() {}

// OfferV2 is a version 2 offer, read from the PAYMENT-REQUIRED header
type OfferV2 struct {
	Accepted PaymentRequirements
	Resource *ResourceInfo
}

// X402Version implements PaymentOffer
func (o OfferV2) X402Version() int { return ProtocolVersionV2 }

// Requirements implements PaymentOffer
func (o OfferV2) Requirements() PaymentRequirements { return o.Accepted }

func (OfferV2) sealedOffer() {}
