package http

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/mechanisms/evm"
	"github.com/skillpay/x402-skills/types"
)

// DefaultMaxTimeoutSeconds is advertised when a route sets no timeout
const DefaultMaxTimeoutSeconds = 60

// RouteConfig prices one route
type RouteConfig struct {
	// Scheme defaults to "exact"
	Scheme string
	PayTo  string
	// Price is a dollar string such as "$0.01"
	Price string
	// Network accepts legacy names and CAIP-2 identifiers, default "base"
	Network string
	// Asset defaults to the network's stablecoin
	Asset             string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
}

// RoutesConfig maps "METHOD /path/[param]" keys to their price.
// A key without a method matches every method; "*" matches everything.
type RoutesConfig map[string]RouteConfig

// HTTPAdapter exposes the parts of a framework request the service needs
type HTTPAdapter interface {
	GetHeader(name string) string
	GetMethod() string
	GetPath() string
	GetURL() string
	GetAcceptHeader() string
	GetUserAgent() string
}

// HTTPRequestContext is one request as seen by the service
type HTTPRequestContext struct {
	Adapter HTTPAdapter
	Path    string
	Method  string
}

// ProcessResultType classifies the outcome of ProcessHTTPRequest
type ProcessResultType string

const (
	ResultNoPaymentRequired ProcessResultType = "no-payment-required"
	ResultPaymentVerified   ProcessResultType = "payment-verified"
	ResultPaymentError      ProcessResultType = "payment-error"
)

// HTTPResponseInstructions tells a binding what to write instead of calling the handler
type HTTPResponseInstructions struct {
	Status  int
	Headers map[string]string
	Body    interface{}
	IsHTML  bool
}

// VerifiedPayment is a proof the facilitator accepted, awaiting settlement
type VerifiedPayment struct {
	Version           int
	PayloadBytes      []byte
	RequirementsBytes []byte
	Requirements      x402.PaymentRequirements
	Payer             string
}

// HTTPProcessResult is the outcome of ProcessHTTPRequest
type HTTPProcessResult struct {
	Type     ProcessResultType
	Response *HTTPResponseInstructions
	Verified *VerifiedPayment
}

type compiledRoute struct {
	key          string
	method       string
	pattern      *regexp.Regexp
	requirements x402.PaymentRequirements
}

// ResourceService is the router-agnostic payment gate: it matches priced
// routes, answers unpaid requests with 402, verifies proofs and settles them.
type ResourceService struct {
	compiledRoutes []compiledRoute
	facilitator    FacilitatorClient
	settlements    *settlementCache
	logger         *slog.Logger
}

// ServiceOption configures a ResourceService
type ServiceOption func(*ResourceService)

// WithFacilitatorClient sets the verifier used for proofs
func WithFacilitatorClient(client FacilitatorClient) ServiceOption {
	return func(s *ResourceService) {
		s.facilitator = client
	}
}

// WithSettlementTTL sets how long successful settlements are replayed for a
// repeated proof. Zero or negative disables the cache.
func WithSettlementTTL(ttl time.Duration) ServiceOption {
	return func(s *ResourceService) {
		s.settlements = nil
		if ttl > 0 {
			s.settlements = newSettlementCache(ttl)
		}
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *ResourceService) {
		s.logger = logger
	}
}

// NewResourceService compiles routes into matchers and prices them in atomic units
func NewResourceService(routes RoutesConfig, opts ...ServiceOption) (*ResourceService, error) {
	s := &ResourceService{
		settlements: newSettlementCache(DefaultSettlementTTL),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.facilitator == nil {
		s.facilitator = NewHTTPFacilitatorClient(nil)
	}

	for key, config := range routes {
		route, err := compileRoute(key, config)
		if err != nil {
			return nil, err
		}
		s.compiledRoutes = append(s.compiledRoutes, route)
	}

	// Most specific first: longer patterns win, method-bound before any-method
	sort.Slice(s.compiledRoutes, func(i, j int) bool {
		a, b := s.compiledRoutes[i], s.compiledRoutes[j]
		if len(a.pattern.String()) != len(b.pattern.String()) {
			return len(a.pattern.String()) > len(b.pattern.String())
		}
		if (a.method == "") != (b.method == "") {
			return a.method != ""
		}
		return a.key < b.key
	})

	return s, nil
}

// ParsePrice converts "$0.01" into atomic units of the network's default asset
func ParsePrice(price string, network x402.Network) (string, error) {
	amount := strings.TrimPrefix(strings.TrimSpace(price), "$")
	value, err := evm.ParseAmount(amount, evm.DefaultAsset(network).Decimals)
	if err != nil {
		return "", x402.NewValidationError(x402.ErrCodeInvalidAmount, fmt.Sprintf("invalid price %q: %v", price, err))
	}
	return value.String(), nil
}

func compileRoute(key string, config RouteConfig) (compiledRoute, error) {
	method, path := "", strings.TrimSpace(key)
	if fields := strings.Fields(key); len(fields) == 2 {
		method, path = strings.ToUpper(fields[0]), fields[1]
	}

	pattern, err := compilePath(path)
	if err != nil {
		return compiledRoute{}, fmt.Errorf("invalid route %q: %w", key, err)
	}

	network := x402.Network(config.Network)
	if network == "" {
		network = evm.NetworkBase
	}
	scheme := config.Scheme
	if scheme == "" {
		scheme = x402.SchemeExact
	}
	timeout := config.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	amount, err := ParsePrice(config.Price, network)
	if err != nil {
		return compiledRoute{}, fmt.Errorf("route %q: %w", key, err)
	}

	asset := evm.DefaultAsset(network)
	requirements := x402.PaymentRequirements{
		Scheme:            scheme,
		Network:           network,
		Amount:            amount,
		Description:       config.Description,
		MimeType:          config.MimeType,
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: timeout,
		Asset:             asset.Address,
		Extra: map[string]interface{}{
			"name":    asset.Name,
			"version": asset.Version,
		},
	}
	if config.Asset != "" && !strings.EqualFold(config.Asset, asset.Address) {
		requirements.Asset = config.Asset
		requirements.Extra = nil
	}
	if requirements.MimeType == "" {
		requirements.MimeType = "application/json"
	}

	return compiledRoute{
		key:          key,
		method:       method,
		pattern:      pattern,
		requirements: requirements,
	}, nil
}

// compilePath turns "/balance/[address]" into an anchored regexp
func compilePath(path string) (*regexp.Regexp, error) {
	if path == "*" {
		return regexp.Compile(`^.*$`)
	}
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		switch {
		case segment == "*":
			segments[i] = ".*"
		case strings.HasPrefix(segment, "[") && strings.HasSuffix(segment, "]"):
			segments[i] = "[^/]+"
		default:
			segments[i] = regexp.QuoteMeta(segment)
		}
	}
	return regexp.Compile("^" + strings.Join(segments, "/") + "/?$")
}

// Match returns the requirements priced for method and path
func (s *ResourceService) Match(method, path string) (x402.PaymentRequirements, bool) {
	method = strings.ToUpper(method)
	for _, route := range s.compiledRoutes {
		if route.method != "" && route.method != method {
			continue
		}
		if route.pattern.MatchString(path) {
			return route.requirements, true
		}
	}
	return x402.PaymentRequirements{}, false
}

// ProcessHTTPRequest decides whether the handler may run
func (s *ResourceService) ProcessHTTPRequest(ctx context.Context, reqCtx HTTPRequestContext) HTTPProcessResult {
	requirements, ok := s.Match(reqCtx.Method, reqCtx.Path)
	if !ok {
		return HTTPProcessResult{Type: ResultNoPaymentRequired}
	}
	if url := reqCtx.Adapter.GetURL(); url != "" {
		requirements.Resource = url
	} else {
		requirements.Resource = reqCtx.Path
	}

	header := reqCtx.Adapter.GetHeader(x402.HeaderPaymentSignature)
	if header == "" {
		header = reqCtx.Adapter.GetHeader(x402.HeaderPayment)
	}
	if header == "" {
		return s.paymentRequired(reqCtx, requirements, "X-PAYMENT header is required")
	}

	decoded, err := ValidateAndDecodePaymentHeader(header)
	if err != nil {
		return s.paymentRequired(reqCtx, requirements, err.Error())
	}

	if reason := mismatch(decoded, requirements); reason != "" {
		return s.paymentRequired(reqCtx, requirements, reason)
	}

	requirementsBytes, err := wireRequirements(decoded.Version, requirements)
	if err != nil {
		return s.serverError(decoded.Version, err)
	}

	verifyResponse, err := s.facilitator.Verify(ctx, decoded.Raw, requirementsBytes)
	if err != nil {
		s.logger.Error("payment verification failed", "path", reqCtx.Path, "error", err)
		return s.serverError(decoded.Version, err)
	}
	if !verifyResponse.IsValid {
		s.logger.Info("invalid payment", "path", reqCtx.Path, "reason", verifyResponse.InvalidReason, "payer", verifyResponse.Payer)
		return s.paymentRequired(reqCtx, requirements, verifyResponse.InvalidReason)
	}

	s.logger.Debug("payment verified", "path", reqCtx.Path, "payer", verifyResponse.Payer)
	return HTTPProcessResult{
		Type: ResultPaymentVerified,
		Verified: &VerifiedPayment{
			Version:           decoded.Version,
			PayloadBytes:      decoded.Raw,
			RequirementsBytes: requirementsBytes,
			Requirements:      requirements,
			Payer:             verifyResponse.Payer,
		},
	}
}

// ProcessSettlement settles a verified payment and returns the response
// headers carrying the settlement result.
func (s *ResourceService) ProcessSettlement(ctx context.Context, verified *VerifiedPayment) (map[string]string, error) {
	settle := func() (*x402.SettleResponse, error) {
		return s.facilitator.Settle(ctx, verified.PayloadBytes, verified.RequirementsBytes)
	}
	var settleResponse *x402.SettleResponse
	var err error
	if s.settlements != nil {
		var replayed bool
		settleResponse, replayed, err = s.settlements.settle(ctx, settlementKey(verified.PayloadBytes), settle)
		if replayed {
			s.logger.Debug("replaying settlement", "payer", verified.Payer, "transaction", settleResponse.Transaction)
		}
	} else {
		settleResponse, err = settle()
	}
	if err != nil {
		return nil, err
	}
	if !settleResponse.Success {
		return nil, x402.NewPaymentError(nil, x402.ErrCodeSettlementFailed, settleResponse.ErrorReason, map[string]interface{}{
			"payer":       settleResponse.Payer,
			"transaction": settleResponse.Transaction,
		})
	}

	encoded, err := EncodeHeader(settleResponse)
	if err != nil {
		return nil, err
	}

	name := x402.HeaderPaymentResponse
	if verified.Version == x402.ProtocolVersionV2 {
		name = x402.HeaderPaymentSettle
	}
	s.logger.Info("payment settled",
		"payer", settleResponse.Payer,
		"transaction", settleResponse.Transaction,
		"amount", verified.Requirements.Amount)
	return map[string]string{name: encoded}, nil
}

// SettlementFailed builds the 402 written when settlement fails after the handler ran
func (s *ResourceService) SettlementFailed(verified *VerifiedPayment, err error) *HTTPResponseInstructions {
	s.logger.Error("settlement failed", "payer", verified.Payer, "error", err)
	return &HTTPResponseInstructions{
		Status: http.StatusPaymentRequired,
		Body:   requiredBody(verified.Requirements, err.Error()),
	}
}

func (s *ResourceService) paymentRequired(reqCtx HTTPRequestContext, requirements x402.PaymentRequirements, reason string) HTTPProcessResult {
	headers := map[string]string{}
	v2 := types.PaymentRequiredV2{
		X402Version: x402.ProtocolVersionV2,
		Error:       reason,
		Resource: &types.ResourceInfoV2{
			URL:         requirements.Resource,
			Description: requirements.Description,
			MimeType:    requirements.MimeType,
		},
		Accepts: []types.PaymentRequirementsV2{v2Requirements(requirements)},
	}
	if encoded, err := EncodeHeader(v2); err == nil {
		headers[x402.HeaderPaymentRequired] = encoded
	} else {
		s.logger.Error("failed to encode payment required header", "error", err)
	}

	response := &HTTPResponseInstructions{
		Status:  http.StatusPaymentRequired,
		Headers: headers,
		Body:    requiredBody(requirements, reason),
	}
	if isWebBrowser(reqCtx.Adapter) {
		response.IsHTML = true
		response.Body = paywallHTML(requirements)
	}
	return HTTPProcessResult{Type: ResultPaymentError, Response: response}
}

func (s *ResourceService) serverError(version int, err error) HTTPProcessResult {
	return HTTPProcessResult{
		Type: ResultPaymentError,
		Response: &HTTPResponseInstructions{
			Status: http.StatusInternalServerError,
			Body: map[string]interface{}{
				"error":       err.Error(),
				"x402Version": version,
			},
		},
	}
}

func requiredBody(requirements x402.PaymentRequirements, reason string) types.PaymentRequiredV1 {
	return types.PaymentRequiredV1{
		X402Version: x402.ProtocolVersionV1,
		Error:       reason,
		Accepts:     []types.PaymentRequirementsV1{v1Requirements(requirements)},
	}
}

func v1Requirements(requirements x402.PaymentRequirements) types.PaymentRequirementsV1 {
	requirements.Network = evm.ToLegacy(requirements.Network)
	return types.FromRequirementsV1(requirements)
}

func v2Requirements(requirements x402.PaymentRequirements) types.PaymentRequirementsV2 {
	requirements.Network = evm.ToCAIP2(requirements.Network)
	return types.FromRequirementsV2(requirements)
}

func wireRequirements(version int, requirements x402.PaymentRequirements) ([]byte, error) {
	if version == x402.ProtocolVersionV2 {
		return json.Marshal(v2Requirements(requirements))
	}
	return json.Marshal(v1Requirements(requirements))
}

// mismatch reports why a proof does not answer the route's requirements
func mismatch(decoded *DecodedPayment, requirements x402.PaymentRequirements) string {
	if decoded.V1 != nil {
		if decoded.V1.Scheme != requirements.Scheme {
			return fmt.Sprintf("unsupported scheme: %s", decoded.V1.Scheme)
		}
		if evm.ToCAIP2(x402.Network(decoded.V1.Network)) != evm.ToCAIP2(requirements.Network) {
			return fmt.Sprintf("unsupported network: %s", decoded.V1.Network)
		}
		return ""
	}

	accepted := decoded.V2.Accepted
	switch {
	case accepted.Scheme != requirements.Scheme:
		return fmt.Sprintf("unsupported scheme: %s", accepted.Scheme)
	case evm.ToCAIP2(x402.Network(accepted.Network)) != evm.ToCAIP2(requirements.Network):
		return fmt.Sprintf("unsupported network: %s", accepted.Network)
	case accepted.Amount != requirements.Amount:
		return "accepted amount does not match requirements"
	case !strings.EqualFold(accepted.PayTo, requirements.PayTo):
		return "accepted payTo does not match requirements"
	}
	return ""
}

func isWebBrowser(adapter HTTPAdapter) bool {
	return strings.Contains(adapter.GetAcceptHeader(), "text/html") &&
		strings.Contains(adapter.GetUserAgent(), "Mozilla")
}

func paywallHTML(requirements x402.PaymentRequirements) string {
	amount, _ := x402.ParseAtomicAmount(requirements.Amount)
	price := "0.00"
	if amount != nil {
		price = evm.FormatAmount(amount, evm.DefaultAsset(requirements.Network).Decimals, 2)
	}
	return fmt.Sprintf("<html><body><h1>Payment Required</h1><p>%s</p><p>$%s USDC on %s</p></body></html>",
		html.EscapeString(requirements.Description), price, html.EscapeString(string(requirements.Network)))
}
