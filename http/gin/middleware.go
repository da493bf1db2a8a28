package gin

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	x402 "github.com/skillpay/x402-skills"
	x402http "github.com/skillpay/x402-skills/http"
)

// DefaultProbeTimeout bounds the facilitator availability check at install
const DefaultProbeTimeout = 5 * time.Second

// Gate installs x402 enforcement on a gin router
type Gate struct {
	facilitator  x402http.FacilitatorClient
	logger       *slog.Logger
	probe        bool
	probeTimeout time.Duration
}

// Option configures a Gate
type Option func(*Gate)

// WithFacilitator sets the facilitator used to verify and settle proofs
func WithFacilitator(client x402http.FacilitatorClient) Option {
	return func(g *Gate) {
		g.facilitator = client
	}
}

// WithLogger sets the gate logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithProbe makes Middleware call the facilitator's /supported endpoint
// and report ErrGatewayDegraded when it cannot be reached.
func WithProbe(timeout time.Duration) Option {
	return func(g *Gate) {
		g.probe = true
		g.probeTimeout = timeout
	}
}

// NewGate creates a gin gate. Without WithFacilitator it talks to the
// default public facilitator.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		logger:       slog.Default(),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.facilitator == nil {
		g.facilitator = x402http.NewHTTPFacilitatorClient(nil)
	}
	return g
}

// Middleware compiles routes and returns the enforcing handler
func (g *Gate) Middleware(routes x402http.RoutesConfig) (gin.HandlerFunc, error) {
	if g.probe {
		ctx, cancel := context.WithTimeout(context.Background(), g.probeTimeout)
		defer cancel()
		if _, err := g.facilitator.GetSupported(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", x402.ErrGatewayDegraded, err)
		}
	}

	service, err := x402http.NewResourceService(routes,
		x402http.WithFacilitatorClient(g.facilitator),
		x402http.WithServiceLogger(g.logger))
	if err != nil {
		return nil, err
	}
	return PaymentMiddleware(service), nil
}

// PaymentMiddleware enforces payment for the routes priced by service.
// Paid handlers are buffered so the response can be replaced when settlement fails.
func PaymentMiddleware(service *x402http.ResourceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		result := service.ProcessHTTPRequest(ctx, x402http.HTTPRequestContext{
			Adapter: &ginAdapter{ctx: c},
			Path:    c.Request.URL.Path,
			Method:  c.Request.Method,
		})

		switch result.Type {
		case x402http.ResultNoPaymentRequired:
			c.Next()
			return
		case x402http.ResultPaymentError:
			writeInstructions(c, result.Response)
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter

		// Failed handlers are not charged
		if c.IsAborted() || writer.statusCode >= http.StatusBadRequest {
			writer.flush()
			return
		}

		headers, err := service.ProcessSettlement(ctx, result.Verified)
		if err != nil {
			writeInstructions(c, service.SettlementFailed(result.Verified, err))
			return
		}
		for name, value := range headers {
			c.Header(name, value)
		}
		writer.flush()
	}
}

func writeInstructions(c *gin.Context, response *x402http.HTTPResponseInstructions) {
	for name, value := range response.Headers {
		c.Header(name, value)
	}
	if response.IsHTML {
		html, _ := response.Body.(string)
		c.Abort()
		c.Data(response.Status, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.AbortWithStatusJSON(response.Status, response.Body)
}

// ginAdapter exposes a gin request to the resource service
type ginAdapter struct {
	ctx *gin.Context
}

func (a *ginAdapter) GetHeader(name string) string { return a.ctx.GetHeader(name) }
func (a *ginAdapter) GetMethod() string            { return a.ctx.Request.Method }
func (a *ginAdapter) GetPath() string              { return a.ctx.Request.URL.Path }
func (a *ginAdapter) GetAcceptHeader() string      { return a.ctx.GetHeader("Accept") }
func (a *ginAdapter) GetUserAgent() string         { return a.ctx.GetHeader("User-Agent") }

func (a *ginAdapter) GetURL() string {
	scheme := "http"
	if a.ctx.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + a.ctx.Request.Host + a.ctx.Request.URL.Path
}

// responseWriter captures the handler's response until settlement completes
type responseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

func (w *responseWriter) WriteHeaderNow() {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
}

func (w *responseWriter) Status() int {
	return w.statusCode
}

func (w *responseWriter) Written() bool {
	return w.written
}

func (w *responseWriter) Size() int {
	return w.body.Len()
}

func (w *responseWriter) flush() {
	w.ResponseWriter.WriteHeader(w.statusCode)
	w.ResponseWriter.Write(w.body.Bytes())
}
