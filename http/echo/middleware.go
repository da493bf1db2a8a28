package echo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	x402 "github.com/skillpay/x402-skills"
	x402http "github.com/skillpay/x402-skills/http"
)

// DefaultProbeTimeout bounds the facilitator availability check
const DefaultProbeTimeout = 5 * time.Second

// Config configures the echo payment middleware
type Config struct {
	Routes      x402http.RoutesConfig
	Facilitator x402http.FacilitatorClient
	Logger      *slog.Logger
	// Probe checks facilitator availability before installing
	Probe bool
}

// PaymentMiddleware compiles cfg.Routes and returns an enforcing middleware.
// A failed probe returns an error wrapping ErrGatewayDegraded.
func PaymentMiddleware(cfg Config) (echo.MiddlewareFunc, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Facilitator == nil {
		cfg.Facilitator = x402http.NewHTTPFacilitatorClient(nil)
	}

	if cfg.Probe {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultProbeTimeout)
		defer cancel()
		if _, err := cfg.Facilitator.GetSupported(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", x402.ErrGatewayDegraded, err)
		}
	}

	service, err := x402http.NewResourceService(cfg.Routes,
		x402http.WithFacilitatorClient(cfg.Facilitator),
		x402http.WithServiceLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}
	return WithService(service), nil
}

// WithService enforces payment for the routes priced by service
func WithService(service *x402http.ResourceService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			result := service.ProcessHTTPRequest(ctx, x402http.HTTPRequestContext{
				Adapter: &echoAdapter{ctx: c},
				Path:    req.URL.Path,
				Method:  req.Method,
			})

			switch result.Type {
			case x402http.ResultNoPaymentRequired:
				return next(c)
			case x402http.ResultPaymentError:
				return writeInstructions(c, result.Response)
			}

			response := c.Response()
			original := response.Writer
			buffered := &bufferedWriter{header: original.Header(), body: &bytes.Buffer{}, statusCode: http.StatusOK}
			response.Writer = buffered

			handlerErr := next(c)
			if handlerErr != nil {
				// the error handler writes into the buffer
				c.Error(handlerErr)
			}
			response.Writer = original

			if handlerErr != nil || buffered.statusCode >= http.StatusBadRequest {
				buffered.flushTo(original)
				return nil
			}

			headers, err := service.ProcessSettlement(ctx, result.Verified)
			if err != nil {
				for _, name := range []string{echo.HeaderContentType, echo.HeaderContentLength} {
					original.Header().Del(name)
				}
				failed := service.SettlementFailed(result.Verified, err)
				response.Committed = false
				return writeInstructions(c, failed)
			}
			for name, value := range headers {
				original.Header().Set(name, value)
			}
			buffered.flushTo(original)
			return nil
		}
	}
}

func writeInstructions(c echo.Context, response *x402http.HTTPResponseInstructions) error {
	for name, value := range response.Headers {
		c.Response().Header().Set(name, value)
	}
	if response.IsHTML {
		html, _ := response.Body.(string)
		return c.HTML(response.Status, html)
	}
	return c.JSON(response.Status, response.Body)
}

type echoAdapter struct {
	ctx echo.Context
}

func (a *echoAdapter) GetHeader(name string) string { return a.ctx.Request().Header.Get(name) }
func (a *echoAdapter) GetMethod() string            { return a.ctx.Request().Method }
func (a *echoAdapter) GetPath() string              { return a.ctx.Request().URL.Path }
func (a *echoAdapter) GetAcceptHeader() string      { return a.ctx.Request().Header.Get(echo.HeaderAccept) }
func (a *echoAdapter) GetUserAgent() string         { return a.ctx.Request().UserAgent() }

func (a *echoAdapter) GetURL() string {
	return a.ctx.Scheme() + "://" + a.ctx.Request().Host + a.ctx.Request().URL.Path
}

// bufferedWriter holds the handler's response until settlement completes.
// Headers are shared with the real writer.
type bufferedWriter struct {
	header     http.Header
	body       *bytes.Buffer
	statusCode int
	written    bool
}

func (w *bufferedWriter) Header() http.Header {
	return w.header
}

func (w *bufferedWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) flushTo(dst http.ResponseWriter) {
	dst.WriteHeader(w.statusCode)
	dst.Write(w.body.Bytes())
}
