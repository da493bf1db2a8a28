// Package server hosts priced skills behind an x402 payment gate.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	x402 "github.com/skillpay/x402-skills"
	x402http "github.com/skillpay/x402-skills/http"
	x402gin "github.com/skillpay/x402-skills/http/gin"
	"github.com/skillpay/x402-skills/mechanisms/evm"
)

// Defaults for Config
const (
	DefaultPort            = 4020
	DefaultShutdownTimeout = 10 * time.Second
)

// Config configures a SkillServer
type Config struct {
	// PayTo receives every payment
	PayTo string
	// Network defaults to "base"
	Network string
	// FacilitatorURL defaults to x402http.DefaultFacilitatorURL
	FacilitatorURL string
	// DisableCORS turns off the permissive CORS headers browsers need for x402
	DisableCORS bool
	// Gate enforces payment. Defaults to a gin gate over FacilitatorURL.
	Gate PaymentGate
	// ProbeTimeout bounds the default gate's facilitator check at Install.
	// Zero means x402gin.DefaultProbeTimeout; negative skips the check.
	ProbeTimeout time.Duration
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful shutdown in Listen
	ShutdownTimeout time.Duration
}

// SkillServer registers skills and serves them behind a payment gate.
// Skills must be added before Install; the gate prices the registry once.
type SkillServer struct {
	config Config
	engine *gin.Engine
	logger *slog.Logger

	mu        sync.Mutex
	skills    []Skill
	manifest  *manifestInfo
	installed bool
	degraded  bool
}

type manifestInfo struct {
	name        string
	description string
}

// New creates a server with an empty registry
func New(config Config) *SkillServer {
	if config.Network == "" {
		config.Network = evm.NetworkBase
	}
	if config.FacilitatorURL == "" {
		config.FacilitatorURL = x402http.DefaultFacilitatorURL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = x402gin.DefaultProbeTimeout
	}
	if config.Gate == nil {
		opts := []x402gin.Option{
			x402gin.WithFacilitator(x402http.NewHTTPFacilitatorClient(&x402http.FacilitatorConfig{URL: config.FacilitatorURL})),
			x402gin.WithLogger(config.Logger),
		}
		if config.ProbeTimeout > 0 {
			opts = append(opts, x402gin.WithProbe(config.ProbeTimeout))
		}
		config.Gate = x402gin.NewGate(opts...)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &SkillServer{
		config: config,
		engine: engine,
		logger: config.Logger,
	}
}

// Add registers a skill. Duplicate routes are not rejected: the skill
// registered last for a method and endpoint shadows earlier ones.
func (s *SkillServer) Add(skill Skill) error {
	if skill.Handler == nil {
		return fmt.Errorf("%w: skill %q has no handler", x402.ErrConfiguration, skill.Name)
	}
	if skill.Method == "" {
		return fmt.Errorf("%w: skill %q has no method", x402.ErrConfiguration, skill.Name)
	}
	if !strings.HasPrefix(skill.Endpoint, "/") {
		return fmt.Errorf("%w: skill %q endpoint %q must start with /", x402.ErrConfiguration, skill.Name, skill.Endpoint)
	}
	skill.Method = strings.ToUpper(skill.Method)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return fmt.Errorf("%w: %s %s", x402.ErrRegistrationClosed, skill.Method, skill.Endpoint)
	}
	s.skills = append(s.skills, skill)
	return nil
}

// Skills returns a copy of the registry
func (s *SkillServer) Skills() []Skill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Skill(nil), s.skills...)
}

// Routes prices every registered skill for the payment gate
func (s *SkillServer) Routes() x402http.RoutesConfig {
	routes := x402http.RoutesConfig{}
	for _, skill := range s.Skills() {
		routes[skill.RouteKey()] = x402http.RouteConfig{
			PayTo:       s.config.PayTo,
			Price:       skill.Price,
			Network:     s.config.Network,
			Description: skill.Description,
		}
	}
	return routes
}

// Degraded reports whether the server is serving skills without payment
func (s *SkillServer) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Install closes registration and wires middleware and routes into the
// router. A gate reporting ErrGatewayDegraded is logged and skills are
// served unpaywalled. Calling Install twice is a no-op.
func (s *SkillServer) Install() error {
	s.mu.Lock()
	if s.installed {
		s.mu.Unlock()
		return nil
	}
	s.installed = true
	s.mu.Unlock()

	s.engine.Use(s.requestID())
	if !s.config.DisableCORS {
		s.engine.Use(cors())
	}

	gate, err := s.config.Gate.Middleware(s.Routes())
	switch {
	case errors.Is(err, x402.ErrGatewayDegraded):
		s.logger.Warn("payment gateway unavailable, skills will be served without payment", "error", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
	case err != nil:
		return fmt.Errorf("failed to install payment gate: %w", err)
	default:
		s.engine.Use(gate)
	}

	s.engine.GET("/catalog", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Catalog())
	})
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"skills":   len(s.Skills()),
			"network":  s.config.Network,
			"degraded": s.Degraded(),
		})
	})

	s.mu.Lock()
	manifest := s.manifest
	s.mu.Unlock()
	if manifest != nil {
		s.engine.GET("/manifest.json", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.Manifest(manifest.name, manifest.description))
		})
	}

	for _, skill := range shadowed(s.Skills()) {
		s.engine.Handle(skill.Method, skill.Endpoint, skill.Handler)
	}
	return nil
}

// shadowed keeps the last skill per method and endpoint, in first-seen order
func shadowed(skills []Skill) []Skill {
	index := make(map[string]int, len(skills))
	out := make([]Skill, 0, len(skills))
	for _, skill := range skills {
		key := skill.Method + " " + skill.Endpoint
		if i, ok := index[key]; ok {
			out[i] = skill
			continue
		}
		index[key] = len(out)
		out = append(out, skill)
	}
	return out
}

// ServeManifest exposes Manifest(name, description) at GET /manifest.json.
// It must be called before Install.
func (s *SkillServer) ServeManifest(name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return fmt.Errorf("%w: GET /manifest.json", x402.ErrRegistrationClosed)
	}
	s.manifest = &manifestInfo{name: name, description: description}
	return nil
}

// Handler installs the server if needed and returns its router
func (s *SkillServer) Handler() (http.Handler, error) {
	if err := s.Install(); err != nil {
		return nil, err
	}
	return s.engine, nil
}

// Listen serves on addr until ctx is canceled, then shuts down gracefully
func (s *SkillServer) Listen(ctx context.Context, addr string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("skill server listening",
		"address", listener.Addr().String(),
		"skills", len(s.Skills()),
		"pay_to", s.config.PayTo,
		"network", s.config.Network,
		"degraded", s.Degraded())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("skill server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("skill server shutdown: %w", err)
	}
	s.logger.Info("skill server stopped")
	return nil
}

func (s *SkillServer) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(x402http.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(x402http.HeaderRequestID, id)

		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, "+x402.HeaderPayment+", "+x402.HeaderPaymentSignature)
		c.Header("Access-Control-Expose-Headers", x402.HeaderPaymentResponse+", "+x402.HeaderPaymentSettle+", "+x402.HeaderPaymentRequired)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
