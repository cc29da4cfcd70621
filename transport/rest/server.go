// Package rest accepts directives over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/dollygrip/logging"
	"go.viam.com/dollygrip/operation"
	"go.viam.com/dollygrip/transport"
)

// DebugHeader turns on debug logging for the directive in the request body.
const DebugHeader = "X-Dolly-Debug"

const bodyLimit = "64K"

// Config describes the HTTP listener.
type Config struct {
	Address string `json:"address"`
	// JWTSecret, when set, requires an HS256 bearer token on directive requests.
	JWTSecret string `json:"jwt_secret,omitempty"`
	// RateLimit caps directive requests per second from one client address. 0 is unlimited.
	RateLimit float64 `json:"rate_limit,omitempty"`
	RateBurst int     `json:"rate_burst,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Address == "" {
		return errors.Errorf("%s: address is required", path)
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return errors.Wrapf(err, "%s: invalid address", path)
	}
	if cfg.RateLimit < 0 {
		return errors.Errorf("%s: rate_limit cannot be negative", path)
	}
	if cfg.RateBurst < 0 {
		return errors.Errorf("%s: rate_burst cannot be negative", path)
	}
	return nil
}

// A Pump queues directives for handling.
type Pump interface {
	Deliver(ctx context.Context, payload []byte) error
	Pending() int
}

// OperationStatus describes a directive being handled.
type OperationStatus struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Started time.Time `json:"started"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status     string            `json:"status"`
	Pending    int               `json:"pending"`
	Operations []OperationStatus `json:"operations"`
}

// Server serves the directive and health endpoints.
type Server struct {
	cfg    Config
	pump   Pump
	ops    *operation.Manager
	logger logging.Logger
	echo   *echo.Echo

	mu                      sync.Mutex
	listener                net.Listener
	activeBackgroundWorkers sync.WaitGroup
}

// NewServer builds the routes. ops may be nil.
func NewServer(cfg Config, pump Pump, ops *operation.Manager, logger logging.Logger) *Server {
	s := &Server{cfg: cfg, pump: pump, ops: ops, logger: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error != nil {
				logger.Warnw("request failed", "method", v.Method, "uri", v.URI, "status", v.Status, "error", v.Error)
				return nil
			}
			logger.CDebugw(ctx, "request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	directives := e.Group("/directive", middleware.BodyLimit(bodyLimit))
	if cfg.RateLimit > 0 {
		directives.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(cfg.RateLimit),
				Burst: cfg.RateBurst,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
		}))
	}
	if cfg.JWTSecret != "" {
		directives.Use(requireToken([]byte(cfg.JWTSecret)))
	}
	directives.POST("", s.directive)

	s.echo = e
	return s
}

func requireToken(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token").SetInternal(err)
			}
			return next(c)
		}
	}
}

func (s *Server) directive(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return echo.NewHTTPError(http.StatusBadRequest, "directive is not valid JSON")
	}

	ctx := c.Request().Context()
	if key := c.Request().Header.Get(DebugHeader); key != "" {
		ctx = logging.EnableDebugMode(ctx, key)
	}
	if err := s.pump.Deliver(ctx, payload); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) health(c echo.Context) error {
	h := Health{Status: "ok", Pending: s.pump.Pending(), Operations: []OperationStatus{}}
	if s.ops != nil {
		for _, op := range s.ops.All() {
			h.Operations = append(h.Operations, OperationStatus{ID: op.ID.String(), Type: op.Type, Started: op.Started})
		}
	}
	return c.JSON(http.StatusOK, h)
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.cfg.Address)
	}
	s.listener = ln
	s.echo.Listener = ln
	s.logger.Infow("serving directives over http", "address", ln.Addr().String())

	s.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("http server stopped", "error", err)
		}
	}, s.activeBackgroundWorkers.Done)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close shuts the server down gracefully.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	err := s.echo.Shutdown(ctx)
	s.activeBackgroundWorkers.Wait()
	return err
}
