package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/hapticlink/config"
	"github.com/c360/hapticlink/errors"
	"github.com/c360/hapticlink/health"
	"github.com/c360/hapticlink/metric"
)

// SystemName is the component name of the aggregated health status
const SystemName = "hapticd"

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request counts in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) {
		s.metrics = registry.CoreMetrics()
	}
}

// WithHealth serves monitor's aggregate on /health
func WithHealth(monitor *health.Monitor) Option {
	return func(s *Server) {
		s.monitor = monitor
	}
}

// Server is the HTTP and WebSocket front end of the daemon
type Server struct {
	cfg     config.HTTPConfig
	ctrl    Controller
	hub     *Hub
	monitor *health.Monitor
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metric.Metrics
	router  http.Handler
	unsub   func()

	mu      sync.Mutex
	server  *http.Server
	stopped bool
}

// New creates a gateway for ctrl. Controller events are broadcast to
// event stream clients from this point on.
func New(ctrl Controller, cfg config.HTTPConfig, opts ...Option) *Server {
	s := &Server{cfg: cfg, ctrl: ctrl, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(limit, burst)

	s.hub = NewHub(s.logger, originChecker(cfg.CORSOrigins))
	s.unsub = ctrl.Subscribe(s.hub.Publish)
	s.router = s.routes()
	return s
}

// Hub returns the event stream hub. It doubles as the toaster of the mock
// provider.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/history", s.handleHistory)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Post("/vibrate", s.handleVibrate)
			r.Post("/pattern", s.handlePattern)
			r.Post("/stop", s.handleStop)
		})
	})
	return r
}

// Start listens on the configured port and blocks until Stop.
// A clean Stop returns nil, and Start after Stop returns nil at once.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("server already running"), "Gateway", "Start", "server state check")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("Gateway listening", "port", s.cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapFatal(err, "Gateway", "Start", fmt.Sprintf("listen on port %d", s.cfg.Port))
	}
	return nil
}

// Stop drains HTTP requests until ctx expires, then closes event streams
func (s *Server) Stop(ctx context.Context) error {
	s.unsub()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.stopped = true
	s.mu.Unlock()

	var err error
	if srv != nil {
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = errors.WrapTransient(shutdownErr, "Gateway", "Stop", "shutdown HTTP server")
		}
	}
	s.hub.Close()
	return err
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 && websocket.IsWebSocketUpgrade(r) {
			code = http.StatusSwitchingProtocols
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.RecordHTTPRequest(route, strconv.Itoa(code))
		s.logger.Debug("HTTP request",
			"method", r.Method, "route", route, "status", code,
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.ErrRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		writeJSON(w, http.StatusOK, health.NewHealthy(SystemName, "OK"))
		return
	}
	status := s.monitor.AggregateHealth(SystemName)
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.History())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	hello, err := newEnvelope(EnvelopeStatus, s.ctrl.Status())
	if err != nil {
		s.logger.Warn("Failed to encode status snapshot", "error", err)
	}
	s.hub.ServeWS(w, r, hello)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Connect(r.Context()); err != nil {
		code := http.StatusBadGateway
		if stderrors.Is(err, errors.ErrMissingConfig) {
			code = http.StatusServiceUnavailable
		}
		s.logger.Warn("Connect failed", "error", err)
		writeError(w, code, errors.Cause(err))
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Disconnect()
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleVibrate(w http.ResponseWriter, r *http.Request) {
	var req VibrateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, errors.Cause(err))
		return
	}
	s.ctrl.Vibrate(*req.Intensity, req.Duration())
	writeJSON(w, http.StatusAccepted, s.ctrl.Status())
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, errors.Cause(err))
		return
	}
	s.ctrl.VibratePattern(req.Samples, req.Window())
	writeJSON(w, http.StatusAccepted, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.Stop()
	writeJSON(w, http.StatusAccepted, s.ctrl.Status())
}

// decode reads a JSON body into v, replying 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// originChecker matches the Origin header against patterns that may contain
// one "*" wildcard, the same form the CORS middleware accepts. Requests
// without an Origin header are not from a browser and are allowed.
func originChecker(patterns []string) func(*http.Request) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		for _, p := range patterns {
			if matchOrigin(strings.ToLower(p), origin) {
				return true
			}
		}
		return false
	}
}

func matchOrigin(pattern, origin string) bool {
	if pattern == "*" {
		return true
	}
	prefix, suffix, wildcard := strings.Cut(pattern, "*")
	if !wildcard {
		return pattern == origin
	}
	return len(origin) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix)
}
