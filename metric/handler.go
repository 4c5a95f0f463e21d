package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/hapticlink/errors"
)

const (
	defaultPort = 9090
	defaultPath = "/metrics"
)

// Server exposes a MetricsRegistry on its own port, apart from the gateway
type Server struct {
	port     int
	path     string
	registry *MetricsRegistry

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a metrics server. Zero port and empty path use 9090
// and /metrics.
func NewServer(port int, path string, registry *MetricsRegistry) *Server {
	if port == 0 {
		port = defaultPort
	}
	if path == "" {
		path = defaultPath
	}
	return &Server{port: port, path: path, registry: registry}
}

// Handler serves the registry at the configured path and a /health endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start listens until Stop is called, which makes it return nil
func (s *Server) Start() error {
	s.mu.Lock()
	switch {
	case s.registry == nil:
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrMissingConfig, "metric", "Start", "check registry")
	case s.srv != nil:
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("already listening on %d", s.port), "metric", "Start", "start server")
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapFatal(err, "metric", "Start", fmt.Sprintf("listen on port %d", s.port))
	}
	return nil
}

// Stop closes the listener. The server can be started again afterwards.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	err := s.srv.Close()
	s.srv = nil
	return errors.WrapTransient(err, "metric", "Stop", "close server")
}

// Address returns the scrape URL on localhost
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}
