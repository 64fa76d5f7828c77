package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/better-wallet/controller/internal/config"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/metrics"
	"github.com/better-wallet/controller/internal/middleware"
)

// Server is the relay proxy's HTTP server.
type Server struct {
	config      *config.Config
	proxy       *Proxy
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	httpServer  *http.Server
}

// NewServer wires the proxy behind the middleware chain. m may be nil when
// metrics are disabled.
func NewServer(cfg *config.Config, p *Proxy, m *metrics.Metrics) *Server {
	s := &Server{
		config:      cfg,
		proxy:       p,
		metrics:     m,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Relayed submissions wait for the relayer lock and the node.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

// Handler returns the routed handler: /health and /metrics bypass the relay
// middleware, everything else reaches the proxy.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.Handle("/", middleware.Chain(s.proxy,
		middleware.RequestID,
		middleware.Logging,
		s.rateLimiter.Limit,
		middleware.LimitBody(s.config.MaxBodySize),
	))
	return mux
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	logger.Info(context.Background(), "relay proxy listening",
		"addr", s.config.ListenAddr,
		"upstream", middleware.RedactURL(s.config.UpstreamRPCURL),
		"metrics", s.metrics != nil,
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
