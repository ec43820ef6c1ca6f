package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/realtime-ai/realtime-message-gateway/internal/auth"
	"github.com/realtime-ai/realtime-message-gateway/internal/routing"
	"github.com/realtime-ai/realtime-message-gateway/internal/store"
	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

// RouterConfig holds all dependencies needed to build the HTTP router.
// It is populated in main.go after all components are initialized and
// passed to NewRouter as a single struct.
type RouterConfig struct {
	Users         user.Repository
	Router        *routing.Router
	Store         store.Store
	SessionIssuer *auth.Issuer
	BrokerIssuer  *auth.Issuer
	Logger        *zap.Logger

	// AllowedOrigin is the frontend origin answered by the CORS
	// middleware. Empty disables CORS handling.
	AllowedOrigin string

	// WorkerTimeout is the heartbeat freshness bound shared with the
	// router, used by the health and worker-listing endpoints.
	WorkerTimeout time.Duration
}

// NewRouter builds and returns the fully configured Chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(AllowOrigin(cfg.AllowedOrigin))

	authHandler := NewAuthHandler(cfg.Users, cfg.SessionIssuer, cfg.BrokerIssuer, cfg.Logger)
	proxyHandler := NewProxyHandler(cfg.Users, cfg.Router, cfg.Store, cfg.Logger)
	healthHandler := NewHealthHandler(cfg.Store, cfg.WorkerTimeout, cfg.Logger)

	// Browser-facing endpoints.
	r.Post("/auth/login", authHandler.Login)

	// Broker proxy callbacks. Server-to-server; always answered 200 with
	// the result/error conveyed in the body.
	r.Post("/centrifugo/connect", proxyHandler.Connect)
	r.Post("/centrifugo/subscribe", proxyHandler.Subscribe)
	r.Post("/centrifugo/publish", proxyHandler.Publish)

	// Operations.
	r.Get("/health", healthHandler.Health)
	r.Get("/workers", healthHandler.Workers)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
