// Package wsapi is the management API and WebSocket gateway: health/ready
// probes, a Prometheus scrape endpoint, and the upgrade handler that speaks
// the WebSocket frame protocol.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
	"github.com/nodewatch/storj-node-monitor/infrastructure/metrics"
	"github.com/nodewatch/storj-node-monitor/infrastructure/middleware"
	"github.com/nodewatch/storj-node-monitor/internal/alert"
	"github.com/nodewatch/storj-node-monitor/internal/analytics"
	"github.com/nodewatch/storj-node-monitor/internal/broadcast"
	"github.com/nodewatch/storj-node-monitor/internal/model"
	"github.com/nodewatch/storj-node-monitor/internal/nodestate"
	"github.com/nodewatch/storj-node-monitor/internal/stats"
	"github.com/nodewatch/storj-node-monitor/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the stats engine, persistent store, analytics, and alert
// manager behind one HTTP router.
type Server struct {
	hub       *broadcast.Hub
	engine    *stats.Engine
	store     *store.Store
	baselines *analytics.Baselines
	alerts    *alert.Manager
	registry  *nodestate.Registry
	nodes     []model.Node
	log       *logging.Logger

	statsWindowMinutes int

	mwCfg       MiddlewareConfig
	rateLimiter *middleware.RateLimiter
}

// MiddlewareConfig tunes the middleware chain Router wraps the management
// API in. Zero values fall back to the defaults each underlying middleware
// already applies.
type MiddlewareConfig struct {
	CORSAllowedOrigins  []string
	RequestTimeout      time.Duration
	MaxRequestBodyBytes int64

	RateLimitEnabled   bool
	RateLimitPerSecond int
	RateLimitBurst     int
}

// NewServer wires a Server. nodes is the static fleet definition, used for
// the init greeting and the /api/v1/nodes listing. registry may
// be nil in tests that don't exercise the latency frames.
func NewServer(hub *broadcast.Hub, engine *stats.Engine, st *store.Store, baselines *analytics.Baselines, alerts *alert.Manager, registry *nodestate.Registry, nodes []model.Node, statsWindowMinutes int, log *logging.Logger, mwCfg MiddlewareConfig) *Server {
	s := &Server{
		hub: hub, engine: engine, store: st, baselines: baselines, alerts: alerts,
		registry: registry, nodes: nodes, statsWindowMinutes: statsWindowMinutes, log: log,
		mwCfg: mwCfg,
	}
	if mwCfg.RateLimitEnabled {
		perSecond := mwCfg.RateLimitPerSecond
		if perSecond <= 0 {
			perSecond = 50
		}
		burst := mwCfg.RateLimitBurst
		if burst <= 0 {
			burst = perSecond * 2
		}
		s.rateLimiter = middleware.NewRateLimiter(perSecond, burst, log)
		s.rateLimiter.StartCleanup(5 * time.Minute)
	}
	return s
}

// Router builds the gorilla/mux router serving every HTTP endpoint. Every
// route except /ws is wrapped in the full management-API middleware chain:
// recovery, security headers, CORS, logging/tracing, metrics, rate limiting,
// request timeout, and body-size limiting.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	recoveryMW := middleware.NewRecoveryMiddleware(s.log).Handler
	corsMW := middleware.NewCORSMiddleware(&middleware.CORSConfig{
		AllowedOrigins: s.mwCfg.CORSAllowedOrigins,
	}).Handler
	tracingMW := middleware.NewTracingMiddleware(s.log).Handler // also runs LoggingMiddleware

	// The WebSocket upgrade is a long-lived connection: it keeps recovery,
	// CORS, and logging, but skips the timeout and body-limit middleware
	// below, which would otherwise tear the connection down mid-stream.
	ws := recoveryMW(corsMW(tracingMW(http.HandlerFunc(s.handleWebSocket))))
	r.Handle("/ws", ws).Methods(http.MethodGet)

	api := r.PathPrefix("").Subrouter()
	api.Use(recoveryMW)
	api.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	api.Use(corsMW)
	api.Use(tracingMW)
	if m := metrics.Global(); m != nil && metrics.Enabled() {
		api.Use(middleware.MetricsMiddleware("storj-node-monitor", m))
	}
	if s.rateLimiter != nil {
		api.Use(s.rateLimiter.Handler)
	}
	api.Use(middleware.NewTimeoutMiddleware(s.mwCfg.RequestTimeout).Handler)
	api.Use(middleware.NewBodyLimitMiddleware(s.mwCfg.MaxRequestBodyBytes).Handler)

	api.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	api.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	api.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.registerRESTRoutes(api)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.DB().PingContext(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.log != nil {
			s.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}

	client := broadcast.NewClient(conn)
	s.hub.Register(client)
	s.sendInit(client)

	s.readPump(client)
}

// sendInit greets a newly connected client with the fleet's node names, so
// the UI can populate its view selector before the first stats_update.
func (s *Server) sendInit(c *broadcast.Client) {
	names := make([]string, 0, len(s.nodes))
	for _, n := range s.nodes {
		names = append(names, n.Name)
	}
	s.send(c, "init", map[string]interface{}{"nodes": names})
}
