package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/httputil"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
	"github.com/R3E-Network/composition_layer/internal/middleware"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

// gateway owns the router and the scatter/gather registrar.
// handler is what the server runs: the router, wrapped by CORS when enabled.
type gateway struct {
	router    *mux.Router
	handler   http.Handler
	registrar *scattergather.Registrar
	limiter   *middleware.RateLimiter
	started   time.Time
}

func newGateway(cfg *config.GatewayConfig, services *scattergather.Services, collector *metrics.Collector, logger *logging.Logger) (*gateway, error) {
	router := mux.NewRouter()
	gw := &gateway{router: router, started: time.Now()}

	router.Use(middleware.TracingMiddleware)
	router.Use(middleware.LoggingMiddleware(logger.Named("http")))
	if collector != nil {
		router.Use(middleware.MetricsMiddleware(collector))
	}
	if cfg.RateLimitRPS > 0 {
		gw.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger.Named("ratelimit"))
		router.Use(gw.limiter.Handler)
	}

	router.HandleFunc("/health", gw.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/routes", gw.handleRoutes).Methods(http.MethodGet)
	if collector != nil {
		router.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	}

	// routes only match GET, so preflight must be answered before routing
	gw.handler = router
	if len(cfg.CORSOrigins) > 0 {
		gw.handler = middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler(router)
	}

	gw.registrar = scattergather.NewRegistrar(router, services)
	return gw, nil
}

func (g *gateway) mapRoutes(section config.Section) error {
	_, err := g.registrar.MapScatterGatherFromConfig(section, nil)
	return err
}

func (g *gateway) startBackground(ctx context.Context) {
	if g.limiter != nil {
		g.limiter.StartCleanup(ctx, 5*time.Minute)
	}
}

func (g *gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"routes": len(g.registrar.Routes()),
		"uptime": time.Since(g.started).Round(time.Second).String(),
	})
}

func (g *gateway) handleRoutes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, g.registrar.Routes())
}
