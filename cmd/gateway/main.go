// Package main runs the scatter/gather composition gateway.
//
// Routes are read from a YAML file (GATEWAY_ROUTES_FILE); process settings
// come from the environment and an optional .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/composition_layer/internal/cache"
	"github.com/R3E-Network/composition_layer/internal/config"
	"github.com/R3E-Network/composition_layer/internal/gatherers"
	"github.com/R3E-Network/composition_layer/internal/httputil"
	"github.com/R3E-Network/composition_layer/internal/logging"
	"github.com/R3E-Network/composition_layer/internal/metrics"
	"github.com/R3E-Network/composition_layer/internal/scattergather"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadGatewayConfig(".env")
	if err != nil {
		return err
	}
	logger := logging.New("gateway", cfg.LogLevel, cfg.LogFormat)

	responseCache, err := newResponseCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer responseCache.Close()

	collector := metrics.NewCollector("composition").WithRuntimeCollectors()
	clients := httputil.NewClientPool(httputil.ClientPoolConfig{
		Timeout:      cfg.DownstreamTimeout,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	defer clients.CloseIdleConnections()

	services := scattergather.NewServices(
		scattergather.WithServiceLogger(logger.Named("scattergather")),
		scattergather.WithServiceMetrics(collector),
		scattergather.WithServiceClients(clients),
		scattergather.WithServiceCache(responseCache),
	)
	if err := gatherers.RegisterBuiltins(services); err != nil {
		return fmt.Errorf("register gatherers: %w", err)
	}

	routes, err := config.LoadFileOrEmpty(cfg.RoutesFile)
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg, services, collector, logger)
	if err != nil {
		return err
	}
	if err := gw.mapRoutes(routes.Get(cfg.RoutesSection)); err != nil {
		return fmt.Errorf("map routes from %s: %w", cfg.RoutesFile, err)
	}
	services.Factories.Seal()
	gw.startBackground(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).WithField("routes", len(gw.registrar.Routes())).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newResponseCache(ctx context.Context, cfg *config.GatewayConfig, logger *logging.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory response cache")
		return cache.NewMemoryCache(time.Minute), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(dialCtx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("using redis response cache")
	return c, nil
}
