// Command productd serves the product catalog with resilience guard rails:
// per-resource circuit breakers, rate limiters, retries and timeouts, plus
// monitoring and admin endpoints.
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

	"github.com/EdissonBeltGom/product/api"
	"github.com/EdissonBeltGom/product/catalog"
	"github.com/EdissonBeltGom/product/config"
	"github.com/EdissonBeltGom/product/observe"
	"github.com/EdissonBeltGom/product/resilience"
)

// version is stamped at build time.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, observe.Config{
		ServiceName: "productd",
		Version:     version,
		Tracing: observe.TracingConfig{
			Enabled:   cfg.TracingExporter != "none",
			Exporter:  cfg.TracingExporter,
			SamplePct: cfg.TracingSamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  cfg.MetricsExporter != "none",
			Exporter: cfg.MetricsExporter,
		},
		Logging: observe.LoggingConfig{Enabled: true, Level: cfg.LogLevel},
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()
	logger := obs.Logger()

	registry := resilience.NewRegistry()
	metrics := resilience.NewMetricsRegistry()

	sinks := []resilience.Sink{metrics}
	if cfg.MetricsExporter != "none" {
		otelSink, err := resilience.NewOTelSink(obs.Meter())
		if err != nil {
			return err
		}
		sinks = append(sinks, otelSink)
	}

	pipeline, err := resilience.NewPipeline(registry, resilience.PipelineConfig{}, sinks...)
	if err != nil {
		return err
	}

	repo, err := catalog.NewFileRepository(cfg.DataFile)
	if err != nil {
		return err
	}
	service, err := catalog.NewService(repo, pipeline, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(service, registry, metrics, logger, obs.Tracer(), api.ServerConfig{
		AdminSecret: []byte(cfg.AdminSecret),
		ClientRateLimit: resilience.RateLimiterConfig{
			CapacityPerPeriod: cfg.ClientRateCapacity,
			Period:            cfg.ClientRatePeriod,
		},
	})

	// Sweep idle per-client limiters so the registry stays bounded.
	go func() {
		ticker := time.NewTicker(cfg.IdleEviction / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.EvictIdle(cfg.IdleEviction); n > 0 {
					logger.Debug(ctx, "evicted idle resilience instances", observe.F("count", n))
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", observe.F("addr", cfg.ListenAddr), observe.F("version", version))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
