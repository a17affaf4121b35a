package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/helm-actions/pkg/api"
	"github.com/Mindburn-Labs/helm-actions/pkg/observability"
)

// runServeCmd implements `helm-actions serve`. It runs until SIGINT or
// SIGTERM, then drains in-flight requests.
func runServeCmd(args []string, _, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var src sourceFlags
	var port string
	src.register(cmd)
	cmd.StringVar(&port, "port", "", "Listen port (default $PORT or 8080)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := src.merge()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if port == "" {
		port = cfg.Port
	}

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := resolutionContext(ctx, &src, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 2
	}

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.TelemetryEnabled
	otelCfg.Environment = cfg.Environment
	otelCfg.OTLPEndpoint = cfg.OTLPEndpoint
	otelCfg.Insecure = cfg.OTLPInsecure
	telemetry, err := observability.New(ctx, otelCfg)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	srv, err := api.NewServer(api.Options{
		Actions:        rc.Actions,
		Coercions:      rc.Coercions,
		Schema:         rc.Schema,
		Dialect:        rc.Dialect,
		Telemetry:      telemetry,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		return 2
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "dialect", rc.Dialect.String())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return 2
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 2
		}
	}
	return 0
}
