package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading environment variables directly")
	}

	ctx := context.Background()
	app, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config

	slog.Info("starting geotrigger server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter)

	// bridge domain events into the websocket stream and the counters
	detachHub := app.Hub.Attach(app.Bus)
	defer detachHub()
	detachMetrics := app.Metrics.Attach(app.Bus)
	defer detachMetrics()
	detachBoard := app.Board.Attach(app.Bus)
	defer detachBoard()
	detachCollector := app.Collector.Attach(app.Bus)
	defer detachCollector()

	analyticsCtx, stopAnalytics := context.WithCancel(ctx)
	defer stopAnalytics()
	go app.Analytics.Start(analyticsCtx)

	if err := app.Sweeper.Start(); err != nil {
		slog.Error("failed to start expiry sweeper", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Sweeper.Stop(); err != nil {
			slog.Warn("error stopping expiry sweeper", "error", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, app.Metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			slog.Info("metrics listening", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	srv := app.Server

	// Start server in a goroutine
	go func() {
		slog.Info("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				return
			}
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("error during metrics shutdown", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
		os.Exit(1)
	}

	app.Bus.Close()
	slog.Info("server stopped")
}
