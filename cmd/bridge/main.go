package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pdmworks/cadbridge/internal/adapters/stdio"
	"github.com/pdmworks/cadbridge/internal/bootstrap"
	"github.com/pdmworks/cadbridge/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := bootstrap.New(cfg)
	defer app.Close()

	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		metricsServer = &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      app.Metrics.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			app.Logger.Info("metrics_listening", "port", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.Logger.Error("metrics_server_failed", "error", err)
			}
		}()
	}

	server := stdio.NewServer(stdio.Options{
		Metadata: app.MetadataUC,
		Live:     app.LiveUC,
		Logger:   app.Logger,
		Recorder: app.Metrics,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- server.Run(ctx) }()

	select {
	case <-ctx.Done():
		app.Logger.Info("shutdown_signal_received")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			app.Logger.Error("bridge_stopped", "error", err)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("metrics_shutdown_failed", "error", err)
		}
	}
}
