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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/di"
	"github.com/mikey/mailpilot/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(app di.App, intake ports.MailIntake, generator core.TextGenerator) error {
	logger := app.Logger
	defer logger.Sync()

	ctx := context.Background()
	if err := app.Restore(ctx); err != nil {
		logger.Error("Failed to restore state", zap.Error(err))
		return err
	}
	logger.Info("Assistant state restored",
		zap.Float64("threshold", app.Loop.Threshold()),
		zap.Bool("autonomy", app.Gate.Autonomy()))

	server, err := app.Config.GetServer()
	if err != nil {
		return err
	}

	// Serve metrics
	metricsServer := &http.Server{
		Addr:              server.MetricsAddress,
		Handler:           metricsHandler(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Start the intake
	if err := intake.Start(); err != nil {
		logger.Error("Failed to start intake", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := intake.Stop(); err != nil {
		logger.Error("Failed to stop intake", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop metrics server", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := generator.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close text generator", zap.Error(err))
		}
	}

	app.Store.Stop()

	logger.Info("Shutdown complete")
	return nil
}

func metricsHandler(app di.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return mux
}
