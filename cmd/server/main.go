// Package main runs the online scoring service: loads trained model
// artifacts and serves anomaly detection over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/scoring"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/artifact"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8000"), "HTTP listen address")
	artifactsDir := flag.String("artifacts-dir", envOr("ARTIFACTS_DIR", "artifacts"), "Directory holding trained model artifacts")
	reloadInterval := flag.Duration("reload-interval", 0, "Artifact reload interval (0 disables hot reload)")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := artifact.NewFSStore(*artifactsDir)
	if err != nil {
		logger.Fatalf("Failed to open artifact store: %v", err)
	}

	obs := observability.NewMetrics("streamsense", nil)

	svc, err := scoring.New(scoring.Options{
		ArtifactStore: store,
		Observability: obs,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create scoring service: %v", err)
	}

	// A missing model is not fatal: the service stays up and reports
	// itself unhealthy until the trainer produces artifacts.
	if err := svc.Load(ctx); err != nil {
		logger.Fatalf("Failed to load artifacts: %v", err)
	}
	if !svc.ModelsLoaded() {
		logger.Printf("No trained models in %s, /detect will return 500 until trained", *artifactsDir)
	}

	if *reloadInterval > 0 {
		go reloadLoop(ctx, svc, *reloadInterval, logger)
	}

	server := &http.Server{
		Addr:              *listenAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("Scoring service listening on %s (artifacts: %s)", *listenAddr, *artifactsDir)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// reloadLoop re-reads artifacts on an interval so a retrained model is
// picked up without a restart.
func reloadLoop(ctx context.Context, svc *scoring.Service, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Load(ctx); err != nil {
				logger.Printf("Artifact reload failed: %v", err)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
