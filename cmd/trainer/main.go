// Package main runs one offline training pass: reads labeled sensor
// history from PostgreSQL, fits a detector per signal, and writes the
// artifacts the scoring service loads.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/artifact"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/migrations"
	pgstore "github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/postgres"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/trainer"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	artifactsDir := flag.String("artifacts-dir", envOr("ARTIFACTS_DIR", "artifacts"), "Output directory for model artifacts")
	daysBack := flag.Int("days-back", 30, "Training window in days")
	contamination := flag.Float64("contamination", 0.1, "Expected anomaly fraction in training data")
	testFraction := flag.Float64("test-fraction", 0.2, "Held-out fraction for evaluation")
	seed := flag.Int64("seed", 42, "Random seed for sampling and splits")
	migrate := flag.Bool("migrate", false, "Run PostgreSQL migrations before training")

	flag.Parse()

	logger := log.New(os.Stdout, "[trainer] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if *migrate {
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Println("Migrations applied")
	}

	artifactStore, err := artifact.NewFSStore(*artifactsDir)
	if err != nil {
		logger.Fatalf("Failed to open artifact store: %v", err)
	}

	t, err := trainer.New(trainer.Options{
		ReadingStore:  pgstore.NewReadingStore(pool),
		ArtifactStore: artifactStore,
		Metrics:       observability.NewMetrics("streamsense", nil),
		DaysBack:      *daysBack,
		Contamination: *contamination,
		TestFraction:  *testFraction,
		Seed:          *seed,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create trainer: %v", err)
	}

	result, err := t.Run(ctx)
	if err != nil {
		logger.Fatalf("Training failed: %v", err)
	}

	logger.Printf("Training complete: %d readings, %d examples", result.Readings, result.Examples)
	for signal, m := range result.Metrics {
		cm := m.ConfusionMatrix
		logger.Printf("  %s: precision=%.3f recall=%.3f f1=%.3f (tp=%d fp=%d fn=%d tn=%d)",
			signal, m.Precision, m.Recall, m.F1Score,
			cm.TruePositives, cm.FalsePositives, cm.FalseNegatives, cm.TrueNegatives)
	}
	logger.Printf("Artifacts written to %s/", *artifactsDir)
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
