// Package main runs the streaming pipeline: consumes gateway messages
// from a WebSocket feed or a replay file, scores each reading, raises
// alerts, and sinks enriched rows into ClickHouse.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/alerting"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/features"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/ingestion"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/pipeline"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
	chstore "github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/clickhouse"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/memory"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/migrations"
	pgstore "github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("GATEWAY_WS_ENDPOINT"), "Gateway WebSocket endpoint")
	replayFile := flag.String("replay-file", "", "JSONL file to replay instead of a live feed")
	replayInterval := flag.Duration("replay-interval", 0, "Delay between replayed messages (0 replays at full speed)")
	scoringURL := flag.String("scoring-url", envOr("SCORING_URL", "http://localhost:8000"), "Scoring service base URL")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for reading history (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory sink instead of ClickHouse")
	webhookURL := flag.String("webhook-url", os.Getenv("ALERT_WEBHOOK_URL"), "Alert webhook URL (empty disables alerting)")
	workers := flag.Int("workers", 4, "Number of scoring workers")
	batchSize := flag.Int("batch-size", 50, "Sink batch size")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "Sink flush interval")
	historyLen := flag.Int("history-len", features.DefaultHistoryLen, "Per-device feature window length")
	migrate := flag.Bool("migrate", false, "Run ClickHouse migrations before starting")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	flag.Parse()

	logger := log.New(os.Stdout, "[pipeline] ", log.LstdFlags|log.Lshortfile)

	if *wsEndpoint == "" && *replayFile == "" {
		logger.Fatal("--ws-endpoint or --replay-file is required")
	}
	if !*useMemory && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required (use --use-memory for an in-memory sink)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Source
	var source ingestion.Source
	var err error
	if *replayFile != "" {
		source, err = ingestion.NewReplaySource(*replayFile, *replayInterval)
		if err != nil {
			logger.Fatalf("Failed to open replay file: %v", err)
		}
		logger.Printf("Replaying %s", *replayFile)
	} else {
		source, err = ingestion.NewWSSource(*wsEndpoint, nil, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile))
		if err != nil {
			logger.Fatalf("Failed to create WebSocket source: %v", err)
		}
		logger.Printf("Consuming %s", *wsEndpoint)
	}
	defer source.Close()

	// Sink
	sinkStore, cleanup, err := createSink(ctx, *clickhouseDSN, *useMemory, *migrate)
	if err != nil {
		logger.Fatalf("Failed to create sink store: %v", err)
	}
	defer cleanup()

	// Historical reading store (optional, feeds the trainer)
	var readingStore storage.ReadingStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pool.Close()
		readingStore = pgstore.NewReadingStore(pool)
		logger.Println("Persisting readings to postgres")
	}

	// Scorer
	scorer, err := pipeline.NewHTTPScorer(*scoringURL, 0)
	if err != nil {
		logger.Fatalf("Failed to create scorer: %v", err)
	}

	// Alerting
	var dispatcher *alerting.Dispatcher
	if *webhookURL != "" {
		dispatcher, err = alerting.New(alerting.Options{WebhookURL: *webhookURL, Logger: logger})
		if err != nil {
			logger.Fatalf("Failed to create dispatcher: %v", err)
		}
	} else {
		logger.Println("No webhook URL, alert dispatch disabled")
	}

	obs := observability.NewMetrics("streamsense", nil)

	runner, err := pipeline.NewRunner(pipeline.Options{
		Source:       source,
		Scorer:       scorer,
		SinkStore:    sinkStore,
		ReadingStore: readingStore,
		Dispatcher:   dispatcher,
		History:      features.NewDeviceHistory(*historyLen),
		Metrics:      obs,
		Logger:       logger,
		Workers:      *workers,
		BatchSize:    *batchSize,
		FlushEvery:   *flushInterval,
	})
	if err != nil {
		logger.Fatalf("Failed to create runner: %v", err)
	}

	go startHTTPServer(*metricsAddr, runner, logger)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, draining pipeline...", sig)
		cancel()
	}()

	err = runner.Run(ctx)

	processed, failed := runner.Stats()
	logger.Printf("Pipeline stopped: %d processed, %d failed", processed, failed)

	if err != nil && err != context.Canceled {
		logger.Fatalf("Pipeline error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createSink selects the sink store implementation.
func createSink(ctx context.Context, clickhouseDSN string, useMemory, migrate bool) (storage.SinkRowStore, func(), error) {
	if useMemory {
		return memory.NewSinkRowStore(), func() {}, nil
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		return nil, nil, err
	}

	if migrate {
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
	}

	return chstore.NewSinkRowStore(conn), func() { conn.Close() }, nil
}

// startHTTPServer serves health, stats and Prometheus metrics.
func startHTTPServer(addr string, runner *pipeline.Runner, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		processed, failed := runner.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"processed": processed,
			"failed":    failed,
		})
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
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
