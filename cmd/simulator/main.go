// Package main runs the sensor fleet simulator: either broadcasts
// synthetic gateway messages over WebSocket or writes a JSONL file for
// the pipeline's replay mode.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/simulator"
)

func main() {
	listenAddr := flag.String("listen-addr", ":8765", "WebSocket listen address")
	devices := flag.Int("devices", 5, "Number of simulated devices")
	anomalyRate := flag.Float64("anomaly-rate", 0.02, "Fraction of readings with injected anomalies")
	seed := flag.Int64("seed", 1, "Random seed")
	interval := flag.Duration("interval", time.Second, "Time between readings")
	output := flag.String("output", "", "Write N readings as JSONL to this file instead of serving")
	count := flag.Int("count", 1000, "Number of readings to write with --output")

	flag.Parse()

	logger := log.New(os.Stdout, "[simulator] ", log.LstdFlags|log.Lshortfile)

	generator := simulator.New(simulator.Options{
		Devices:     *devices,
		AnomalyRate: *anomalyRate,
		Seed:        *seed,
	})

	if *output != "" {
		if err := writeJSONL(generator, *output, *count, *interval); err != nil {
			logger.Fatalf("Failed to write %s: %v", *output, err)
		}
		logger.Printf("Wrote %d readings to %s", *count, *output)
		return
	}

	server := simulator.NewServer(simulator.ServerOptions{
		Generator: generator,
		Interval:  *interval,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", server.Handler())

	httpServer := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		logger.Printf("Broadcasting on ws://%s/ws (%d devices, anomaly rate %.3f)", *listenAddr, *devices, *anomalyRate)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	server.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	logger.Println("Shutdown complete")
}

// writeJSONL emits count readings spaced interval apart in simulated
// time, one JSON object per line.
func writeJSONL(g *simulator.Generator, path string, count int, interval time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	ts := time.Now().UTC().Add(-time.Duration(count) * interval)
	for i := 0; i < count; i++ {
		if err := enc.Encode(g.Next(ts.Add(time.Duration(i) * interval))); err != nil {
			return err
		}
	}
	return nil
}
