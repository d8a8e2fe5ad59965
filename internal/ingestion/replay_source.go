package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// ReplaySource streams previously captured gateway payloads from a
// JSONL file, one payload per line. Useful for backfills and local
// runs without a live gateway.
type ReplaySource struct {
	path     string
	interval time.Duration
	closed   atomic.Bool
}

// NewReplaySource creates a replay source. A non-zero interval paces
// the replay; zero replays as fast as the consumer drains.
func NewReplaySource(path string, interval time.Duration) (*ReplaySource, error) {
	if path == "" {
		return nil, errors.New("ingestion: path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat replay file: %w", err)
	}

	return &ReplaySource{path: path, interval: interval}, nil
}

// Compile-time interface check.
var _ Source = (*ReplaySource)(nil)

// Subscribe streams the file's lines. The channel closes at EOF.
func (s *ReplaySource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if s.closed.Load() {
		return nil, errors.New("ingestion: source closed")
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}

	ch := make(chan []byte)

	go func() {
		defer close(ch)
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if s.closed.Load() {
				return
			}

			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			// Scanner reuses its buffer
			payload := make([]byte, len(line))
			copy(payload, line)

			select {
			case ch <- payload:
			case <-ctx.Done():
				return
			}

			if s.interval > 0 {
				select {
				case <-time.After(s.interval):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops the replay.
func (s *ReplaySource) Close() error {
	s.closed.Store(true)
	return nil
}
