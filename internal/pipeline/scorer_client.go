package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/scoring"
)

// Scorer scores one reading. The pipeline degrades per record on
// scorer failure; it never blocks the stream on a slow backend.
type Scorer interface {
	Score(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error)
}

// HTTPScorer calls a remote scoring service's /detect endpoint.
type HTTPScorer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPScorer creates a scorer for the given base URL.
func NewHTTPScorer(baseURL string, timeout time.Duration) (*HTTPScorer, error) {
	if baseURL == "" {
		return nil, errors.New("pipeline: baseURL is required")
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPScorer{
		endpoint: baseURL + "/detect",
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Compile-time interface check.
var _ Scorer = (*HTTPScorer)(nil)

// Score posts the request and decodes the prediction.
func (s *HTTPScorer) Score(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal scoring request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build scoring request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call scoring service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scoring service status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var result domain.PredictionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &result, nil
}

// ServiceScorer scores in-process against a scoring.Service. Used when
// the pipeline and the service run in the same binary.
type ServiceScorer struct {
	Service *scoring.Service
}

// Compile-time interface check.
var _ Scorer = (*ServiceScorer)(nil)

// Score delegates to the wrapped service.
func (s *ServiceScorer) Score(_ context.Context, req *scoring.Request) (*domain.PredictionResult, error) {
	return s.Service.Score(req)
}
