// Package scoring serves online anomaly detection over trained
// per-signal artifacts.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/detector"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/features"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

var (
	// ErrModelsNotLoaded is returned when scoring is requested before
	// artifacts for every signal are available.
	ErrModelsNotLoaded = errors.New("scoring: models not loaded")

	// ErrInvalidRequest is returned for requests that cannot be scored.
	ErrInvalidRequest = errors.New("scoring: invalid request")
)

// Request is one scoring request. Absent measurements default to 0.0,
// an absent device to "unknown", an absent timestamp to now. Scoring
// is idempotent: the same request always yields the same result.
type Request struct {
	DeviceID    string     `json:"device_id"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	Vibration   *float64   `json:"vibration,omitempty"`
}

// SignalResult is the response of a single-signal endpoint.
type SignalResult struct {
	DeviceID     string    `json:"device_id"`
	Timestamp    time.Time `json:"timestamp"`
	Signal       string    `json:"signal"`
	Value        float64   `json:"value"`
	AnomalyScore float64   `json:"anomaly_score"`
	IsAnomaly    bool      `json:"is_anomaly"`
}

// Service scores readings against the loaded detectors. It keeps no
// per-device state; every request is scored on its own.
type Service struct {
	mu        sync.RWMutex
	detectors map[domain.Signal]*detector.Detector
	metrics   map[domain.Signal]*domain.EvaluationMetrics
	loadedAt  time.Time

	store storage.ArtifactStore
	obs   *observability.Metrics
	clock func() time.Time

	logger *log.Logger
}

// Options contains configuration for creating a Service.
type Options struct {
	ArtifactStore storage.ArtifactStore
	Observability *observability.Metrics
	Logger        *log.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// New creates a Service. Call Load to pull artifacts before scoring.
func New(opts Options) (*Service, error) {
	if opts.ArtifactStore == nil {
		return nil, errors.New("scoring: ArtifactStore is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		detectors: make(map[domain.Signal]*detector.Detector),
		metrics:   make(map[domain.Signal]*domain.EvaluationMetrics),
		store:     opts.ArtifactStore,
		obs:       opts.Observability,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Load reads the artifacts for every signal and swaps them in
// atomically. A signal that has never been trained is skipped; the
// service then reports models as not loaded but stays up.
func (s *Service) Load(ctx context.Context) error {
	detectors := make(map[domain.Signal]*detector.Detector)
	metrics := make(map[domain.Signal]*domain.EvaluationMetrics)

	for _, signal := range domain.Signals {
		artifact, err := s.store.Load(ctx, signal)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Printf("No artifacts for %s, scoring disabled until trained", signal)
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s artifacts: %w", signal, err)
		}

		det, err := detector.FromArtifacts(artifact.Model, artifact.Scaler)
		if err != nil {
			return fmt.Errorf("decode %s artifacts: %w", signal, err)
		}

		detectors[signal] = det
		metrics[signal] = artifact.Metrics
	}

	s.mu.Lock()
	s.detectors = detectors
	s.metrics = metrics
	s.loadedAt = s.clock().UTC()
	s.mu.Unlock()

	s.logger.Printf("Loaded detectors for %d of %d signals", len(detectors), len(domain.Signals))
	return nil
}

// ModelsLoaded reports whether every signal has a detector.
func (s *Service) ModelsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.detectors) == len(domain.Signals)
}

// LoadedAt returns when artifacts were last swapped in.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// EvaluationMetrics returns the training-time evaluation for a signal,
// or nil when unavailable.
func (s *Service) EvaluationMetrics(signal domain.Signal) *domain.EvaluationMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics[signal]
}

// reading normalizes a request into a Reading.
func (s *Service) reading(req *Request) domain.Reading {
	r := domain.Reading{DeviceID: req.DeviceID}
	if r.DeviceID == "" {
		r.DeviceID = "unknown"
	}
	if req.Timestamp != nil {
		r.Timestamp = req.Timestamp.UTC()
	} else {
		r.Timestamp = s.clock().UTC()
	}
	if req.Temperature != nil {
		r.Temperature = *req.Temperature
	}
	if req.Vibration != nil {
		r.Vibration = *req.Vibration
	}
	return r
}

// Score runs both detectors over the request.
func (s *Service) Score(req *Request) (*domain.PredictionResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	start := s.clock()
	if s.obs != nil {
		s.obs.PredictionsTotal.Inc()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.detectors) != len(domain.Signals) {
		return nil, ErrModelsNotLoaded
	}

	r := s.reading(req)
	vec := features.Vector([]domain.Reading{r})

	result := &domain.PredictionResult{
		DeviceID:    r.DeviceID,
		Timestamp:   r.Timestamp,
		Temperature: r.Temperature,
		Vibration:   r.Vibration,
	}

	for _, signal := range domain.Signals {
		decision, anomaly, err := s.detectors[signal].Score(vec.SignalFeatures(signal))
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", signal, err)
		}

		switch signal {
		case domain.SignalTemperature:
			result.TempAnomalyScore = decision
			result.IsTempAnomaly = anomaly
		case domain.SignalVibration:
			result.VibAnomalyScore = decision
			result.IsVibrationAnomaly = anomaly
		}

		if anomaly && s.obs != nil {
			s.obs.SignalAnomaliesTotal.WithLabelValues(string(signal)).Inc()
		}
	}

	result.IsAnomaly = result.IsTempAnomaly || result.IsVibrationAnomaly

	if s.obs != nil {
		s.obs.PredictionsSuccessTotal.Inc()
		if result.IsAnomaly {
			s.obs.AnomaliesDetectedTotal.Inc()
		}
		s.obs.PredictionDuration.Observe(s.clock().Sub(start).Seconds())
	}

	return result, nil
}

// ScoreSignal runs one signal's detector over the request.
func (s *Service) ScoreSignal(signal domain.Signal, req *Request) (*SignalResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	if s.obs != nil {
		s.obs.PredictionsTotal.Inc()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	det, ok := s.detectors[signal]
	if !ok {
		return nil, ErrModelsNotLoaded
	}

	r := s.reading(req)
	vec := features.Vector([]domain.Reading{r})

	decision, anomaly, err := det.Score(vec.SignalFeatures(signal))
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", signal, err)
	}

	value := r.Temperature
	if signal == domain.SignalVibration {
		value = r.Vibration
	}

	if s.obs != nil {
		s.obs.PredictionsSuccessTotal.Inc()
		if anomaly {
			s.obs.SignalAnomaliesTotal.WithLabelValues(string(signal)).Inc()
		}
	}

	return &SignalResult{
		DeviceID:     r.DeviceID,
		Timestamp:    r.Timestamp,
		Signal:       string(signal),
		Value:        value,
		AnomalyScore: decision,
		IsAnomaly:    anomaly,
	}, nil
}
