// Package trainer fits per-signal anomaly detectors from historical
// readings and persists the resulting artifacts.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/detector"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/features"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// ErrTrainingDataEmpty is returned when the lookback window contains
// no readings.
var ErrTrainingDataEmpty = errors.New("trainer: no readings in training window")

// Trainer runs the offline training flow: fetch history, extract
// features, fit one detector per signal, evaluate, persist.
type Trainer struct {
	readingStore  storage.ReadingStore
	artifactStore storage.ArtifactStore
	daysBack      int
	contamination float64
	testFraction  float64
	seed          int64
	obs           *observability.Metrics
	logger        *log.Logger
}

// Options contains configuration for creating a Trainer.
type Options struct {
	ReadingStore  storage.ReadingStore
	ArtifactStore storage.ArtifactStore
	DaysBack      int     // Default: 30
	Contamination float64 // Default: 0.1
	TestFraction  float64 // Default: 0.2
	Seed          int64   // Default: 42
	Metrics       *observability.Metrics
	Logger        *log.Logger
}

// New creates a new Trainer.
func New(opts Options) (*Trainer, error) {
	if opts.ReadingStore == nil {
		return nil, errors.New("trainer: ReadingStore is required")
	}
	if opts.ArtifactStore == nil {
		return nil, errors.New("trainer: ArtifactStore is required")
	}

	daysBack := opts.DaysBack
	if daysBack <= 0 {
		daysBack = 30
	}
	contamination := opts.Contamination
	if contamination <= 0 {
		contamination = 0.1
	}
	testFraction := opts.TestFraction
	if testFraction <= 0 {
		testFraction = 0.2
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 42
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Trainer{
		readingStore:  opts.ReadingStore,
		artifactStore: opts.ArtifactStore,
		daysBack:      daysBack,
		contamination: contamination,
		testFraction:  testFraction,
		seed:          seed,
		obs:           opts.Metrics,
		logger:        logger,
	}, nil
}

// Result summarizes a completed training run.
type Result struct {
	Readings int
	Examples int
	Metrics  map[domain.Signal]*domain.EvaluationMetrics
}

// Run executes one training pass. Artifacts for both signals are
// staged in memory and only persisted once every signal has trained
// and evaluated, so a failed run never leaves mixed generations.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -t.daysBack)

	t.logger.Printf("Fetching readings from %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))

	readings, err := t.readingStore.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch training readings: %w", err)
	}
	if len(readings) == 0 {
		return nil, ErrTrainingDataEmpty
	}

	examples := features.PrepareTraining(readings)
	t.logger.Printf("Prepared %d examples from %d readings", len(examples), len(readings))

	train, test := stratifiedSplit(examples, t.testFraction, t.seed)
	if len(train) == 0 {
		return nil, ErrTrainingDataEmpty
	}

	result := &Result{
		Readings: len(readings),
		Examples: len(examples),
		Metrics:  make(map[domain.Signal]*domain.EvaluationMetrics),
	}

	staged := make([]*storage.SignalArtifact, 0, len(domain.Signals))

	for _, signal := range domain.Signals {
		artifact, metrics, err := t.trainSignal(signal, train, test)
		if err != nil {
			return nil, fmt.Errorf("train %s detector: %w", signal, err)
		}

		t.logger.Printf("Trained %s detector: precision=%.3f recall=%.3f f1=%.3f",
			signal, metrics.Precision, metrics.Recall, metrics.F1Score)

		result.Metrics[signal] = metrics
		staged = append(staged, artifact)
	}

	for _, artifact := range staged {
		if err := t.artifactStore.Save(ctx, artifact); err != nil {
			return nil, fmt.Errorf("persist %s artifacts: %w", artifact.Signal, err)
		}
	}

	if t.obs != nil {
		t.obs.LastSuccessfulTraining.SetToCurrentTime()
	}

	t.logger.Printf("Training complete: %d signals persisted", len(staged))
	return result, nil
}

func (t *Trainer) trainSignal(signal domain.Signal, train, test []features.Example) (*storage.SignalArtifact, *domain.EvaluationMetrics, error) {
	trainX := make([][]float64, len(train))
	for i, ex := range train {
		trainX[i] = ex.Vector.SignalFeatures(signal)
	}

	cfg := detector.DefaultForestConfig()
	cfg.Seed = t.seed

	det, err := detector.Fit(trainX, t.contamination, cfg)
	if err != nil {
		return nil, nil, err
	}

	predicted := make([]bool, len(test))
	labels := make([]bool, len(test))
	for i, ex := range test {
		_, anomaly, err := det.Score(ex.Vector.SignalFeatures(signal))
		if err != nil {
			return nil, nil, err
		}
		predicted[i] = anomaly
		labels[i] = ex.Anomaly
	}
	metrics := evaluate(predicted, labels)

	model, scalerParams, err := det.Artifacts()
	if err != nil {
		return nil, nil, err
	}

	return &storage.SignalArtifact{
		Signal:  signal,
		Model:   model,
		Scaler:  scalerParams,
		Metrics: &metrics,
	}, &metrics, nil
}
