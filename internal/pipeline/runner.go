package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/alerting"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/features"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/ingestion"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// Runner wires the stages together over channels. Each stage forwards
// good records downstream and routes failures to a shared error stream;
// a failed record leaves the pipeline at its failing stage without
// stalling the rest.
type Runner struct {
	source       ingestion.Source
	scorer       Scorer
	sinkStore    storage.SinkRowStore
	readingStore storage.ReadingStore
	dispatcher   *alerting.Dispatcher
	history      *features.DeviceHistory
	obs          *observability.Metrics
	onError      func(*StageError)
	logger       *log.Logger

	workers      int
	buffer       int
	batchSize    int
	flushEvery   time.Duration
	scoreTimeout time.Duration
	clock        func() time.Time

	// Stats, guarded by mu.
	mu        sync.Mutex
	processed int64
	failed    int64
}

// Options contains configuration for creating a Runner.
type Options struct {
	Source    ingestion.Source
	Scorer    Scorer
	SinkStore storage.SinkRowStore

	// ReadingStore, when set, also persists each sunk reading so the
	// trainer accumulates history. Best-effort; duplicates are ignored.
	ReadingStore storage.ReadingStore

	Dispatcher *alerting.Dispatcher // optional, alerts dropped when nil
	History    *features.DeviceHistory
	Metrics    *observability.Metrics
	Logger     *log.Logger

	// OnError receives every stage error after logging and metrics.
	// Optional; used to persist or replay dead letters.
	OnError func(*StageError)

	Workers      int           // Default: 4 scoring workers
	Buffer       int           // Default: 256 per stage channel
	BatchSize    int           // Default: 50 rows per sink flush
	FlushEvery   time.Duration // Default: 5s
	ScoreTimeout time.Duration // Default: 5s per scoring call

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// NewRunner creates a new pipeline runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("pipeline: Source is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("pipeline: Scorer is required")
	}
	if opts.SinkStore == nil {
		return nil, errors.New("pipeline: SinkStore is required")
	}

	history := opts.History
	if history == nil {
		history = features.NewDeviceHistory(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	scoreTimeout := opts.ScoreTimeout
	if scoreTimeout <= 0 {
		scoreTimeout = 5 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Runner{
		source:       opts.Source,
		scorer:       opts.Scorer,
		sinkStore:    opts.SinkStore,
		readingStore: opts.ReadingStore,
		dispatcher:   opts.Dispatcher,
		history:      history,
		obs:          opts.Metrics,
		onError:      opts.OnError,
		logger:       logger,
		workers:      workers,
		buffer:       buffer,
		batchSize:    batchSize,
		flushEvery:   flushEvery,
		scoreTimeout: scoreTimeout,
		clock:        clock,
	}, nil
}

// Run consumes the source until its channel closes or ctx is cancelled,
// then drains every stage and flushes the sink before returning.
func (r *Runner) Run(ctx context.Context) error {
	raw, err := r.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	r.logger.Println("Starting pipeline...")

	parsed := make(chan *Record, r.buffer)
	scored := make(chan *Record, r.buffer)
	errCh := make(chan *StageError, r.buffer)

	var collectorWG sync.WaitGroup
	collectorWG.Add(1)
	go func() {
		defer collectorWG.Done()
		r.collectErrors(errCh)
	}()

	// Parse stage
	var parseWG sync.WaitGroup
	parseWG.Add(1)
	go func() {
		defer parseWG.Done()
		for payload := range raw {
			if r.obs != nil {
				r.obs.RecordsIngestedTotal.Inc()
			}

			rec, serr := parseStage(payload, r.clock().UTC())
			if serr != nil {
				errCh <- serr
				continue
			}

			// Enrich inline: the per-device window must see readings
			// in arrival order, so this stays single-goroutine.
			rec.Features = r.history.Observe(rec.Reading)
			parsed <- rec
		}
	}()

	// Score stage workers
	var scoreWG sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		scoreWG.Add(1)
		go func() {
			defer scoreWG.Done()
			for rec := range parsed {
				r.scoreRecord(ctx, rec, scored, errCh)
			}
		}()
	}

	// Alert and sink stage
	var sinkWG sync.WaitGroup
	sinkWG.Add(1)
	go func() {
		defer sinkWG.Done()
		r.sinkLoop(ctx, scored, errCh)
	}()

	parseWG.Wait()
	close(parsed)
	scoreWG.Wait()
	close(scored)
	sinkWG.Wait()
	close(errCh)
	collectorWG.Wait()

	processed, failed := r.Stats()
	r.logger.Printf("Pipeline stopped: processed=%d failed=%d", processed, failed)
	return nil
}

// scoreRecord calls the scorer with a bounded timeout. A scorer outage
// degrades the record to zero scores instead of dropping it, so sink
// throughput never depends on the scoring service being up. The outage
// is still reported on the diagnostic stream.
func (r *Runner) scoreRecord(ctx context.Context, rec *Record, scored chan<- *Record, errCh chan<- *StageError) {
	scoreCtx, cancel := context.WithTimeout(ctx, r.scoreTimeout)
	defer cancel()

	pred, err := r.scorer.Score(scoreCtx, scoringRequest(rec))
	if err != nil {
		errCh <- &StageError{
			Stage:     StageScore,
			DeviceID:  rec.Reading.DeviceID,
			Payload:   rec.Raw,
			Err:       err,
			Timestamp: r.clock().UTC(),
		}
		pred = &domain.PredictionResult{
			DeviceID:  rec.Reading.DeviceID,
			Timestamp: rec.Reading.Timestamp,
		}
	}

	rec.Prediction = pred
	scored <- rec
}

// sinkFlushTimeout bounds each sink write, including the final drain
// after the run context is cancelled.
const sinkFlushTimeout = 30 * time.Second

// sinkLoop raises alerts, buffers rows, and flushes them by size or on
// a timer.
func (r *Runner) sinkLoop(ctx context.Context, scored <-chan *Record, errCh chan<- *StageError) {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	// In-flight records must still reach the sink after cancellation,
	// so writes run on a detached, bounded context.
	drainCtx := context.WithoutCancel(ctx)

	batch := make([]*domain.SinkRow, 0, r.batchSize)
	pending := make([]*Record, 0, r.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		flushCtx, cancel := context.WithTimeout(drainCtx, sinkFlushTimeout)
		defer cancel()

		if err := r.sinkStore.InsertBulk(flushCtx, batch); err != nil {
			for _, rec := range pending {
				errCh <- &StageError{
					Stage:     StageSink,
					DeviceID:  rec.Reading.DeviceID,
					Payload:   rec.Raw,
					Err:       err,
					Timestamp: r.clock().UTC(),
				}
			}
		} else {
			r.mu.Lock()
			r.processed += int64(len(batch))
			r.mu.Unlock()

			if r.obs != nil {
				r.obs.RowsSunkTotal.Add(float64(len(batch)))
				r.obs.RecordsProcessedTotal.Add(float64(len(batch)))
			}

			r.persistReadings(flushCtx, pending)
		}

		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case rec, ok := <-scored:
			if !ok {
				flush()
				return
			}

			r.raiseAlert(drainCtx, rec)

			batch = append(batch, formatRow(rec, r.clock()))
			pending = append(pending, rec)
			if len(batch) >= r.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// persistReadings writes the batch's raw readings to the historical
// store so future training runs see live traffic. Duplicates happen on
// replays and are not an error.
func (r *Runner) persistReadings(ctx context.Context, pending []*Record) {
	if r.readingStore == nil {
		return
	}

	readings := make([]*domain.Reading, 0, len(pending))
	for _, rec := range pending {
		reading := rec.Reading
		readings = append(readings, &reading)
	}

	err := r.readingStore.InsertBulk(ctx, readings)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		r.logger.Printf("Persist readings failed: %v", err)
	}
}

// raiseAlert dispatches the alert for an anomalous record. Failures
// are logged; the record still reaches the sink.
func (r *Runner) raiseAlert(ctx context.Context, rec *Record) {
	alert := buildAlert(rec)
	if alert == nil {
		return
	}

	if r.obs != nil {
		r.obs.AlertsGeneratedTotal.Inc()
	}

	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.Dispatch(ctx, alert); err != nil {
		r.logger.Printf("Alert dispatch failed for device %s: %v", alert.DeviceID, err)
	}
}

func (r *Runner) collectErrors(errCh <-chan *StageError) {
	for serr := range errCh {
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()

		if r.obs != nil {
			r.obs.StageErrorsTotal.WithLabelValues(serr.Stage).Inc()
		}
		r.logger.Printf("Stage %s failed for device %q: %v", serr.Stage, serr.DeviceID, serr.Err)

		if r.onError != nil {
			r.onError(serr)
		}
	}
}

// Stats returns how many records were sunk and how many failed a stage.
func (r *Runner) Stats() (processed, failed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed, r.failed
}
