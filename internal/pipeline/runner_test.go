package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/alerting"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/scoring"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage/memory"
)

// stubSource replays a fixed set of payloads and closes the channel.
type stubSource struct {
	payloads [][]byte
}

func (s *stubSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for _, p := range s.payloads {
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *stubSource) Close() error { return nil }

// scorerFunc adapts a function to the Scorer interface.
type scorerFunc func(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error)

func (f scorerFunc) Score(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error) {
	return f(ctx, req)
}

// thresholdScorer flags temperatures above 30 as anomalous.
func thresholdScorer(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error) {
	var temp, vib float64
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	if req.Vibration != nil {
		vib = *req.Vibration
	}

	anomaly := temp > 30
	return &domain.PredictionResult{
		DeviceID:         req.DeviceID,
		Timestamp:        *req.Timestamp,
		Temperature:      temp,
		Vibration:        vib,
		TempAnomalyScore: 30 - temp,
		IsTempAnomaly:    anomaly,
		IsAnomaly:        anomaly,
	}, nil
}

func gatewayPayload(t *testing.T, device string, ts time.Time, temp float64) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"device_id":   device,
		"timestamp":   ts.Format(time.RFC3339),
		"device_type": "multi_sensor",
		"location":    map[string]any{"building": "A", "floor": 2, "room": "201"},
		"sensor_data": map[string]any{"temperature": temp, "vibration": 1.1},
	})
	require.NoError(t, err)
	return payload
}

// labeledPayload is a gateway message carrying the ground-truth flag.
func labeledPayload(t *testing.T, device string, ts time.Time, temp float64, anomaly bool) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"device_id":   device,
		"timestamp":   ts.Format(time.RFC3339),
		"device_type": "multi_sensor",
		"location":    map[string]any{"building": "A", "floor": 2, "room": "201"},
		"sensor_data": map[string]any{"temperature": temp, "vibration": 1.1, "anomaly_type": "temp_spike"},
		"is_anomaly":  anomaly,
	})
	require.NoError(t, err)
	return payload
}

func testRunner(t *testing.T, opts Options) *Runner {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[test] ", log.LstdFlags)
	}
	if opts.Scorer == nil {
		opts.Scorer = scorerFunc(thresholdScorer)
	}
	if opts.FlushEvery == 0 {
		opts.FlushEvery = 50 * time.Millisecond
	}

	r, err := NewRunner(opts)
	require.NoError(t, err)
	return r
}

func TestRunner_EveryPayloadSunkOrErrored(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var payloads [][]byte
	for i := 0; i < 20; i++ {
		payloads = append(payloads, gatewayPayload(t, fmt.Sprintf("sensor-%03d", i%4), base.Add(time.Duration(i)*time.Second), 22.0))
	}
	// Malformed payloads leave through the error stream.
	payloads = append(payloads, []byte(`not json`), []byte(`{"device_id": 42}`))

	sink := memory.NewSinkRowStore()
	runner := testRunner(t, Options{
		Source:    &stubSource{payloads: payloads},
		SinkStore: sink,
	})

	require.NoError(t, runner.Run(context.Background()))

	processed, failed := runner.Stats()
	assert.Equal(t, int64(20), processed)
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, int64(len(payloads)), processed+failed)

	rows, err := sink.GetByTimeRange(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 20)

	// Location and device type survive to the warehouse row.
	assert.Equal(t, "A", rows[0].Building)
	assert.Equal(t, "multi_sensor", rows[0].DeviceType)
}

func TestRunner_AnomaliesRaiseAlerts(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var payloads [][]byte
	for i := 0; i < 10; i++ {
		temp := 22.0
		if i%5 == 0 {
			temp = 45.0 // 2 anomalies
		}
		payloads = append(payloads, gatewayPayload(t, "sensor-001", base.Add(time.Duration(i)*time.Second), temp))
	}

	var mu sync.Mutex
	var received []domain.Alert
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a domain.Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		mu.Lock()
		received = append(received, a)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	dispatcher, err := alerting.New(alerting.Options{WebhookURL: webhook.URL})
	require.NoError(t, err)

	sink := memory.NewSinkRowStore()
	runner := testRunner(t, Options{
		Source:     &stubSource{payloads: payloads},
		SinkStore:  sink,
		Dispatcher: dispatcher,
	})

	require.NoError(t, runner.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "anomaly_detected", received[0].AlertType)
	assert.Equal(t, domain.SeverityMedium, received[0].Severity)
	assert.NotEmpty(t, received[0].AlertID)

	// Anomalous rows still land in the sink.
	count, err := sink.CountAnomalies(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunner_ScorerOutageDegradesPerRecord(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var payloads [][]byte
	for i := 0; i < 5; i++ {
		payloads = append(payloads, gatewayPayload(t, "sensor-001", base.Add(time.Duration(i)*time.Second), 22.0))
	}

	var mu sync.Mutex
	var stages []string
	sink := memory.NewSinkRowStore()
	runner := testRunner(t, Options{
		Source:    &stubSource{payloads: payloads},
		SinkStore: sink,
		Scorer: scorerFunc(func(ctx context.Context, req *scoring.Request) (*domain.PredictionResult, error) {
			return nil, errors.New("connection refused")
		}),
		OnError: func(serr *StageError) {
			mu.Lock()
			stages = append(stages, serr.Stage)
			mu.Unlock()
		},
	})

	require.NoError(t, runner.Run(context.Background()))

	// Records degrade to zero scores instead of dropping, so the sink
	// still receives every reading.
	processed, failed := runner.Stats()
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(5), failed)

	rows, err := sink.GetByDevice(context.Background(), "sensor-001")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for _, row := range rows {
		assert.False(t, row.IsAnomaly)
		assert.Equal(t, 0.0, row.TempAnomalyScore)
		assert.Equal(t, 0.0, row.VibAnomalyScore)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stages, 5)
	for _, stage := range stages {
		assert.Equal(t, StageScore, stage)
	}
}

func TestRunner_PersistsReadingsForTraining(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	// Every fourth reading is a marked anomaly; the stored label is what
	// the trainer's stratified split and evaluation run on.
	var payloads [][]byte
	for i := 0; i < 8; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		if i%4 == 3 {
			payloads = append(payloads, labeledPayload(t, "sensor-002", ts, 45.0, true))
		} else {
			payloads = append(payloads, gatewayPayload(t, "sensor-002", ts, 22.0))
		}
	}

	readings := memory.NewReadingStore()
	runner := testRunner(t, Options{
		Source:       &stubSource{payloads: payloads},
		SinkStore:    memory.NewSinkRowStore(),
		ReadingStore: readings,
		Scorer:       scorerFunc(thresholdScorer),
	})

	require.NoError(t, runner.Run(context.Background()))

	stored, err := readings.GetByDevice(context.Background(), "sensor-002")
	require.NoError(t, err)
	require.Len(t, stored, 8)
	assert.Equal(t, 22.0, stored[0].Temperature)

	labeled := 0
	for _, r := range stored {
		require.NotNil(t, r.Labeled)
		if r.IsLabeledAnomaly() {
			labeled++
		}
	}
	assert.Equal(t, 2, labeled)
}

func TestRunner_StopsOnContextCancel(t *testing.T) {
	// A source that never closes on its own.
	blockCtx, blockCancel := context.WithCancel(context.Background())
	defer blockCancel()

	source := &cancelableSource{hold: blockCtx}

	runner := testRunner(t, Options{
		Source:    source,
		SinkStore: memory.NewSinkRowStore(),
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

// cancelableSource blocks until its context or the subscriber's context
// is done, emitting nothing.
type cancelableSource struct {
	hold context.Context
}

func (s *cancelableSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		select {
		case <-ctx.Done():
		case <-s.hold.Done():
		}
	}()
	return ch, nil
}

func (s *cancelableSource) Close() error { return nil }

func TestRunner_DrainsInFlightRecordsAfterCancel(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var payloads [][]byte
	for i := 0; i < 6; i++ {
		payloads = append(payloads, gatewayPayload(t, "sensor-003", base.Add(time.Duration(i)*time.Second), 22.0))
	}

	sink := &ctxSinkStore{SinkRowStore: memory.NewSinkRowStore()}
	source := &holdOpenSource{payloads: payloads, delivered: make(chan struct{})}

	// Large batch and a long flush interval force the rows to flush on
	// the final drain, after the run context is already cancelled.
	runner := testRunner(t, Options{
		Source:     source,
		SinkStore:  sink,
		FlushEvery: time.Hour,
		BatchSize:  100,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	<-source.delivered
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}

	rows, err := sink.GetByDevice(context.Background(), "sensor-003")
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	processed, failed := runner.Stats()
	assert.Equal(t, int64(6), processed)
	assert.Equal(t, int64(0), failed)
}

// ctxSinkStore refuses writes once the given context is done, the way
// the warehouse-backed store does.
type ctxSinkStore struct {
	*memory.SinkRowStore
}

func (s *ctxSinkStore) InsertBulk(ctx context.Context, rows []*domain.SinkRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SinkRowStore.InsertBulk(ctx, rows)
}

// holdOpenSource delivers its payloads, signals delivery, then keeps
// the channel open until the subscriber's context is cancelled.
type holdOpenSource struct {
	payloads  [][]byte
	delivered chan struct{}
}

func (s *holdOpenSource) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for _, p := range s.payloads {
			select {
			case ch <- p:
			case <-ctx.Done():
				return
			}
		}
		close(s.delivered)
		<-ctx.Done()
	}()
	return ch, nil
}

func (s *holdOpenSource) Close() error { return nil }

func TestNewRunner_RequiredOptions(t *testing.T) {
	_, err := NewRunner(Options{})
	assert.Error(t, err)

	_, err = NewRunner(Options{Source: &stubSource{}})
	assert.Error(t, err)

	_, err = NewRunner(Options{Source: &stubSource{}, Scorer: scorerFunc(thresholdScorer)})
	assert.Error(t, err)
}
