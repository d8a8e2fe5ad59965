package storage

import (
	"context"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

// ReadingStore provides access to historical sensor readings.
type ReadingStore interface {
	// Insert adds a new reading. Returns ErrDuplicateKey if
	// (device_id, timestamp) exists.
	Insert(ctx context.Context, r *domain.Reading) error

	// InsertBulk adds multiple readings atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, readings []*domain.Reading) error

	// GetByTimeRange retrieves readings within [start, end] (inclusive),
	// ordered by timestamp ASC, device_id ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Reading, error)

	// GetByDevice retrieves all readings for a device, ordered by timestamp ASC.
	GetByDevice(ctx context.Context, deviceID string) ([]*domain.Reading, error)
}

// SinkRowStore provides access to enriched warehouse rows.
type SinkRowStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate
	// (device_id, timestamp).
	InsertBulk(ctx context.Context, rows []*domain.SinkRow) error

	// GetByDevice retrieves all rows for a device, ordered by timestamp ASC.
	GetByDevice(ctx context.Context, deviceID string) ([]*domain.SinkRow, error)

	// GetByTimeRange retrieves rows within [start, end] (inclusive),
	// ordered by timestamp ASC, device_id ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.SinkRow, error)

	// CountAnomalies counts rows with is_anomaly = true within [start, end].
	CountAnomalies(ctx context.Context, start, end time.Time) (int, error)
}

// SignalArtifact bundles everything persisted for one signal's detector:
// the fitted model, its frozen scaler parameters, and the evaluation
// document from the training run that produced them.
type SignalArtifact struct {
	Signal  domain.Signal
	Model   []byte // gob-encoded isolation forest
	Scaler  []byte // JSON-encoded scaler parameters
	Metrics *domain.EvaluationMetrics
}

// ArtifactStore persists trained model artifacts keyed by signal name.
type ArtifactStore interface {
	// Save writes all artifacts for one signal. Overwrites any previous run.
	Save(ctx context.Context, a *SignalArtifact) error

	// Load retrieves the artifacts for a signal. Returns ErrNotFound if
	// the signal has never been trained.
	Load(ctx context.Context, signal domain.Signal) (*SignalArtifact, error)
}
