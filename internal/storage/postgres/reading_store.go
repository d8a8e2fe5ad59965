package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// ReadingStore implements storage.ReadingStore using PostgreSQL.
type ReadingStore struct {
	pool *Pool
}

// NewReadingStore creates a new ReadingStore.
func NewReadingStore(pool *Pool) *ReadingStore {
	return &ReadingStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReadingStore = (*ReadingStore)(nil)

// Insert adds a new reading. Returns ErrDuplicateKey if (device_id, timestamp) exists.
func (s *ReadingStore) Insert(ctx context.Context, r *domain.Reading) error {
	if r == nil || r.DeviceID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO sensor_readings (
			device_id, timestamp, temperature, vibration, is_anomaly
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		r.DeviceID,
		r.Timestamp.UTC(),
		r.Temperature,
		r.Vibration,
		r.Labeled,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// InsertBulk adds multiple readings atomically. Fails entire batch on any duplicate.
func (s *ReadingStore) InsertBulk(ctx context.Context, readings []*domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO sensor_readings (
			device_id, timestamp, temperature, vibration, is_anomaly
		) VALUES ($1, $2, $3, $4, $5)
	`

	for _, r := range readings {
		if r == nil || r.DeviceID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			r.DeviceID, r.Timestamp.UTC(), r.Temperature, r.Vibration, r.Labeled,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert reading in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves readings within [start, end] (inclusive),
// ordered by timestamp ASC, device_id ASC.
func (s *ReadingStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Reading, error) {
	query := `
		SELECT device_id, timestamp, temperature, vibration, is_anomaly
		FROM sensor_readings
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, device_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get readings by time range: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// GetByDevice retrieves all readings for a device, ordered by timestamp ASC.
func (s *ReadingStore) GetByDevice(ctx context.Context, deviceID string) ([]*domain.Reading, error) {
	query := `
		SELECT device_id, timestamp, temperature, vibration, is_anomaly
		FROM sensor_readings
		WHERE device_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := s.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get readings by device: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// scanReadings scans multiple rows into a slice of Reading.
func scanReadings(rows pgx.Rows) ([]*domain.Reading, error) {
	var readings []*domain.Reading

	for rows.Next() {
		var r domain.Reading
		var ts time.Time

		err := rows.Scan(&r.DeviceID, &ts, &r.Temperature, &r.Vibration, &r.Labeled)
		if err != nil {
			return nil, fmt.Errorf("scan reading row: %w", err)
		}

		r.Timestamp = ts.UTC()
		readings = append(readings, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reading rows: %w", err)
	}

	return readings, nil
}
