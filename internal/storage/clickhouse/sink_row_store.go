package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// SinkRowStore implements storage.SinkRowStore using ClickHouse.
type SinkRowStore struct {
	conn *Conn
}

// NewSinkRowStore creates a new SinkRowStore.
func NewSinkRowStore(conn *Conn) *SinkRowStore {
	return &SinkRowStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SinkRowStore = (*SinkRowStore)(nil)

const sinkRowColumns = `
	device_id, timestamp, processed_at, building, floor, room, device_type,
	temperature, vibration, is_anomaly, temp_anomaly_score,
	vibration_anomaly_score, anomaly_type, temp_ma, vibration_ma,
	temp_zscore, vibration_zscore
`

// InsertBulk adds multiple rows. Fails entire batch on duplicate (device_id, timestamp).
func (s *SinkRowStore) InsertBulk(ctx context.Context, rows []*domain.SinkRow) error {
	if len(rows) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		deviceID  string
		timestamp int64
	}
	seen := make(map[key]struct{})
	for _, r := range rows {
		if r == nil || r.DeviceID == "" {
			return storage.ErrInvalidInput
		}
		k := key{r.DeviceID, r.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows. MergeTree does not
	// enforce uniqueness at insert time.
	for _, r := range rows {
		exists, err := s.exists(ctx, r.DeviceID, r.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO sensor_rows (`+sinkRowColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.DeviceID, r.Timestamp.UTC(), r.ProcessedAt.UTC(),
			r.Building, int32(r.Floor), r.Room, r.DeviceType,
			r.Temperature, r.Vibration, r.IsAnomaly,
			r.TempAnomalyScore, r.VibAnomalyScore, r.AnomalyType,
			r.TempMA, r.VibrationMA, r.TempZScore, r.VibrationZScore,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByDevice retrieves all rows for a device, ordered by timestamp ASC.
func (s *SinkRowStore) GetByDevice(ctx context.Context, deviceID string) ([]*domain.SinkRow, error) {
	query := `
		SELECT ` + sinkRowColumns + `
		FROM sensor_rows
		WHERE device_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("query by device: %w", err)
	}
	defer rows.Close()

	return scanSinkRows(rows)
}

// GetByTimeRange retrieves rows within [start, end] (inclusive).
func (s *SinkRowStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.SinkRow, error) {
	query := `
		SELECT ` + sinkRowColumns + `
		FROM sensor_rows
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, device_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSinkRows(rows)
}

// CountAnomalies counts rows with is_anomaly = true within [start, end].
func (s *SinkRowStore) CountAnomalies(ctx context.Context, start, end time.Time) (int, error) {
	query := `
		SELECT count(*) FROM sensor_rows
		WHERE is_anomaly = true AND timestamp >= ? AND timestamp <= ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return int(count), nil
}

// exists checks if a row with the given key exists.
func (s *SinkRowStore) exists(ctx context.Context, deviceID string, ts time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM sensor_rows
		WHERE device_id = ? AND timestamp = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, deviceID, ts.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSinkRows scans multiple rows into a slice.
func scanSinkRows(rows chRows) ([]*domain.SinkRow, error) {
	var result []*domain.SinkRow

	for rows.Next() {
		var r domain.SinkRow
		var floor int32
		var ts, processedAt time.Time

		err := rows.Scan(
			&r.DeviceID, &ts, &processedAt,
			&r.Building, &floor, &r.Room, &r.DeviceType,
			&r.Temperature, &r.Vibration, &r.IsAnomaly,
			&r.TempAnomalyScore, &r.VibAnomalyScore, &r.AnomalyType,
			&r.TempMA, &r.VibrationMA, &r.TempZScore, &r.VibrationZScore,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sink row: %w", err)
		}

		r.Timestamp = ts.UTC()
		r.ProcessedAt = processedAt.UTC()
		r.Floor = int(floor)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sink rows: %w", err)
	}

	return result, nil
}
