package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

func testSinkRow(deviceID string, ts time.Time) *domain.SinkRow {
	return &domain.SinkRow{
		DeviceID:         deviceID,
		Timestamp:        ts,
		ProcessedAt:      ts.Add(200 * time.Millisecond),
		Building:         "A",
		Floor:            2,
		Room:             "201",
		DeviceType:       "multi_sensor",
		Temperature:      22.4,
		Vibration:        1.1,
		IsAnomaly:        false,
		TempAnomalyScore: 0.12,
		VibAnomalyScore:  0.08,
		TempMA:           22.1,
		VibrationMA:      1.05,
		TempZScore:       0.3,
		VibrationZScore:  0.2,
	}
}

func TestSinkRowStore_InsertBulkAndGetByDevice(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSinkRowStore(conn)
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	anomalous := testSinkRow("sensor-001", base.Add(time.Minute))
	anomalous.IsAnomaly = true
	anomalous.AnomalyType = strPtr("spike")

	rows := []*domain.SinkRow{
		testSinkRow("sensor-001", base),
		anomalous,
		testSinkRow("sensor-002", base),
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByDevice(ctx, "sensor-001")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.True(t, got[0].Timestamp.Equal(base))
	assert.Equal(t, "A", got[0].Building)
	assert.Equal(t, 2, got[0].Floor)
	assert.Nil(t, got[0].AnomalyType)

	require.NotNil(t, got[1].AnomalyType)
	assert.Equal(t, "spike", *got[1].AnomalyType)
	assert.True(t, got[1].IsAnomaly)
}

func TestSinkRowStore_InsertBulkDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSinkRowStore(conn)
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	// Intra-batch duplicate
	err := store.InsertBulk(ctx, []*domain.SinkRow{
		testSinkRow("sensor-dup", base),
		testSinkRow("sensor-dup", base),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Duplicate against persisted rows
	require.NoError(t, store.InsertBulk(ctx, []*domain.SinkRow{testSinkRow("sensor-dup", base)}))
	err = store.InsertBulk(ctx, []*domain.SinkRow{testSinkRow("sensor-dup", base)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSinkRowStore_CountAnomalies(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSinkRowStore(conn)
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	var rows []*domain.SinkRow
	for i := 0; i < 5; i++ {
		r := testSinkRow("sensor-count", base.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			r.IsAnomaly = true
		}
		rows = append(rows, r)
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	count, err := store.CountAnomalies(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Window excluding the first anomaly
	count, err = store.CountAnomalies(ctx, base.Add(time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
