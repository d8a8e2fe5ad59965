package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

func TestSinkRowStore_InsertBulkAndQuery(t *testing.T) {
	store := NewSinkRowStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SinkRow{
		{DeviceID: "sensor-001", Timestamp: base, IsAnomaly: true},
		{DeviceID: "sensor-001", Timestamp: base.Add(time.Minute)},
		{DeviceID: "sensor-002", Timestamp: base},
	}))

	got, err := store.GetByDevice(ctx, "sensor-001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))

	ranged, err := store.GetByTimeRange(ctx, base, base)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "sensor-001", ranged[0].DeviceID)
	assert.Equal(t, "sensor-002", ranged[1].DeviceID)
}

func TestSinkRowStore_DuplicateKey(t *testing.T) {
	store := NewSinkRowStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SinkRow{
		{DeviceID: "sensor-001", Timestamp: base},
	}))

	err := store.InsertBulk(ctx, []*domain.SinkRow{
		{DeviceID: "sensor-001", Timestamp: base.Add(time.Minute)},
		{DeviceID: "sensor-001", Timestamp: base},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Atomic: the non-duplicate row in the failed batch was not persisted.
	got, err := store.GetByDevice(ctx, "sensor-001")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSinkRowStore_CountAnomalies(t *testing.T) {
	store := NewSinkRowStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBulk(ctx, []*domain.SinkRow{
		{DeviceID: "s1", Timestamp: base, IsAnomaly: true},
		{DeviceID: "s1", Timestamp: base.Add(time.Minute), IsAnomaly: false},
		{DeviceID: "s2", Timestamp: base.Add(2 * time.Minute), IsAnomaly: true},
		{DeviceID: "s2", Timestamp: base.Add(2 * time.Hour), IsAnomaly: true},
	}))

	count, err := store.CountAnomalies(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
