package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_NormalBands(t *testing.T) {
	g := New(Options{Devices: 3, AnomalyRate: 0.000001, Seed: 7})
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		msg := g.Next(ts.Add(time.Duration(i) * time.Second))

		require.NotNil(t, msg.SensorData.Temperature)
		require.NotNil(t, msg.SensorData.Vibration)

		assert.GreaterOrEqual(t, *msg.SensorData.Temperature, 21.0)
		assert.Less(t, *msg.SensorData.Temperature, 23.0)
		assert.GreaterOrEqual(t, *msg.SensorData.Vibration, 0.8)
		assert.Less(t, *msg.SensorData.Vibration, 1.4)
		assert.False(t, msg.IsAnomaly)
		assert.Nil(t, msg.SensorData.AnomalyType)
	}
}

func TestGenerator_CyclesFleet(t *testing.T) {
	g := New(Options{Devices: 3, Seed: 7})
	ts := time.Now().UTC()

	seen := make(map[string]int)
	for i := 0; i < 9; i++ {
		msg := g.Next(ts)
		seen[msg.DeviceID]++
	}

	require.Len(t, seen, 3)
	for id, count := range seen {
		assert.Equal(t, 3, count, "device %s", id)
	}
}

func TestGenerator_InjectsMarkedAnomalies(t *testing.T) {
	g := New(Options{Devices: 2, AnomalyRate: 1.0, Seed: 7})
	ts := time.Now().UTC()

	for i := 0; i < 50; i++ {
		msg := g.Next(ts)

		require.True(t, msg.IsAnomaly)
		require.NotNil(t, msg.SensorData.AnomalyType)

		switch *msg.SensorData.AnomalyType {
		case AnomalyTempSpike:
			assert.GreaterOrEqual(t, *msg.SensorData.Temperature, 38.0)
		case AnomalyVibrationHigh:
			assert.GreaterOrEqual(t, *msg.SensorData.Vibration, 4.0)
		case AnomalyCombined:
			assert.GreaterOrEqual(t, *msg.SensorData.Temperature, 38.0)
			assert.GreaterOrEqual(t, *msg.SensorData.Vibration, 4.0)
		default:
			t.Fatalf("unexpected anomaly type %q", *msg.SensorData.AnomalyType)
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	a := New(Options{Devices: 4, AnomalyRate: 0.1, Seed: 42})
	b := New(Options{Devices: 4, AnomalyRate: 0.1, Seed: 42})

	for i := 0; i < 200; i++ {
		ma := a.Next(ts)
		mb := b.Next(ts)

		assert.Equal(t, ma.DeviceID, mb.DeviceID)
		assert.Equal(t, *ma.SensorData.Temperature, *mb.SensorData.Temperature)
		assert.Equal(t, *ma.SensorData.Vibration, *mb.SensorData.Vibration)
		assert.Equal(t, ma.IsAnomaly, mb.IsAnomaly)
	}
}
