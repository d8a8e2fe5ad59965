package idhash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeAlertID_Deterministic(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	id1 := ComputeAlertID("sensor-001", ts, "anomaly_detected")
	id2 := ComputeAlertID("sensor-001", ts, "anomaly_detected")
	assert.Equal(t, id1, id2)
	assert.NotEmpty(t, id1)
}

func TestComputeAlertID_DistinctInputs(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	base := ComputeAlertID("sensor-001", ts, "anomaly_detected")

	assert.NotEqual(t, base, ComputeAlertID("sensor-002", ts, "anomaly_detected"))
	assert.NotEqual(t, base, ComputeAlertID("sensor-001", ts.Add(time.Millisecond), "anomaly_detected"))
	assert.NotEqual(t, base, ComputeAlertID("sensor-001", ts, "threshold_breach"))
}

func TestComputeReadingID_Deterministic(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, ComputeReadingID("sensor-001", ts), ComputeReadingID("sensor-001", ts))
	assert.NotEqual(t, ComputeReadingID("sensor-001", ts), ComputeReadingID("sensor-002", ts))
}
