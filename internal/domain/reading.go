package domain

import (
	"encoding/json"
	"time"
)

// Reading is a single sensor reading for one device.
// Immutable once ingested; consumed exactly once per pipeline pass.
type Reading struct {
	DeviceID    string    // device identifier
	Timestamp   time.Time // reading time (UTC)
	Temperature float64   // degrees Celsius
	Vibration   float64   // mm/s RMS
	Labeled     *bool     // labeled_anomaly from historical data, nil when unlabeled
}

// IsLabeledAnomaly reports the training label, defaulting to false when absent.
func (r *Reading) IsLabeledAnomaly() bool {
	return r.Labeled != nil && *r.Labeled
}

// Location identifies where a device is installed.
type Location struct {
	Building string `json:"building"`
	Floor    int    `json:"floor"`
	Room     string `json:"room"`
}

// SensorData is the nested measurement block of a raw gateway message.
type SensorData struct {
	Temperature *float64 `json:"temperature"`
	Vibration   *float64 `json:"vibration"`
	AnomalyType *string  `json:"anomaly_type,omitempty"`
}

// RawMessage is the JSON envelope published by the sensor gateway.
type RawMessage struct {
	DeviceID   string     `json:"device_id"`
	Timestamp  time.Time  `json:"timestamp"`
	DeviceType string     `json:"device_type"`
	Location   Location   `json:"location"`
	SensorData SensorData `json:"sensor_data"`
	IsAnomaly  bool       `json:"is_anomaly"`
}

// ParseRawMessage decodes a gateway payload. Missing numeric fields are
// defaulted to 0.0 by Reading(); a decode failure is the caller's signal
// to route the payload to the error channel.
func ParseRawMessage(data []byte) (*RawMessage, error) {
	var m RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Reading converts the envelope to a Reading, substituting 0.0 for
// absent measurements.
func (m *RawMessage) Reading() Reading {
	labeled := m.IsAnomaly
	r := Reading{
		DeviceID:  m.DeviceID,
		Timestamp: m.Timestamp.UTC(),
		Labeled:   &labeled,
	}
	if m.SensorData.Temperature != nil {
		r.Temperature = *m.SensorData.Temperature
	}
	if m.SensorData.Vibration != nil {
		r.Vibration = *m.SensorData.Vibration
	}
	return r
}
