package domain

import "time"

// SinkRow is the flattened warehouse row written by the pipeline's
// Format stage. Corresponds to sensor_rows table in ClickHouse.
type SinkRow struct {
	DeviceID         string    `json:"device_id"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessedAt      time.Time `json:"processed_at"`
	Building         string    `json:"building"`
	Floor            int       `json:"floor"`
	Room             string    `json:"room"`
	DeviceType       string    `json:"device_type"`
	Temperature      float64   `json:"temperature"`
	Vibration        float64   `json:"vibration"`
	IsAnomaly        bool      `json:"is_anomaly"`
	TempAnomalyScore float64   `json:"temp_anomaly_score"`
	VibAnomalyScore  float64   `json:"vibration_anomaly_score"`
	AnomalyType      *string   `json:"anomaly_type,omitempty"`
	TempMA           float64   `json:"temp_ma"`
	VibrationMA      float64   `json:"vibration_ma"`
	TempZScore       float64   `json:"temp_zscore"`
	VibrationZScore  float64   `json:"vibration_zscore"`
}
