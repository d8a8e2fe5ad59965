package domain

import "time"

// PredictionResult is the outcome of scoring one reading against both
// per-signal detectors. Ephemeral, produced per scoring call.
// Invariant: IsAnomaly == IsTempAnomaly || IsVibrationAnomaly.
type PredictionResult struct {
	DeviceID           string    `json:"device_id"`
	Timestamp          time.Time `json:"timestamp"`
	Temperature        float64   `json:"temperature"`
	Vibration          float64   `json:"vibration"`
	TempAnomalyScore   float64   `json:"temp_anomaly_score"`
	VibAnomalyScore    float64   `json:"vibration_anomaly_score"`
	IsTempAnomaly      bool      `json:"is_temp_anomaly"`
	IsVibrationAnomaly bool      `json:"is_vibration_anomaly"`
	IsAnomaly          bool      `json:"is_anomaly"`
}
