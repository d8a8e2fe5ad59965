package domain

import "time"

// Alert severities.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Alert is a fire-and-forget notification for an anomalous reading.
// Delivery is best-effort; there is no persistence guarantee here.
type Alert struct {
	AlertID     string    `json:"alert_id,omitempty"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	AlertType   string    `json:"alert_type"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Temperature float64   `json:"temperature"`
	Vibration   float64   `json:"vibration"`
	AnomalyType *string   `json:"anomaly_type,omitempty"`
}
