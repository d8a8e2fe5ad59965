package pipeline

import (
	"fmt"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/scoring"
)

// parseStage decodes a raw payload into a Record.
func parseStage(raw []byte, now time.Time) (*Record, *StageError) {
	msg, err := domain.ParseRawMessage(raw)
	if err != nil {
		return nil, &StageError{
			Stage:     StageParse,
			Payload:   raw,
			Err:       fmt.Errorf("parse payload: %w", err),
			Timestamp: now,
		}
	}

	reading := msg.Reading()
	if reading.DeviceID == "" {
		reading.DeviceID = "unknown"
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = now
	}

	return &Record{Raw: raw, Message: msg, Reading: reading}, nil
}

// scoringRequest builds the detection request for a record.
func scoringRequest(rec *Record) *scoring.Request {
	temp := rec.Reading.Temperature
	vib := rec.Reading.Vibration
	ts := rec.Reading.Timestamp

	return &scoring.Request{
		DeviceID:    rec.Reading.DeviceID,
		Timestamp:   &ts,
		Temperature: &temp,
		Vibration:   &vib,
	}
}

// buildAlert constructs the alert for an anomalous prediction, or nil
// when the record is normal. Both signals anomalous raises the severity.
func buildAlert(rec *Record) *domain.Alert {
	pred := rec.Prediction
	if pred == nil || !pred.IsAnomaly {
		return nil
	}

	severity := domain.SeverityMedium
	if pred.IsTempAnomaly && pred.IsVibrationAnomaly {
		severity = domain.SeverityHigh
	}

	alert := &domain.Alert{
		DeviceID:    pred.DeviceID,
		Timestamp:   pred.Timestamp,
		AlertType:   "anomaly_detected",
		Severity:    severity,
		Message:     fmt.Sprintf("Anomaly detected on device %s", pred.DeviceID),
		Temperature: pred.Temperature,
		Vibration:   pred.Vibration,
	}
	if rec.Message != nil {
		alert.AnomalyType = rec.Message.SensorData.AnomalyType
	}
	return alert
}

// formatRow flattens a fully scored record into a warehouse row.
func formatRow(rec *Record, processedAt time.Time) *domain.SinkRow {
	pred := rec.Prediction

	row := &domain.SinkRow{
		DeviceID:         rec.Reading.DeviceID,
		Timestamp:        rec.Reading.Timestamp,
		ProcessedAt:      processedAt.UTC(),
		Temperature:      rec.Reading.Temperature,
		Vibration:        rec.Reading.Vibration,
		IsAnomaly:        pred.IsAnomaly,
		TempAnomalyScore: pred.TempAnomalyScore,
		VibAnomalyScore:  pred.VibAnomalyScore,
		TempMA:           rec.Features.TempMA,
		VibrationMA:      rec.Features.VibrationMA,
		TempZScore:       rec.Features.TempZScore,
		VibrationZScore:  rec.Features.VibZScore,
	}

	if rec.Message != nil {
		row.Building = rec.Message.Location.Building
		row.Floor = rec.Message.Location.Floor
		row.Room = rec.Message.Location.Room
		row.DeviceType = rec.Message.DeviceType
		row.AnomalyType = rec.Message.SensorData.AnomalyType
	}

	return row
}
