// Package pipeline runs the streaming flow: parse raw payloads, enrich
// with per-device rolling features, score against the detection service,
// raise alerts, and sink flattened rows to the warehouse. Every ingested
// payload ends up as exactly one sink row or one stage error.
package pipeline

import (
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

// Stage names, used for error routing and metrics labels.
const (
	StageParse  = "parse"
	StageEnrich = "enrich"
	StageScore  = "score"
	StageAlert  = "alert"
	StageSink   = "sink"
)

// Record carries one reading through the stages. Fields are filled in
// as the record advances; a record that reaches the sink has all of
// them set.
type Record struct {
	Raw        []byte
	Message    *domain.RawMessage
	Reading    domain.Reading
	Features   domain.FeatureVector
	Prediction *domain.PredictionResult
}

// StageError is a payload that failed a stage. It carries enough of
// the original input to be replayed once the cause is fixed.
type StageError struct {
	Stage     string
	DeviceID  string
	Payload   []byte
	Err       error
	Timestamp time.Time
}
