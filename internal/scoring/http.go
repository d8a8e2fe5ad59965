package scoring

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/idhash"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/observability"
)

// Handler exposes the scoring service over HTTP:
//
//	POST /detect             score both signals
//	POST /detect/temperature score the temperature signal
//	POST /detect/vibration   score the vibration signal
//	POST /alert              accept and log an alert
//	GET  /health             liveness and model status
//	GET  /status             service status and evaluation metrics
//	GET  /metrics            Prometheus exposition
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/detect", s.instrument("/detect", s.handleDetect))
	mux.HandleFunc("/detect/temperature", s.instrument("/detect/temperature", s.handleDetectSignal(domain.SignalTemperature)))
	mux.HandleFunc("/detect/vibration", s.instrument("/detect/vibration", s.handleDetectSignal(domain.SignalVibration)))
	mux.HandleFunc("/alert", s.instrument("/alert", s.handleAlert))
	mux.HandleFunc("/health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("/status", s.instrument("/status", s.handleStatus))
	if s.obs != nil {
		mux.Handle("/metrics", s.obs.Handler())
	} else {
		mux.Handle("/metrics", observability.Handler())
	}

	return mux
}

// statusRecorder captures the response code for request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Service) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.clock()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		if s.obs != nil {
			s.obs.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
			s.obs.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(s.clock().Sub(start).Seconds())
		}
	}
}

func (s *Service) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := s.Score(req)
	if err != nil {
		s.writeScoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleDetectSignal(signal domain.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		req, ok := s.decodeRequest(w, r)
		if !ok {
			return
		}

		result, err := s.ScoreSignal(signal, req)
		if err != nil {
			s.writeScoreError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// handleAlert accepts alerts from the pipeline. Receipt is logged;
// there is no queue behind this endpoint.
func (s *Service) handleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}

	var alert domain.Alert
	if err := json.Unmarshal(body, &alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}

	if alert.AlertID == "" {
		alert.AlertID = idhash.ComputeAlertID(alert.DeviceID, alert.Timestamp, alert.AlertType)
	}

	s.logger.Printf("Alert received: id=%s device=%s type=%s severity=%s",
		alert.AlertID, alert.DeviceID, alert.AlertType, alert.Severity)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "received",
		"alert_id": alert.AlertID,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"timestamp":     s.clock().UTC().Format(time.RFC3339),
		"models_loaded": s.ModelsLoaded(),
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"models_loaded": s.ModelsLoaded(),
		"signals":       map[string]any{},
	}

	if t := s.LoadedAt(); !t.IsZero() {
		status["artifacts_loaded_at"] = t.Format(time.RFC3339)
	}

	signals := status["signals"].(map[string]any)
	for _, signal := range domain.Signals {
		if m := s.EvaluationMetrics(signal); m != nil {
			signals[string(signal)] = m
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// decodeRequest reads and validates the request body. On failure it
// writes the error response and returns ok=false.
func (s *Service) decodeRequest(w http.ResponseWriter, r *http.Request) (*Request, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return nil, false
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return nil, false
	}
	return &req, true
}

func (s *Service) writeScoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrModelsNotLoaded):
		writeError(w, http.StatusInternalServerError, "models not loaded")
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid request")
	default:
		s.logger.Printf("Scoring failed: %v", err)
		writeError(w, http.StatusInternalServerError, "scoring failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
