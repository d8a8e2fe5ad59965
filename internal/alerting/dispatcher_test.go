package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

func testAlert() *domain.Alert {
	return &domain.Alert{
		DeviceID:    "sensor-001",
		Timestamp:   time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		AlertType:   "anomaly_detected",
		Severity:    domain.SeverityHigh,
		Message:     "anomaly on sensor-001",
		Temperature: 40.2,
		Vibration:   1.1,
	}
}

func TestDispatcher_PostsAlert(t *testing.T) {
	var received domain.Alert
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d, err := New(Options{WebhookURL: server.URL})
	require.NoError(t, err)

	alert := testAlert()
	require.NoError(t, d.Dispatch(context.Background(), alert))

	assert.Equal(t, "sensor-001", received.DeviceID)
	assert.NotEmpty(t, received.AlertID)
	assert.Equal(t, alert.AlertID, received.AlertID)
}

func TestDispatcher_DeterministicAlertID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d, err := New(Options{WebhookURL: server.URL})
	require.NoError(t, err)

	a := testAlert()
	b := testAlert()
	require.NoError(t, d.Dispatch(context.Background(), a))
	require.NoError(t, d.Dispatch(context.Background(), b))

	assert.Equal(t, a.AlertID, b.AlertID)
}

func TestDispatcher_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d, err := New(Options{WebhookURL: server.URL})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), testAlert())
	assert.Error(t, err)
}

func TestDispatcher_Unreachable(t *testing.T) {
	d, err := New(Options{
		WebhookURL: "http://127.0.0.1:1",
		Timeout:    200 * time.Millisecond,
	})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), testAlert())
	assert.Error(t, err)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
