// Package alerting delivers anomaly alerts to an HTTP webhook.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/idhash"
)

// Dispatcher posts alerts to a webhook endpoint. Delivery is
// best-effort: failures are logged and reported but never retried.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	logger     *log.Logger
}

// Options contains configuration for creating a Dispatcher.
type Options struct {
	WebhookURL string
	Timeout    time.Duration // Default: 5s
	Logger     *log.Logger
}

// New creates a new Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.WebhookURL == "" {
		return nil, errors.New("alerting: WebhookURL is required")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Dispatcher{
		webhookURL: opts.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Dispatch fills in the alert ID if absent and posts the alert. The
// returned error is informational; callers keep processing either way.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *domain.Alert) error {
	if alert == nil {
		return errors.New("alerting: nil alert")
	}

	if alert.AlertID == "" {
		alert.AlertID = idhash.ComputeAlertID(alert.DeviceID, alert.Timestamp, alert.AlertType)
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Printf("Alert delivery failed: id=%s err=%v", alert.AlertID, err)
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Printf("Alert delivery rejected: id=%s status=%d", alert.AlertID, resp.StatusCode)
		return fmt.Errorf("post alert: unexpected status %d", resp.StatusCode)
	}

	return nil
}
