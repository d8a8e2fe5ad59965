// Package idhash computes deterministic identifiers for records that
// have no natural key, so replays and retries produce identical IDs.
package idhash

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// ComputeAlertID computes a deterministic alert identifier.
// Formula: base58(SHA256(device_id|timestamp_ms|alert_type)[:16])
func ComputeAlertID(deviceID string, timestamp time.Time, alertType string) string {
	data := fmt.Sprintf("%s|%d|%s", deviceID, timestamp.UnixMilli(), alertType)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}

// ComputeReadingID computes a deterministic reading identifier.
// Formula: base58(SHA256(device_id|timestamp_ms)[:16])
func ComputeReadingID(deviceID string, timestamp time.Time) string {
	data := fmt.Sprintf("%s|%d", deviceID, timestamp.UnixMilli())
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:16])
}
