package features

import (
	"sync"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

// DefaultHistoryLen bounds the per-device window the streaming path
// keeps for moving averages and z-scores.
const DefaultHistoryLen = 64

// DeviceHistory holds a bounded trailing window of readings per device
// so the streaming pipeline can compute the same rolling statistics the
// trainer derives from stored history. Safe for concurrent use.
type DeviceHistory struct {
	mu     sync.Mutex
	maxLen int
	data   map[string][]domain.Reading
}

// NewDeviceHistory creates a history with the given per-device window
// length. A non-positive maxLen falls back to DefaultHistoryLen.
func NewDeviceHistory(maxLen int) *DeviceHistory {
	if maxLen <= 0 {
		maxLen = DefaultHistoryLen
	}
	return &DeviceHistory{
		maxLen: maxLen,
		data:   make(map[string][]domain.Reading),
	}
}

// Observe appends the reading to its device's window and returns the
// feature vector for it, computed over the retained window.
func (h *DeviceHistory) Observe(r domain.Reading) domain.FeatureVector {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := append(h.data[r.DeviceID], r)
	if len(window) > h.maxLen {
		window = window[len(window)-h.maxLen:]
	}
	h.data[r.DeviceID] = window

	return Vector(window)
}

// Len reports the current window length for a device.
func (h *DeviceHistory) Len(deviceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.data[deviceID])
}
