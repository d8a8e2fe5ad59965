package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

type sinkRowKey struct {
	deviceID  string
	timestamp int64 // unix millis
}

// SinkRowStore is an in-memory implementation of storage.SinkRowStore.
type SinkRowStore struct {
	mu   sync.RWMutex
	data map[sinkRowKey]*domain.SinkRow
}

// NewSinkRowStore creates a new in-memory sink row store.
func NewSinkRowStore() *SinkRowStore {
	return &SinkRowStore{
		data: make(map[sinkRowKey]*domain.SinkRow),
	}
}

// Compile-time interface check.
var _ storage.SinkRowStore = (*SinkRowStore)(nil)

// InsertBulk adds multiple rows. Fails entire batch on duplicate (device_id, timestamp).
func (s *SinkRowStore) InsertBulk(_ context.Context, rows []*domain.SinkRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[sinkRowKey]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.DeviceID == "" {
			return storage.ErrInvalidInput
		}
		k := sinkRowKey{r.DeviceID, r.Timestamp.UnixMilli()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range rows {
		k := sinkRowKey{r.DeviceID, r.Timestamp.UnixMilli()}
		rowCopy := *r
		s.data[k] = &rowCopy
	}
	return nil
}

// GetByDevice retrieves all rows for a device, ordered by timestamp ASC.
func (s *SinkRowStore) GetByDevice(_ context.Context, deviceID string) ([]*domain.SinkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SinkRow
	for _, r := range s.data {
		if r.DeviceID == deviceID {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// GetByTimeRange retrieves rows within [start, end] (inclusive),
// ordered by timestamp ASC, device_id ASC.
func (s *SinkRowStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.SinkRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SinkRow
	for _, r := range s.data {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].DeviceID < result[j].DeviceID
	})

	return result, nil
}

// CountAnomalies counts rows with is_anomaly = true within [start, end].
func (s *SinkRowStore) CountAnomalies(_ context.Context, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.data {
		if r.IsAnomaly && !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			count++
		}
	}
	return count, nil
}
