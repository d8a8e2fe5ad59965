package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

type readingKey struct {
	deviceID  string
	timestamp int64 // unix millis
}

// ReadingStore is an in-memory implementation of storage.ReadingStore.
type ReadingStore struct {
	mu   sync.RWMutex
	data map[readingKey]*domain.Reading
}

// NewReadingStore creates a new in-memory reading store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{
		data: make(map[readingKey]*domain.Reading),
	}
}

// Compile-time interface check.
var _ storage.ReadingStore = (*ReadingStore)(nil)

// Insert adds a new reading. Returns ErrDuplicateKey if (device_id, timestamp) exists.
func (s *ReadingStore) Insert(_ context.Context, r *domain.Reading) error {
	if r == nil || r.DeviceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(r)
}

// InsertBulk adds multiple readings atomically. Fails entire batch on any duplicate.
func (s *ReadingStore) InsertBulk(_ context.Context, readings []*domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching the map.
	seen := make(map[readingKey]struct{}, len(readings))
	for _, r := range readings {
		if r == nil || r.DeviceID == "" {
			return storage.ErrInvalidInput
		}
		k := readingKey{r.DeviceID, r.Timestamp.UnixMilli()}
		if _, dup := seen[k]; dup {
			return storage.ErrDuplicateKey
		}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range readings {
		if err := s.insertLocked(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReadingStore) insertLocked(r *domain.Reading) error {
	k := readingKey{r.DeviceID, r.Timestamp.UnixMilli()}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	readingCopy := *r
	s.data[k] = &readingCopy
	return nil
}

// GetByTimeRange retrieves readings within [start, end] (inclusive),
// ordered by timestamp ASC, device_id ASC.
func (s *ReadingStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Reading
	for _, r := range s.data {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			readingCopy := *r
			result = append(result, &readingCopy)
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

// GetByDevice retrieves all readings for a device, ordered by timestamp ASC.
func (s *ReadingStore) GetByDevice(_ context.Context, deviceID string) ([]*domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Reading
	for _, r := range s.data {
		if r.DeviceID == deviceID {
			readingCopy := *r
			result = append(result, &readingCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}
