package memory

import (
	"context"
	"sync"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// ArtifactStore is an in-memory implementation of storage.ArtifactStore.
type ArtifactStore struct {
	mu   sync.RWMutex
	data map[domain.Signal]*storage.SignalArtifact
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		data: make(map[domain.Signal]*storage.SignalArtifact),
	}
}

// Compile-time interface check.
var _ storage.ArtifactStore = (*ArtifactStore)(nil)

// Save writes all artifacts for one signal. Overwrites any previous run.
func (s *ArtifactStore) Save(_ context.Context, a *storage.SignalArtifact) error {
	if a == nil || a.Signal == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[a.Signal] = copyArtifact(a)
	return nil
}

// Load retrieves the artifacts for a signal. Returns ErrNotFound if
// the signal has never been trained.
func (s *ArtifactStore) Load(_ context.Context, signal domain.Signal) (*storage.SignalArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[signal]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyArtifact(a), nil
}

// copyArtifact deep-copies an artifact so callers cannot mutate stored state.
func copyArtifact(a *storage.SignalArtifact) *storage.SignalArtifact {
	artifactCopy := &storage.SignalArtifact{
		Signal: a.Signal,
		Model:  append([]byte(nil), a.Model...),
		Scaler: append([]byte(nil), a.Scaler...),
	}
	if a.Metrics != nil {
		metricsCopy := *a.Metrics
		artifactCopy.Metrics = &metricsCopy
	}
	return artifactCopy
}
