// Package artifact persists trained model artifacts on the local filesystem,
// one set of files per signal:
//
//	<dir>/temperature_model.gob
//	<dir>/temperature_scaler.json
//	<dir>/temperature_metrics.json
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/storage"
)

// FSStore implements storage.ArtifactStore over a directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the artifact directory if needed and returns a store.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, storage.ErrInvalidInput
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// Compile-time interface check.
var _ storage.ArtifactStore = (*FSStore)(nil)

// Save writes all artifacts for one signal. Overwrites any previous run.
// Files are written via a temp file and rename so a crashed run never
// leaves a truncated model on disk.
func (s *FSStore) Save(_ context.Context, a *storage.SignalArtifact) error {
	if a == nil || a.Signal == "" {
		return storage.ErrInvalidInput
	}

	if err := s.writeFile(s.modelPath(a.Signal), a.Model); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := s.writeFile(s.scalerPath(a.Signal), a.Scaler); err != nil {
		return fmt.Errorf("write scaler: %w", err)
	}

	if a.Metrics != nil {
		data, err := json.MarshalIndent(a.Metrics, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
		if err := s.writeFile(s.metricsPath(a.Signal), data); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	return nil
}

// Load retrieves the artifacts for a signal. Returns ErrNotFound if
// the signal has never been trained.
func (s *FSStore) Load(_ context.Context, signal domain.Signal) (*storage.SignalArtifact, error) {
	model, err := os.ReadFile(s.modelPath(signal))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read model: %w", err)
	}

	scaler, err := os.ReadFile(s.scalerPath(signal))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read scaler: %w", err)
	}

	a := &storage.SignalArtifact{
		Signal: signal,
		Model:  model,
		Scaler: scaler,
	}

	// Metrics are informational; a missing file is not an error.
	metricsData, err := os.ReadFile(s.metricsPath(signal))
	if err == nil {
		var m domain.EvaluationMetrics
		if err := json.Unmarshal(metricsData, &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		a.Metrics = &m
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read metrics: %w", err)
	}

	return a, nil
}

func (s *FSStore) modelPath(signal domain.Signal) string {
	return filepath.Join(s.dir, string(signal)+"_model.gob")
}

func (s *FSStore) scalerPath(signal domain.Signal) string {
	return filepath.Join(s.dir, string(signal)+"_scaler.json")
}

func (s *FSStore) metricsPath(signal domain.Signal) string {
	return filepath.Join(s.dir, string(signal)+"_metrics.json")
}

func (s *FSStore) writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
