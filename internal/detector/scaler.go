package detector

import (
	"encoding/json"
	"math"
)

// Scaler standardizes features to zero mean and unit variance. The
// parameters are frozen at training time and shipped alongside the
// forest so the serving path applies the same transform.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population standard deviation.
// A constant column gets scale 1 so transforming it is a no-op shift.
func FitScaler(data [][]float64) (*Scaler, error) {
	if len(data) == 0 {
		return nil, ErrEmptyTrainingData
	}

	dim := len(data[0])
	s := &Scaler{
		Mean:  make([]float64, dim),
		Scale: make([]float64, dim),
	}

	for _, row := range data {
		if len(row) != dim {
			return nil, ErrDimensionMismatch
		}
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	n := float64(len(data))
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	for _, row := range data {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Scale[j] += d * d
		}
	}
	for j := range s.Scale {
		s.Scale[j] = math.Sqrt(s.Scale[j] / n)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}

	return s, nil
}

// Transform standardizes a single sample.
func (s *Scaler) Transform(sample []float64) ([]float64, error) {
	if len(sample) != len(s.Mean) {
		return nil, ErrDimensionMismatch
	}

	out := make([]float64, len(sample))
	for j, v := range sample {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformBatch standardizes every row.
func (s *Scaler) TransformBatch(data [][]float64) ([][]float64, error) {
	out := make([][]float64, len(data))
	for i, row := range data {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// Encode serializes the scaler parameters as JSON.
func (s *Scaler) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeScaler parses scaler parameters written by Encode.
func DecodeScaler(data []byte) (*Scaler, error) {
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return nil, ErrDimensionMismatch
	}
	return &s, nil
}
