// Package detector implements per-signal anomaly detection with an
// isolation forest over standardized feature vectors.
package detector

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sort"
)

var (
	// ErrNotFitted is returned when scoring is attempted before Fit or Load.
	ErrNotFitted = errors.New("detector: model not fitted")

	// ErrEmptyTrainingData is returned when Fit receives no samples.
	ErrEmptyTrainingData = errors.New("detector: empty training data")

	// ErrDimensionMismatch is returned when a sample's width differs from
	// the training data.
	ErrDimensionMismatch = errors.New("detector: feature dimension mismatch")
)

// ForestConfig holds the isolation forest hyperparameters.
type ForestConfig struct {
	Trees      int
	SampleSize int
	Seed       int64
}

// DefaultForestConfig matches the training defaults: 100 trees,
// subsamples of 256, fixed seed for reproducible runs.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, SampleSize: 256, Seed: 42}
}

// Forest is an isolation forest. Exported fields are the persisted
// model state; gob handles (de)serialization.
type Forest struct {
	Trees       []*forestNode
	SampleSize  int
	NumFeatures int
	AvgPath     float64
	Offset      float64

	fitted bool
}

// forestNode is one node of an isolation tree. Leaves have no children
// and record how many samples reached them.
type forestNode struct {
	SplitFeature int
	SplitValue   float64
	Left         *forestNode
	Right        *forestNode
	Size         int
}

// NewForest creates an unfitted forest. Zero config fields fall back
// to the defaults.
func NewForest(cfg ForestConfig) *Forest {
	def := DefaultForestConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	return &Forest{
		Trees:      make([]*forestNode, 0, cfg.Trees),
		SampleSize: cfg.SampleSize,
	}
}

// Fit builds the trees from data and calibrates the decision offset so
// that roughly a contamination fraction of the training samples fall
// below it.
func (f *Forest) Fit(data [][]float64, contamination float64, cfg ForestConfig) error {
	if len(data) == 0 {
		return ErrEmptyTrainingData
	}

	def := DefaultForestConfig()
	if cfg.Trees <= 0 {
		cfg.Trees = def.Trees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}

	nSamples := len(data)
	f.NumFeatures = len(data[0])
	for _, row := range data {
		if len(row) != f.NumFeatures {
			return ErrDimensionMismatch
		}
	}

	sampleSize := cfg.SampleSize
	if sampleSize > nSamples {
		sampleSize = nSamples
	}
	f.SampleSize = sampleSize

	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	f.Trees = make([]*forestNode, cfg.Trees)
	for i := range f.Trees {
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		f.Trees[i] = buildNode(rng, sample, f.NumFeatures, 0, maxDepth)
	}

	f.AvgPath = averagePathLength(float64(sampleSize))
	f.fitted = true

	// Offset such that the top contamination fraction of training scores
	// gets a negative decision value.
	scores := make([]float64, nSamples)
	for i, row := range data {
		scores[i] = f.anomalyScore(row)
	}
	f.Offset = percentile(scores, 100*(1-contamination))

	return nil
}

func buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth, maxDepth int) *forestNode {
	n := len(data)
	if depth >= maxDepth || n <= 1 {
		return &forestNode{Size: n}
	}

	feature := rng.Intn(nFeatures)

	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}
	if minVal == maxVal {
		return &forestNode{Size: n}
	}

	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	var left, right [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &forestNode{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         buildNode(rng, left, nFeatures, depth+1, maxDepth),
		Right:        buildNode(rng, right, nFeatures, depth+1, maxDepth),
	}
}

// AnomalyScore returns the raw isolation score in (0, 1]. Higher means
// more anomalous.
func (f *Forest) AnomalyScore(sample []float64) (float64, error) {
	if !f.fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != f.NumFeatures {
		return 0, ErrDimensionMismatch
	}
	return f.anomalyScore(sample), nil
}

// Decision returns the signed decision value. Negative means anomalous;
// the magnitude reflects distance from the calibrated offset.
func (f *Forest) Decision(sample []float64) (float64, error) {
	score, err := f.AnomalyScore(sample)
	if err != nil {
		return 0, err
	}
	return f.Offset - score, nil
}

func (f *Forest) anomalyScore(sample []float64) float64 {
	var total float64
	for _, tree := range f.Trees {
		total += pathLength(sample, tree, 0)
	}
	avg := total / float64(len(f.Trees))
	return math.Pow(2, -avg/f.AvgPath)
}

func pathLength(sample []float64, n *forestNode, depth int) float64 {
	if n.Left == nil && n.Right == nil {
		return float64(depth) + averagePathLength(float64(n.Size))
	}
	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, depth+1)
	}
	return pathLength(sample, n.Right, depth+1)
}

// averagePathLength is c(n), the expected path length of an
// unsuccessful BST search over n samples.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	const eulerMascheroni = 0.5772156649
	return 2*(math.Log(n-1)+eulerMascheroni) - 2*(n-1)/n
}

// Encode serializes the fitted forest.
func (f *Forest) Encode() ([]byte, error) {
	if !f.fitted {
		return nil, ErrNotFitted
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeForest deserializes a forest previously written by Encode.
func DecodeForest(data []byte) (*Forest, error) {
	var f Forest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, err
	}
	f.fitted = true
	return &f, nil
}

// percentile returns the p-th percentile using nearest-rank on a
// sorted copy.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
