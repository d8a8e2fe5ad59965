package detector

// Detector couples a fitted scaler and forest for one signal. Scoring
// is read-only and safe for concurrent use once constructed.
type Detector struct {
	scaler *Scaler
	forest *Forest
}

// Fit standardizes the training matrix, fits a forest on it, and
// returns the resulting detector.
func Fit(data [][]float64, contamination float64, cfg ForestConfig) (*Detector, error) {
	scaler, err := FitScaler(data)
	if err != nil {
		return nil, err
	}

	scaled, err := scaler.TransformBatch(data)
	if err != nil {
		return nil, err
	}

	forest := NewForest(cfg)
	if err := forest.Fit(scaled, contamination, cfg); err != nil {
		return nil, err
	}

	return &Detector{scaler: scaler, forest: forest}, nil
}

// FromArtifacts reconstructs a detector from a gob-encoded forest and
// JSON-encoded scaler parameters.
func FromArtifacts(model, scalerParams []byte) (*Detector, error) {
	forest, err := DecodeForest(model)
	if err != nil {
		return nil, err
	}
	scaler, err := DecodeScaler(scalerParams)
	if err != nil {
		return nil, err
	}
	return &Detector{scaler: scaler, forest: forest}, nil
}

// Score standardizes the sample and returns its decision value and
// anomaly verdict. Negative decision values are anomalies.
func (d *Detector) Score(sample []float64) (float64, bool, error) {
	scaled, err := d.scaler.Transform(sample)
	if err != nil {
		return 0, false, err
	}

	decision, err := d.forest.Decision(scaled)
	if err != nil {
		return 0, false, err
	}
	return decision, decision < 0, nil
}

// Artifacts serializes the detector's forest and scaler for persistence.
func (d *Detector) Artifacts() (model, scalerParams []byte, err error) {
	model, err = d.forest.Encode()
	if err != nil {
		return nil, nil, err
	}
	scalerParams, err = d.scaler.Encode()
	if err != nil {
		return nil, nil, err
	}
	return model, scalerParams, nil
}
