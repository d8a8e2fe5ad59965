package domain

// FeatureVector is the fixed eight-dimensional summary of a reading.
// All fields are always present and numeric; missing inputs are filled
// with a neutral 0.0 before a vector reaches a detector.
type FeatureVector struct {
	Temperature float64
	Vibration   float64
	HourOfDay   int // [0,23], UTC
	DayOfWeek   int // [0,6], Monday=0
	TempMA      float64
	VibrationMA float64
	TempZScore  float64
	VibZScore   float64
}

// SignalFeatureDim is the per-signal feature dimensionality.
const SignalFeatureDim = 5

// TemperatureFeatures returns the temperature-path subset:
// {temperature, hour, day_of_week, temp_ma, temp_zscore}.
func (v *FeatureVector) TemperatureFeatures() []float64 {
	return []float64{v.Temperature, float64(v.HourOfDay), float64(v.DayOfWeek), v.TempMA, v.TempZScore}
}

// VibrationFeatures returns the vibration-path subset:
// {vibration, hour, day_of_week, vibration_ma, vibration_zscore}.
func (v *FeatureVector) VibrationFeatures() []float64 {
	return []float64{v.Vibration, float64(v.HourOfDay), float64(v.DayOfWeek), v.VibrationMA, v.VibZScore}
}

// SignalFeatures selects the subset for the given signal.
func (v *FeatureVector) SignalFeatures(signal Signal) []float64 {
	if signal == SignalVibration {
		return v.VibrationFeatures()
	}
	return v.TemperatureFeatures()
}
