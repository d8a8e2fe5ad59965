// Package features turns raw sensor readings into the fixed feature
// vectors the detectors consume. The same arithmetic backs both the
// offline training path and the streaming enrichment path.
package features

import (
	"math"
	"sort"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

// maWindow is the rolling-average window, in readings.
const maWindow = 5

// Example pairs a feature vector with its training label.
type Example struct {
	DeviceID  string
	Timestamp time.Time
	Vector    domain.FeatureVector
	Anomaly   bool
}

// Vector computes the feature vector for the last reading of a
// chronological per-device window. The moving averages use the trailing
// maWindow readings; the z-scores use the whole window. A window shorter
// than maWindow averages what is there, and a constant window yields
// z-scores of 0.
func Vector(window []domain.Reading) domain.FeatureVector {
	if len(window) == 0 {
		return domain.FeatureVector{}
	}

	current := window[len(window)-1]

	temps := make([]float64, len(window))
	vibs := make([]float64, len(window))
	for i, r := range window {
		temps[i] = r.Temperature
		vibs[i] = r.Vibration
	}

	return domain.FeatureVector{
		Temperature: current.Temperature,
		Vibration:   current.Vibration,
		HourOfDay:   current.Timestamp.UTC().Hour(),
		DayOfWeek:   mondayIndexed(current.Timestamp.UTC().Weekday()),
		TempMA:      trailingMean(temps, maWindow),
		VibrationMA: trailingMean(vibs, maWindow),
		TempZScore:  zscore(current.Temperature, temps),
		VibZScore:   zscore(current.Vibration, vibs),
	}
}

// PrepareTraining converts a batch of historical readings into labeled
// examples. Readings are grouped by device and sorted by timestamp; the
// moving average is a trailing window within the device series while the
// z-score is taken against the device's full series.
func PrepareTraining(readings []*domain.Reading) []Example {
	byDevice := make(map[string][]domain.Reading)
	for _, r := range readings {
		if r == nil {
			continue
		}
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], *r)
	}

	// Deterministic output order
	devices := make([]string, 0, len(byDevice))
	for d := range byDevice {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	var examples []Example
	for _, device := range devices {
		series := byDevice[device]
		sort.Slice(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})

		temps := make([]float64, len(series))
		vibs := make([]float64, len(series))
		for i, r := range series {
			temps[i] = r.Temperature
			vibs[i] = r.Vibration
		}

		tempMean, tempStd := meanStd(temps)
		vibMean, vibStd := meanStd(vibs)

		for i, r := range series {
			lo := i + 1 - maWindow
			if lo < 0 {
				lo = 0
			}

			examples = append(examples, Example{
				DeviceID:  r.DeviceID,
				Timestamp: r.Timestamp,
				Vector: domain.FeatureVector{
					Temperature: r.Temperature,
					Vibration:   r.Vibration,
					HourOfDay:   r.Timestamp.UTC().Hour(),
					DayOfWeek:   mondayIndexed(r.Timestamp.UTC().Weekday()),
					TempMA:      mean(temps[lo : i+1]),
					VibrationMA: mean(vibs[lo : i+1]),
					TempZScore:  safeZ(r.Temperature, tempMean, tempStd),
					VibZScore:   safeZ(r.Vibration, vibMean, vibStd),
				},
				Anomaly: r.IsLabeledAnomaly(),
			})
		}
	}

	return examples
}

// mondayIndexed maps time.Weekday (Sunday=0) to Monday=0 indexing.
func mondayIndexed(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func trailingMean(values []float64, window int) float64 {
	lo := len(values) - window
	if lo < 0 {
		lo = 0
	}
	return mean(values[lo:])
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	variance /= float64(len(values))
	return m, math.Sqrt(variance)
}

func zscore(x float64, values []float64) float64 {
	m, std := meanStd(values)
	return safeZ(x, m, std)
}

func safeZ(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}
