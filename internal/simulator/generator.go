// Package simulator produces synthetic gateway traffic: a fleet of
// devices emitting normal readings with occasional injected anomalies.
package simulator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"
)

// Anomaly types stamped on injected readings.
const (
	AnomalyTempSpike     = "temp_spike"
	AnomalyVibrationHigh = "vibration_high"
	AnomalyCombined      = "combined"
)

// Generator emits readings for a fixed fleet. Seeded, so two
// generators with the same options produce the same stream.
type Generator struct {
	devices     []deviceProfile
	anomalyRate float64
	rng         *rand.Rand
	next        int
}

type deviceProfile struct {
	id       string
	building string
	floor    int
	room     string
}

// Options contains configuration for creating a Generator.
type Options struct {
	Devices     int     // Default: 5
	AnomalyRate float64 // Default: 0.02
	Seed        int64   // Default: 1
}

// New creates a new Generator.
func New(opts Options) *Generator {
	devices := opts.Devices
	if devices <= 0 {
		devices = 5
	}
	anomalyRate := opts.AnomalyRate
	if anomalyRate <= 0 {
		anomalyRate = 0.02
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}

	rng := rand.New(rand.NewSource(seed))

	fleet := make([]deviceProfile, devices)
	for i := range fleet {
		fleet[i] = deviceProfile{
			id:       fmt.Sprintf("sensor-%03d", i+1),
			building: string(rune('A' + i%3)),
			floor:    1 + i%4,
			room:     fmt.Sprintf("%d0%d", 1+i%4, 1+i%9),
		}
	}

	return &Generator{
		devices:     fleet,
		anomalyRate: anomalyRate,
		rng:         rng,
	}
}

// Next produces the next message, cycling through the fleet. Normal
// readings sit in the 21-23 degree and 0.8-1.4 mm/s bands; injected
// anomalies carry an anomaly_type marker for downstream evaluation.
func (g *Generator) Next(ts time.Time) *domain.RawMessage {
	device := g.devices[g.next%len(g.devices)]
	g.next++

	temp := 21.0 + g.rng.Float64()*2
	vib := 0.8 + g.rng.Float64()*0.6

	msg := &domain.RawMessage{
		DeviceID:   device.id,
		Timestamp:  ts.UTC(),
		DeviceType: "multi_sensor",
		Location: domain.Location{
			Building: device.building,
			Floor:    device.floor,
			Room:     device.room,
		},
	}

	if g.rng.Float64() < g.anomalyRate {
		anomalyType := g.injectAnomaly(&temp, &vib)
		msg.IsAnomaly = true
		msg.SensorData.AnomalyType = &anomalyType
	}

	msg.SensorData.Temperature = &temp
	msg.SensorData.Vibration = &vib
	return msg
}

func (g *Generator) injectAnomaly(temp, vib *float64) string {
	switch g.rng.Intn(3) {
	case 0:
		*temp = 38.0 + g.rng.Float64()*12
		return AnomalyTempSpike
	case 1:
		*vib = 4.0 + g.rng.Float64()*3
		return AnomalyVibrationHigh
	default:
		*temp = 38.0 + g.rng.Float64()*12
		*vib = 4.0 + g.rng.Float64()*3
		return AnomalyCombined
	}
}
