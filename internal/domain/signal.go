package domain

// Signal identifies which sensor channel a model or artifact belongs to.
type Signal string

const (
	SignalTemperature Signal = "temperature"
	SignalVibration   Signal = "vibration"
)

// Signals lists all scored channels in canonical order.
var Signals = []Signal{SignalTemperature, SignalVibration}
