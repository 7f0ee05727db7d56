// Package vad decides whether an analysis window carries enough energy to be
// worth transcribing.
package vad

import "math"

// DefaultThreshold is the mean absolute amplitude a window must exceed.
const DefaultThreshold = 0.02

// Gate is a stateless energy-threshold voice-activity detector.
type Gate struct {
	Threshold float64
}

// DefaultGate returns a Gate with DefaultThreshold.
func DefaultGate() Gate {
	return Gate{Threshold: DefaultThreshold}
}

// Energy returns the mean absolute sample value of window, or 0 when empty.
func (g Gate) Energy(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(window))
}

// IsActive reports whether energy is strictly above the threshold.
func (g Gate) IsActive(energy float64) bool {
	return energy > g.Threshold
}
