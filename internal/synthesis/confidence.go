package synthesis

import (
	"math"
	"strings"
)

// ConfidenceEstimator scores an answer from the evidence that was supplied to
// produce it. Implementations must return a value in [0, 1].
type ConfidenceEstimator interface {
	Estimate(answer string, evidenceCount int) float64
}

// SurfaceConfidence weighs answer length against evidence volume. It is a
// heuristic, not a calibrated probability.
type SurfaceConfidence struct{}

func (SurfaceConfidence) Estimate(answer string, evidenceCount int) float64 {
	if strings.TrimSpace(answer) == "" || evidenceCount <= 0 {
		return 0
	}
	words := float64(len(strings.Fields(answer)))
	c := math.Min(1.0, 0.7*(words/50)+0.3*(float64(evidenceCount)/10))
	return math.Round(c*100) / 100
}
