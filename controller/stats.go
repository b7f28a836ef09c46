package controller

import (
	"math"

	"github.com/nvr-ai/go-handtrack/models/postprocess"
)

// Stats summarizes a loop run.
type Stats struct {
	// Cycles is the number of cycles that produced a detection list.
	Cycles int `json:"cycles"`
	// Failed is the number of cycles that failed at any stage.
	Failed int `json:"failed"`
	// Detections is the total number of detections emitted.
	Detections int `json:"detections"`
	// Confidence describes the scores of all emitted detections.
	Confidence ConfidenceStats `json:"confidence"`
}

// ConfidenceStats provides statistical analysis of detection confidence scores.
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`

	// m2 is the running sum of squared differences from the mean.
	m2 float64
}

func (s *Stats) observe(detections []postprocess.Detection) {
	s.Cycles++
	for _, d := range detections {
		s.Detections++
		s.Confidence.add(float64(d.Score), s.Detections)
	}
}

// add folds one score into the running statistics (Welford's method).
func (c *ConfidenceStats) add(score float64, n int) {
	if n == 1 {
		c.Min, c.Max = score, score
	} else {
		c.Min = math.Min(c.Min, score)
		c.Max = math.Max(c.Max, score)
	}

	delta := score - c.Mean
	c.Mean += delta / float64(n)
	c.m2 += delta * (score - c.Mean)
	c.StdDev = math.Sqrt(c.m2 / float64(n))
}
