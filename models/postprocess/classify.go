// Package postprocess - Reduces raw detector outputs to scored, suppressed detections.
package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// MaxScores reduces a flat [numBoxes, numClasses] score buffer to the best
// class and its score for every candidate.
//
// The running maximum starts at the smallest finite float32 with class -1, and
// a class replaces it only when strictly greater. Ties keep the lowest class
// index, and a row of all negative scores still classifies.
//
// Arguments:
//   - scores: The row-major score buffer, at least numBoxes*numClasses long.
//   - numBoxes: The number of candidates.
//   - numClasses: The number of classes per candidate.
//
// Returns:
//   - []float32: The best score per candidate.
//   - []int: The best class index per candidate.
//   - error: An error if the buffer is too short or a dimension is negative.
func MaxScores(scores []float32, numBoxes, numClasses int) ([]float32, []int, error) {
	if numBoxes < 0 || numClasses < 0 {
		return nil, nil, errors.Errorf("negative score dimensions %dx%d", numBoxes, numClasses)
	}
	if len(scores) < numBoxes*numClasses {
		return nil, nil, errors.Errorf("score buffer has %d values, expected %d (%d boxes x %d classes)",
			len(scores), numBoxes*numClasses, numBoxes, numClasses)
	}

	maxes := make([]float32, numBoxes)
	classes := make([]int, numBoxes)

	for i := 0; i < numBoxes; i++ {
		best := float32(-math32.MaxFloat32)
		index := -1
		row := scores[i*numClasses : (i+1)*numClasses]
		for c, score := range row {
			if score > best {
				best = score
				index = c
			}
		}
		maxes[i] = best
		classes[i] = index
	}

	return maxes, classes, nil
}
