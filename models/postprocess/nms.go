package postprocess

import (
	"sort"
	"sync"

	"github.com/nvr-ai/go-handtrack/images"
	"github.com/pkg/errors"
)

// Backend computes the overlap of one box against a set of boxes. Backends
// only compute IoU values; acceptance decisions stay sequential in score
// order, so every backend yields identical suppression results.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string
	// IoU writes CalculateIoU(box, others[i]) into dst[i]. len(dst) == len(others).
	IoU(box images.Box, others []images.Box, dst []float32)
}

// CPU computes overlaps sequentially on the calling goroutine.
type CPU struct{}

// Name implements Backend.
func (CPU) Name() string { return "cpu" }

// IoU implements Backend.
func (CPU) IoU(box images.Box, others []images.Box, dst []float32) {
	for i, other := range others {
		dst[i] = images.CalculateIoU(box, other)
	}
}

// Workers splits each overlap row across a bounded pool of goroutines.
type Workers struct {
	// N is the number of goroutines. Values below 2 behave like CPU.
	N int
}

// Name implements Backend.
func (w Workers) Name() string { return "workers" }

// IoU implements Backend.
func (w Workers) IoU(box images.Box, others []images.Box, dst []float32) {
	n := w.N
	if n > len(others) {
		n = len(others)
	}
	if n < 2 {
		CPU{}.IoU(box, others, dst)
		return
	}

	chunk := (len(others) + n - 1) / n

	var wg sync.WaitGroup
	for start := 0; start < len(others); start += chunk {
		end := start + chunk
		if end > len(others) {
			end = len(others)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for j := start; j < end; j++ {
				dst[j] = images.CalculateIoU(box, others[j])
			}
		}(start, end)
	}
	wg.Wait()
}

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	MaxNumBoxes    int     // Upper bound on the number of kept boxes.
	IoUThreshold   float32 // Overlap above which a lower-scored box is suppressed.
	ScoreThreshold float32 // Minimum score for a candidate to be considered.
	Backend        Backend // Overlap backend. Nil means CPU.
}

// NonMaxSuppression performs greedy Non-Maximum Suppression.
//
// Candidates are visited in descending score order, ties broken by ascending
// index. A candidate is dropped when its score is below ScoreThreshold (NaN
// scores are dropped too), and kept when its IoU against every previously kept
// box is at most IoUThreshold. Selection stops after MaxNumBoxes boxes.
//
// Arguments:
//   - boxes: Candidate boxes in normalized [minY, minX, maxY, maxX] form.
//   - scores: One score per box.
//   - cfg: Thresholds, limit and overlap backend.
//
// Returns:
//   - []int: Indices of the kept boxes, highest score first.
//   - error: An error if boxes and scores differ in length.
//
// Example:
//
// ```go
//
//	keep, err := NonMaxSuppression(boxes, maxScores, NMSConfig{
//		MaxNumBoxes:    20,
//		IoUThreshold:   0.5,
//		ScoreThreshold: 0.99,
//		Backend:        CPU{},
//	})
//
// ```
func NonMaxSuppression(boxes []images.Box, scores []float32, cfg NMSConfig) ([]int, error) {
	if len(boxes) != len(scores) {
		return nil, errors.Errorf("have %d boxes but %d scores", len(boxes), len(scores))
	}

	backend := cfg.Backend
	if backend == nil {
		backend = CPU{}
	}

	order := make([]int, 0, len(scores))
	for i, score := range scores {
		if score >= cfg.ScoreThreshold {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	limit := cfg.MaxNumBoxes
	if limit < 0 {
		limit = 0
	}
	keep := make([]int, 0, min(limit, len(order)))
	kept := make([]images.Box, 0, cap(keep))
	overlaps := make([]float32, 0, cap(keep))

	for _, i := range order {
		if len(keep) >= limit {
			break
		}

		overlaps = overlaps[:len(kept)]
		backend.IoU(boxes[i], kept, overlaps)

		suppressed := false
		for _, iou := range overlaps {
			if iou > cfg.IoUThreshold {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}

		keep = append(keep, i)
		kept = append(kept, boxes[i])
	}

	return keep, nil
}
