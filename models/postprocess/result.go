package postprocess

import "github.com/nvr-ai/go-handtrack/images"

// Detection represents a single detection result.
type Detection struct {
	// The bounding box in pixels of the original frame.
	BBox images.Rect
	// The predicted class index.
	ClassID int
	// The confidence score.
	Score float32
}

// DecodeBox converts a normalized [minY, minX, maxY, maxX] box into a pixel
// rectangle on a width x height frame.
func DecodeBox(b images.Box, width, height int) images.Rect {
	w, h := float32(width), float32(height)
	return images.Rect{
		X: b.MinX() * w,
		Y: b.MinY() * h,
		W: (b.MaxX() - b.MinX()) * w,
		H: (b.MaxY() - b.MinY()) * h,
	}
}

// Assemble builds detections for the kept indices, in the order given.
//
// Arguments:
//   - indices: Kept candidate indices from NonMaxSuppression.
//   - boxes: All candidate boxes.
//   - scores: Best score per candidate.
//   - classes: Best class per candidate.
//   - width: The original frame width.
//   - height: The original frame height.
//
// Returns:
//   - []Detection: One detection per index. Never nil.
func Assemble(indices []int, boxes []images.Box, scores []float32, classes []int, width, height int) []Detection {
	detections := make([]Detection, 0, len(indices))
	for _, i := range indices {
		detections = append(detections, Detection{
			BBox:    DecodeBox(boxes[i], width, height),
			ClassID: classes[i],
			Score:   scores[i],
		})
	}
	return detections
}
