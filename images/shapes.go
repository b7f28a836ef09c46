// Package images - Image and box primitives shared by the detection pipeline.
package images

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Box is a detector box in normalized coordinates, laid out the way SSD-style
// detectors emit it: [minY, minX, maxY, maxX], each nominally in [0, 1].
type Box [4]float32

// MinY returns the top edge of the box.
func (b Box) MinY() float32 { return b[0] }

// MinX returns the left edge of the box.
func (b Box) MinX() float32 { return b[1] }

// MaxY returns the bottom edge of the box.
func (b Box) MaxY() float32 { return b[2] }

// MaxX returns the right edge of the box.
func (b Box) MaxX() float32 { return b[3] }

// Area returns the area of the box after ordering each axis, so a box whose
// corners arrive swapped still has a positive area.
func (b Box) Area() float32 {
	return math32.Abs(b[2]-b[0]) * math32.Abs(b[3]-b[1])
}

// BoxesFromFlat slices a flat [N*4] buffer into boxes.
//
// Arguments:
//   - data: The flat buffer, four values per box.
//
// Returns:
//   - []Box: One box per group of four values.
//   - error: An error if the buffer length is not a multiple of four.
func BoxesFromFlat(data []float32) ([]Box, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("box buffer length %d is not a multiple of 4", len(data))
	}
	boxes := make([]Box, len(data)/4)
	for i := range boxes {
		copy(boxes[i][:], data[i*4:i*4+4])
	}
	return boxes, nil
}

// Rect is a box in pixel space expressed as origin plus extent, which is the
// shape renderers consume.
type Rect struct {
	X, Y, W, H float32
}

// String formats the rect as [x, y, w, h].
func (r Rect) String() string {
	return fmt.Sprintf("[%.1f, %.1f, %.1f, %.1f]", r.X, r.Y, r.W, r.H)
}

// CalculateIoU (Intersection over Union) measures how much two boxes overlap.
//
//	IoU = Area of Intersection / Area of Union
//
// A value of 1.0 means the boxes are identical and 0.0 means they do not
// overlap at all. The union uses inclusion-exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// Each axis is ordered before use, so the result does not depend on which
// corner a detector reports first. When either box has no area the result is
// 0 and no division happens.
//
// Arguments:
//   - a: The first box, [minY, minX, maxY, maxX].
//   - b: The second box, [minY, minX, maxY, maxX].
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Box{0, 0, 0.5, 0.5}
//	b := Box{0.25, 0.25, 0.75, 0.75}
//	iou := CalculateIoU(a, b) // intersection 0.0625, union 0.4375, IoU ≈ 0.142857
//
// ```
func CalculateIoU(a, b Box) float32 {
	aMinY, aMaxY := math32.Min(a[0], a[2]), math32.Max(a[0], a[2])
	aMinX, aMaxX := math32.Min(a[1], a[3]), math32.Max(a[1], a[3])
	bMinY, bMaxY := math32.Min(b[0], b[2]), math32.Max(b[0], b[2])
	bMinX, bMaxX := math32.Min(b[1], b[3]), math32.Max(b[1], b[3])

	areaA := (aMaxY - aMinY) * (aMaxX - aMinX)
	areaB := (bMaxY - bMinY) * (bMaxX - bMinX)
	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	interH := math32.Max(math32.Min(aMaxY, bMaxY)-math32.Max(aMinY, bMinY), 0)
	interW := math32.Max(math32.Min(aMaxX, bMaxX)-math32.Max(aMinX, bMinX), 0)
	interArea := interH * interW

	return interArea / (areaA + areaB - interArea)
}
