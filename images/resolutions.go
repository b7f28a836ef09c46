package images

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidDimension is returned when a frame dimension cannot be mapped to a
// positive, stride-aligned detector input dimension.
var ErrInvalidDimension = errors.New("invalid dimension")

// ValidResolution scales a frame dimension and snaps it so the result is
// congruent to 1 modulo the detector's output stride:
//
//	e = dim*scale - 1
//	dim' = e - (e mod stride) + 1
//
// The snapped value never exceeds dim*scale. Unlike the bare formula, which
// quietly yields 1 or less for tiny inputs, anything whose scaled size is below
// one pixel is rejected.
//
// Arguments:
//   - dim: The frame dimension in pixels (width or height).
//   - scale: The pre-inference downscale factor, in (0, 1].
//   - stride: The detector's output stride.
//
// Returns:
//   - int: The aligned dimension.
//   - error: ErrInvalidDimension if no positive aligned dimension exists.
//
// Example:
//
// ```go
//
//	h, _ := ValidResolution(480, 0.7, 16) // 321
//	w, _ := ValidResolution(640, 0.7, 16) // 433
//
// ```
func ValidResolution(dim int, scale float64, stride int) (int, error) {
	if dim <= 0 {
		return 0, errors.Wrapf(ErrInvalidDimension, "dimension must be positive, got %d", dim)
	}
	if stride <= 0 {
		return 0, errors.Wrapf(ErrInvalidDimension, "output stride must be positive, got %d", stride)
	}

	scaled := float64(dim) * scale
	if math.IsNaN(scaled) || scaled < 1 {
		return 0, errors.Wrapf(ErrInvalidDimension, "dimension %d at scale %g is below one pixel", dim, scale)
	}

	even := scaled - 1
	aligned := even - math.Mod(even, float64(stride)) + 1
	if aligned < 1 {
		return 0, errors.Wrapf(ErrInvalidDimension, "dimension %d at scale %g aligns to %g", dim, scale, aligned)
	}

	return int(math.Round(aligned)), nil
}
