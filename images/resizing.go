package images

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Resize mirrors (optionally) and bilinearly resizes a frame to the given
// detector input size. Mirroring happens before resizing so the output matches
// what a mirrored camera preview shows.
//
// Arguments:
//   - frame: The source frame.
//   - width: The target width in pixels.
//   - height: The target height in pixels.
//   - flipHorizontal: Whether to mirror along the horizontal axis first.
//
// Returns:
//   - image.Image: The resized image.
//   - error: An error if the frame or target size is invalid.
func Resize(frame Frame, width, height int, flipHorizontal bool) (image.Image, error) {
	if err := frame.Validate(); err != nil {
		return nil, errors.Wrap(err, "resize")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimension, "resize target %dx%d", width, height)
	}

	var src image.Image = frame.Image()
	if flipHorizontal {
		src = imaging.FlipH(src)
	}

	return resize.Resize(uint(width), uint(height), src, resize.Bilinear), nil
}
