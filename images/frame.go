package images

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// Frame is a single video frame as a packed RGB buffer. Row-major, three bytes
// per pixel, no padding between rows.
type Frame struct {
	// Pix holds the RGB samples.
	Pix []uint8 `json:"-" yaml:"-"`
	// The width of the frame.
	Width int `json:"width" yaml:"width"`
	// The height of the frame.
	Height int `json:"height" yaml:"height"`
}

// Validate checks that the frame dimensions and buffer agree.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return errors.Wrapf(ErrInvalidDimension, "frame is %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * 3; len(f.Pix) < want {
		return errors.Errorf("frame buffer holds %d bytes, needs %d", len(f.Pix), want)
	}
	return nil
}

// FrameFromImage copies any image.Image into a packed RGB frame.
//
// Arguments:
//   - img: The source image. Alpha is dropped.
//
// Returns:
//   - Frame: The packed frame.
func FrameFromImage(img image.Image) Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]uint8, width*height*3)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pix[i] = uint8(r >> 8)
			pix[i+1] = uint8(g >> 8)
			pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}

	return Frame{Pix: pix, Width: width, Height: height}
}

// Image returns an opaque RGBA view of the frame. The pixels are copied.
func (f Frame) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := (y*f.Width + x) * 3
			img.SetNRGBA(x, y, color.NRGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: 255})
		}
	}
	return img
}
