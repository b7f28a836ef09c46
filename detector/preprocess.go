package detector

import (
	"image"
	"sync"

	"github.com/nvr-ai/go-handtrack/images"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255. The hand detector expects this.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
)

// String returns the name used in configuration files.
func (n NormalizationType) String() string {
	switch n {
	case NormalizeZeroToOne:
		return "zeroToOne"
	case NormalizeMinusOneToOne:
		return "minusOneToOne"
	default:
		return "none"
	}
}

// ParseNormalization maps a configuration name to a NormalizationType.
func ParseNormalization(name string) (NormalizationType, error) {
	switch name {
	case "", "none":
		return NormalizeNone, nil
	case "zeroToOne":
		return NormalizeZeroToOne, nil
	case "minusOneToOne":
		return NormalizeMinusOneToOne, nil
	}
	return NormalizeNone, errors.Errorf("unknown normalization %q", name)
}

// Preprocessor turns frames into [1, H', W', 3] float32 input tensors. Tensor
// buffers are pooled, so every tensor must be handed back through the release
// func returned with it.
type Preprocessor struct {
	normalization NormalizationType
	bufferPool    *sync.Pool
}

// NewPreprocessor creates a new preprocessor.
//
// Arguments:
//   - normalization: How pixel intensities are scaled.
//
// Returns:
//   - *Preprocessor: A preprocessor with an empty buffer pool.
func NewPreprocessor(normalization NormalizationType) *Preprocessor {
	return &Preprocessor{
		normalization: normalization,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new([]float32)
			},
		},
	}
}

// InputSize returns the stride-aligned detector input size for a frame.
//
// Arguments:
//   - width: The frame width.
//   - height: The frame height.
//   - params: The model parameters.
//
// Returns:
//   - int: The input width.
//   - int: The input height.
//   - error: ErrInvalidDimension if either side collapses.
func InputSize(width, height int, params Params) (int, int, error) {
	h, err := images.ValidResolution(height, params.ImageScaleFactor, params.OutputStride)
	if err != nil {
		return 0, 0, errors.Wrap(err, "height")
	}
	w, err := images.ValidResolution(width, params.ImageScaleFactor, params.OutputStride)
	if err != nil {
		return 0, 0, errors.Wrap(err, "width")
	}
	return w, h, nil
}

// Preprocess resizes (and optionally mirrors) a frame into the detector input.
//
// Arguments:
//   - frame: The source frame, left unmodified.
//   - params: The model parameters of the current cycle.
//
// Returns:
//   - *tensor.Dense: A float32 tensor of shape [1, H', W', 3].
//   - func(): Returns the tensor buffer to the pool. Call exactly once.
//   - error: ErrInvalidDimension for frames that cannot be resized.
func (p *Preprocessor) Preprocess(frame images.Frame, params Params) (*tensor.Dense, func(), error) {
	if err := frame.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "preprocess")
	}

	w, h, err := InputSize(frame.Width, frame.Height, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, "preprocess")
	}

	resized, err := images.Resize(frame, w, h, params.FlipHorizontal)
	if err != nil {
		return nil, nil, errors.Wrap(err, "preprocess")
	}

	bufPtr := p.bufferPool.Get().(*[]float32)
	size := w * h * 3
	if cap(*bufPtr) < size {
		*bufPtr = make([]float32, size)
	}
	buf := (*bufPtr)[:size]

	p.imageToTensor(resized, buf)
	p.normalize(buf)

	input := tensor.New(
		tensor.WithShape(1, h, w, 3),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(buf),
	)

	var once sync.Once
	release := func() {
		once.Do(func() {
			*bufPtr = buf
			p.bufferPool.Put(bufPtr)
		})
	}

	return input, release, nil
}

// imageToTensor writes the image into dst in HWC order.
func (p *Preprocessor) imageToTensor(img image.Image, dst []float32) {
	bounds := img.Bounds()

	switch src := img.(type) {
	case *image.RGBA:
		p.copyPacked(src.Pix, src.Stride, bounds.Dx(), bounds.Dy(), dst)
	case *image.NRGBA:
		p.copyPacked(src.Pix, src.Stride, bounds.Dx(), bounds.Dy(), dst)
	default:
		idx := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				dst[idx] = float32(r >> 8)
				dst[idx+1] = float32(g >> 8)
				dst[idx+2] = float32(b >> 8)
				idx += 3
			}
		}
	}
}

// copyPacked drops the alpha channel of a 4-byte-per-pixel buffer.
func (p *Preprocessor) copyPacked(pix []uint8, stride, width, height int, dst []float32) {
	idx := 0
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+width*4]
		for x := 0; x < width*4; x += 4 {
			dst[idx] = float32(row[x])
			dst[idx+1] = float32(row[x+1])
			dst[idx+2] = float32(row[x+2])
			idx += 3
		}
	}
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.normalization {
	case NormalizeZeroToOne:
		for i := range data {
			data[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	}
}
