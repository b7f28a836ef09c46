// Package capture - Webcam frame source backed by OpenCV.
package capture

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultWidth is the capture width used when none is requested.
const DefaultWidth = 640

var (
	// ErrStopped is returned by Frame after Stop.
	ErrStopped = errors.New("capture session is stopped")
	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("cannot read frame from device")
)

// Options configures a capture session.
type Options struct {
	// DeviceID selects the camera.
	DeviceID int `yaml:"deviceID"`
	// Width of delivered frames. 0 means DefaultWidth.
	Width int `yaml:"width"`
	// Height of delivered frames. 0 means Width*3/4.
	Height int `yaml:"height"`
	// Logger receives session events. Nil disables logging.
	Logger *zap.Logger `yaml:"-"`
}

// Size resolves the delivered frame size from the options.
//
// Returns:
//   - int: The width.
//   - int: The height.
func (o Options) Size() (int, int) {
	width, height := o.Width, o.Height
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = width * 3 / 4
	}
	return width, height
}

// Session is an open camera stream. The caller owns it and ends it with Stop.
type Session struct {
	// ID identifies the session in logs.
	ID     uuid.UUID
	Width  int
	Height int

	mu      sync.Mutex
	device  *gocv.VideoCapture
	mat     gocv.Mat
	rgb     gocv.Mat
	scaled  gocv.Mat
	logger  *zap.Logger
	stopped bool
}

// Start opens the camera and asks it for the requested size. Frames are
// scaled to that size if the device picks another one.
//
// Arguments:
//   - opts: The device and frame size.
//
// Returns:
//   - *Session: The open session.
//   - error: An error if the device cannot be opened.
func Start(opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	width, height := opts.Size()

	device, err := gocv.OpenVideoCapture(opts.DeviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "open video device %d", opts.DeviceID)
	}
	if !device.IsOpened() {
		device.Close()
		return nil, errors.Errorf("video device %d is not available", opts.DeviceID)
	}
	device.Set(gocv.VideoCaptureFrameWidth, float64(width))
	device.Set(gocv.VideoCaptureFrameHeight, float64(height))

	s := &Session{
		ID:     uuid.New(),
		Width:  width,
		Height: height,
		device: device,
		mat:    gocv.NewMat(),
		rgb:    gocv.NewMat(),
		scaled: gocv.NewMat(),
	}
	s.logger = logger.With(zap.String("session", s.ID.String()))
	s.logger.Info("capture started",
		zap.Int("device", opts.DeviceID),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	return s, nil
}

// Frame reads the next camera frame as packed RGB.
func (s *Session) Frame(ctx context.Context) (images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return images.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return images.Frame{}, ErrStopped
	}
	if ok := s.device.Read(&s.mat); !ok || s.mat.Empty() {
		return images.Frame{}, ErrReadFailed
	}

	gocv.CvtColor(s.mat, &s.rgb, gocv.ColorBGRToRGB)
	src := s.rgb
	if src.Cols() != s.Width || src.Rows() != s.Height {
		gocv.Resize(s.rgb, &s.scaled, image.Pt(s.Width, s.Height), 0, 0, gocv.InterpolationLinear)
		src = s.scaled
	}

	pix := src.ToBytes()
	frame := images.Frame{Pix: pix, Width: src.Cols(), Height: src.Rows()}
	if err := frame.Validate(); err != nil {
		return images.Frame{}, errors.Wrap(err, "camera frame")
	}
	return frame, nil
}

// Stop ends a session and releases the device.
//
// Arguments:
//   - s: The session to stop. May be nil.
//
// Returns:
//   - bool: False if there was no active stream to stop.
func Stop(s *Session) bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.stopped = true

	s.device.Close()
	s.mat.Close()
	s.rgb.Close()
	s.scaled.Close()
	s.logger.Info("capture stopped")
	return true
}
