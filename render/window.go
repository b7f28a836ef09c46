package render

import (
	"image/color"

	"github.com/nvr-ai/go-handtrack/controller"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/nvr-ai/go-handtrack/models/postprocess"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Keys that close the window.
const (
	keyEscape = 27
	keyQuit   = 'q'
)

// Window shows frames with their detections in an OpenCV window.
type Window struct {
	// Labels names classes by ID.
	Labels []string

	window  *gocv.Window
	frame   gocv.Mat
	overlay gocv.Mat
}

// NewWindow opens a display window.
func NewWindow(title string, labels []string) *Window {
	return &Window{
		Labels:  labels,
		window:  gocv.NewWindow(title),
		frame:   gocv.NewMat(),
		overlay: gocv.NewMat(),
	}
}

// Render implements controller.Renderer. It returns controller.ErrStopLoop
// once the user presses q or Esc.
func (w *Window) Render(frame images.Frame, detections []postprocess.Detection, fps int, flipHorizontal bool) error {
	if err := frame.Validate(); err != nil {
		return errors.Wrap(err, "render")
	}

	rgb, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix[:frame.Width*frame.Height*3])
	if err != nil {
		return errors.Wrap(err, "render")
	}
	defer rgb.Close()

	gocv.CvtColor(rgb, &w.frame, gocv.ColorRGBToBGR)
	if flipHorizontal {
		gocv.Flip(w.frame, &w.frame, 1)
	}

	plans := make([]Overlay, len(detections))
	for i, d := range detections {
		plans[i] = Plan(d, w.Labels)
	}

	if len(plans) > 0 {
		w.frame.CopyTo(&w.overlay)
		for _, p := range plans {
			gocv.Rectangle(&w.overlay, p.LabelBar, LabelBarColor, -1)
		}
		gocv.AddWeighted(w.overlay, LabelBarOpacity, w.frame, 1-LabelBarOpacity, 0, &w.frame)
	}

	for _, p := range plans {
		gocv.Rectangle(&w.frame, p.Box, bgr(BoxColor), 1)
		gocv.Rectangle(&w.frame, p.Marker, bgr(BoxColor), -1)
		gocv.PutText(&w.frame, p.Text, p.TextOrigin, gocv.FontHersheyPlain, 0.8, bgr(BoxColor), 1)
	}
	gocv.PutText(&w.frame, FPSText(fps), FPSOrigin, gocv.FontHersheyPlain, 1.0, bgr(BoxColor), 2)

	w.window.IMShow(w.frame)
	switch w.window.WaitKey(1) {
	case keyEscape, keyQuit:
		return controller.ErrStopLoop
	}
	return nil
}

// Close releases the window.
func (w *Window) Close() error {
	w.frame.Close()
	w.overlay.Close()
	return w.window.Close()
}

// bgr swaps channels for OpenCV, which draws in BGR order.
func bgr(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.B, G: c.G, B: c.R, A: c.A}
}
