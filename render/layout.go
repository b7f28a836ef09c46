// Package render - Draws detections over video frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/go-handtrack/models/postprocess"
)

// Layout constants of the overlay.
const (
	// LabelBarHeight is the height of the translucent bar above each box.
	LabelBarHeight = 17
	// MarkerSize is the side of the square drawn at each box centre.
	MarkerSize = 5
	// LabelBarOpacity is the alpha of the label bar.
	LabelBarOpacity = 0.6
	// DefaultLabel names classes without an entry in Labels.
	DefaultLabel = "hand"
)

var (
	// BoxColor strokes boxes and fills centre markers.
	BoxColor = color.RGBA{R: 0x00, G: 0x63, B: 0xFF, A: 0xFF}
	// LabelBarColor fills the label bar before blending.
	LabelBarColor = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	// FPSOrigin is where the frame rate is written.
	FPSOrigin = image.Pt(10, 20)
)

// Overlay is the drawing plan for one detection, in frame pixels.
type Overlay struct {
	Box        image.Rectangle
	LabelBar   image.Rectangle
	Marker     image.Rectangle
	Text       string
	TextOrigin image.Point
}

// Plan lays out the overlay of one detection. Boxes are drawn where the
// detector reported them; only the video underneath is mirrored.
//
// Arguments:
//   - d: The detection.
//   - labels: Class names indexed by class ID. Missing names use DefaultLabel.
//
// Returns:
//   - Overlay: Where each element goes.
func Plan(d postprocess.Detection, labels []string) Overlay {
	x, y := int(d.BBox.X), int(d.BBox.Y)
	w, h := int(d.BBox.W), int(d.BBox.H)

	cx := int(d.BBox.X + d.BBox.W/2)
	cy := int(d.BBox.Y + d.BBox.H/2)

	textY := 10
	if d.BBox.Y > 10 {
		textY = y - 5
	}

	return Overlay{
		Box:        image.Rect(x, y, x+w, y+h),
		LabelBar:   image.Rect(x, y-LabelBarHeight, x+w, y),
		Marker:     image.Rect(cx, cy, cx+MarkerSize, cy+MarkerSize),
		Text:       Caption(d, labels),
		TextOrigin: image.Pt(x+5, textY),
	}
}

// Caption formats a detection as "score | label" with three decimals.
func Caption(d postprocess.Detection, labels []string) string {
	label := DefaultLabel
	if d.ClassID >= 0 && d.ClassID < len(labels) && labels[d.ClassID] != "" {
		label = labels[d.ClassID]
	}
	return fmt.Sprintf("%.3f | %s", d.Score, label)
}

// FPSText formats the frame rate overlay.
func FPSText(fps int) string {
	return fmt.Sprintf("[FPS]: %d", fps)
}
