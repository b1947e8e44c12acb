package render

import (
	"image/color"

	"github.com/proctorsight/go-proctor/rules"
	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering annotation text on an evidence
// snapshot using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Pad is the pixel padding placed around label and banner text
	Pad int
}

// DefaultFont returns the font settings used for detection box labels and
// the gaze zone banner
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       4,
	}
}

// ForSeverity returns a copy of the font weighted for a violation banner.
// Medium banners render heavier and high banners heavier and larger still,
// so the worst findings stand out when evidence frames are reviewed.
func (f Font) ForSeverity(severity rules.Severity) Font {

	switch severity {
	case rules.SeverityMedium:
		f.Thickness++

	case rules.SeverityHigh:
		f.Face = gocv.FontHersheyDuplex
		f.Scale *= 1.2
		f.Thickness++
	}

	return f
}
