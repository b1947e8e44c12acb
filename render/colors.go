package render

import (
	"image/color"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/rules"
)

var (
	Black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// labelColors maps each object label to its box color
	labelColors = map[detect.Label]color.RGBA{
		detect.LabelPerson:  {R: 72, G: 249, B: 10, A: 255},  // #48F90A
		detect.LabelPhone:   {R: 255, G: 56, B: 56, A: 255},  // #FF3838
		detect.LabelBook:    {R: 255, G: 112, B: 31, A: 255}, // #FF701F
		detect.LabelPaper:   {R: 255, G: 178, B: 29, A: 255}, // #FFB21D
		detect.LabelLaptop:  {R: 0, G: 194, B: 255, A: 255},  // #00C2FF
		detect.LabelMonitor: {R: 100, G: 115, B: 255, A: 255}, // #6473FF
	}

	// severityColors maps each violation severity to its banner color
	severityColors = map[rules.Severity]color.RGBA{
		rules.SeverityLow:    {R: 207, G: 210, B: 49, A: 255}, // #CFD231
		rules.SeverityMedium: {R: 255, G: 112, B: 31, A: 255}, // #FF701F
		rules.SeverityHigh:   {R: 255, G: 56, B: 56, A: 255},  // #FF3838
	}

	fallbackColor = color.RGBA{R: 192, G: 192, B: 192, A: 255} // #C0C0C0
)

// LabelColor returns the box color for an object label
func LabelColor(label detect.Label) color.RGBA {

	if clr, ok := labelColors[label]; ok {
		return clr
	}

	return fallbackColor
}

// SeverityColor returns the banner color for a violation severity
func SeverityColor(severity rules.Severity) color.RGBA {

	if clr, ok := severityColors[severity]; ok {
		return clr
	}

	return fallbackColor
}
