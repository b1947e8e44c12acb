// Package render draws the engine's per frame findings onto an evidence
// snapshot for audit purposes.  Rendering is optional, the decision pipeline
// itself never touches image data.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
	"github.com/proctorsight/go-proctor/rules"
	"gocv.io/x/gocv"
)

// boxLabel records the label rendering details for a detection box
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// DetectionBoxes renders the bounding boxes around the objects detected,
// each labeled with its class name and confidence above the top left corner
func DetectionBoxes(img *gocv.Mat, objects []detect.Object, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0)

	// draw detection boxes
	for _, obj := range objects {

		useClr := LabelColor(obj.Label)

		// draw rectangle around detected object
		rect := image.Rect(int(obj.Box.X1), int(obj.Box.Y1),
			int(obj.Box.X2), int(obj.Box.Y2))
		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		text := fmt.Sprintf("%s %.2f", obj.Label, obj.Confidence)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// label sits on a filled strip above the box's top left corner
		labelPosition := image.Pt(rect.Min.X+font.Pad, rect.Min.Y-font.Pad)

		bRect := image.Rect(rect.Min.X,
			rect.Min.Y-textSize.Y-2*font.Pad,
			rect.Min.X+textSize.X+2*font.Pad, rect.Min.Y)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		})
	}

	// draw all precalculated box labels so they are the top most layer on
	// the image
	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// ZoneBanner renders the current gaze zone and its confidence along the top
// edge of the snapshot
func ZoneBanner(img *gocv.Mat, zone gaze.ZoneResult, font Font) {

	text := fmt.Sprintf("gaze: %s %.2f", zone.Zone, zone.Confidence)
	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	bRect := image.Rect(0, 0,
		textSize.X+2*font.Pad, textSize.Y+2*font.Pad)

	gocv.Rectangle(img, bRect, Black, -1)

	gocv.PutTextWithParams(img, text,
		image.Pt(font.Pad, textSize.Y+font.Pad),
		font.Face, font.Scale, font.Color, font.Thickness,
		font.LineType, false)
}

// ViolationBanner renders the violation kind and message along the bottom
// edge of the snapshot, colored by severity and weighted with the severity
// variant of the font
func ViolationBanner(img *gocv.Mat, v rules.Violation, font Font) {

	font = font.ForSeverity(v.Severity)

	text := fmt.Sprintf("%s: %s", v.Kind, v.Message)
	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	height := textSize.Y + 2*font.Pad

	bRect := image.Rect(0, img.Rows()-height, img.Cols(), img.Rows())

	gocv.Rectangle(img, bRect, SeverityColor(v.Severity), -1)

	gocv.PutTextWithParams(img, text,
		image.Pt(font.Pad, img.Rows()-font.Pad),
		font.Face, font.Scale, font.Color, font.Thickness,
		font.LineType, false)
}
