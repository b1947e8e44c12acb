package main

import (
	"flag"
	"log"
	"time"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
	"github.com/proctorsight/go-proctor/render"
	"github.com/proctorsight/go-proctor/rules"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	imgFile := flag.String("i", "../data/webcam.jpg", "Webcam frame to annotate")
	outFile := flag.String("o", "./evidence-out.jpg", "File to save the annotated evidence to")
	ttfFont := flag.String("f", "", "Optional TTF font for the audit caption")

	flag.Parse()

	// load image
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	// detections as the decoder would emit them for this frame
	objects := []detect.Object{
		{
			Label:      detect.LabelPerson,
			Confidence: 0.93,
			Box:        detect.Box{X1: 180, Y1: 60, X2: 460, Y2: 470},
		},
		{
			Label:      detect.LabelPhone,
			Confidence: 0.71,
			Box:        detect.Box{X1: 70, Y1: 320, X2: 150, Y2: 450},
		},
	}

	font := render.DefaultFont()

	render.DetectionBoxes(&img, objects, font, 2)

	render.ZoneBanner(&img, gaze.ZoneResult{
		Zone:       gaze.ZonePhone,
		Confidence: 0.90,
	}, font)

	render.ViolationBanner(&img, rules.Violation{
		Kind:     rules.KindForbiddenObject,
		Severity: rules.SeverityHigh,
		Message:  "forbidden object visible: phone (71%)",
	}, font)

	// stamp the audit caption with a real typeface when one is provided
	if *ttfFont != "" {
		captioner, err := render.NewCaptioner(*ttfFont)

		if err != nil {
			log.Fatal("Error loading caption font: ", err)
		}

		err = captioner.Stamp(&img, time.Now().Format(time.RFC3339), 10, 40)

		if err != nil {
			log.Fatal("Error stamping caption: ", err)
		}
	}

	// Save the result
	if ok := gocv.IMWrite(*outFile, img); !ok {
		log.Fatal("Failed to save the image")
	}

	log.Println("saved annotated evidence to", *outFile)
}
