package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	proctor "github.com/proctorsight/go-proctor"
	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/metrics"
	"github.com/proctorsight/go-proctor/rules"
)

// synthSource fabricates detection tensors so the full pipeline can be
// exercised without camera or model collaborators.  Most frames show one
// person, occasionally the person vanishes or a phone appears.
type synthSource struct {
	classes int
	rng     *rand.Rand
}

func (s *synthSource) NextFrame() (proctor.FrameInput, bool) {

	var labels []detect.Label

	switch s.rng.Intn(10) {
	case 0, 1:
		// examinee out of frame
	case 2:
		labels = []detect.Label{detect.LabelPerson, detect.LabelPhone}
	default:
		labels = []detect.Label{detect.LabelPerson}
	}

	var buf []float32

	for i, label := range labels {
		section := make([]float32, 4+s.classes)
		section[0] = float32(120 + 250*i)
		section[1] = 140
		section[2] = 80
		section[3] = 120
		section[4+int(label)] = 0.6 + s.rng.Float32()*0.3
		buf = append(buf, section...)
	}

	if buf == nil {
		buf = make([]float32, 4+s.classes)
	}

	return proctor.FrameInput{
		Detections: buf,
		Anchors:    len(buf) / (4 + s.classes),
		RatioX:     1,
		RatioY:     1,
		At:         time.Now(),
	}, true
}

// printReporter stands in for the reporting transport collaborator
type printReporter struct{}

func (printReporter) Report(v rules.Violation) {
	log.Printf("VIOLATION %s [%s] %s", v.Kind, v.Severity, v.Message)
}

func (printReporter) Lockdown(sessionID string, total int) {
	log.Printf("LOCKDOWN session %s after %d violations", sessionID, total)
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	sessionID := flag.String("s", "demo-session", "Session ID to monitor")
	duration := flag.Duration("d", 30*time.Second, "How long to run the demo")
	tick := flag.Duration("t", 250*time.Millisecond, "Frame analysis cadence")
	metricsAddr := flag.String("m", "", "Optional address to serve Prometheus metrics on")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	col := metrics.New()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", col.Handler())
			log.Fatal(http.ListenAndServe(*metricsAddr, mux))
		}()
	}

	reg := proctor.NewRegistry(col, logger)

	cfg := proctor.DefaultConfig(*sessionID)
	cfg.TickInterval = *tick

	src := &synthSource{
		classes: len(cfg.Detect.Classes),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	session, err := reg.Start(ctx, cfg, src, printReporter{})

	if err != nil {
		log.Fatal("Error starting session: ", err)
	}

	// simulate the examinee switching tabs partway through
	go func() {
		time.Sleep(*duration / 2)
		session.Events() <- rules.BrowserTabHidden
	}()

	<-ctx.Done()
	reg.StopAll()

	snap := session.Snapshot()
	log.Printf("done: %d frames analyzed, %d violations pending lockdown",
		snap.FramesAnalyzed, snap.TotalViolations)
}
