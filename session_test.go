package proctor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
	"github.com/proctorsight/go-proctor/rules"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// at returns a timestamp n seconds after the test epoch
func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Second)
}

// recordingReporter captures everything the session pushes outbound.  The
// mutex matters only for the Run loop tests where the session goroutine
// reports concurrently with the test's assertions.
type recordingReporter struct {
	mu         sync.Mutex
	violations []rules.Violation
	lockdowns  []string
}

func (r *recordingReporter) Report(v rules.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
}

func (r *recordingReporter) Lockdown(sessionID string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockdowns = append(r.lockdowns, sessionID)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.violations)
}

// detectionFrame builds a valid detection buffer for the default 6 class
// table with one anchor per requested label
func detectionFrame(labels ...detect.Label) ([]float32, int) {

	classes := len(detect.DefaultParams().Classes)

	if len(labels) == 0 {
		// a single anchor with every score zeroed decodes to no objects
		return make([]float32, 4+classes), 1
	}

	var buf []float32

	for i, label := range labels {
		section := make([]float32, 4+classes)
		section[0] = float32(100 + 200*i) // cx, spread out so NMS keeps all
		section[1] = 100
		section[2] = 50
		section[3] = 50
		section[4+int(label)] = 0.9
		buf = append(buf, section...)
	}

	return buf, len(labels)
}

func frameAt(n int, labels ...detect.Label) FrameInput {

	buf, anchors := detectionFrame(labels...)

	return FrameInput{
		Detections: buf,
		Anchors:    anchors,
		RatioX:     1,
		RatioY:     1,
		At:         at(n),
	}
}

func newTestSession(t *testing.T, rep *recordingReporter) *Session {
	t.Helper()

	s, err := NewSession(DefaultConfig("session-1"), rep, nil, nil)

	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	return s
}

// TestAbsenceEndToEnd feeds 3 frames with no persons and expects exactly
// one high severity absence violation on frame 3
func TestAbsenceEndToEnd(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	for i := 0; i < 3; i++ {
		if err := s.ProcessFrame(frameAt(i)); err != nil {
			t.Fatalf("ProcessFrame failed: %v", err)
		}
	}

	if len(rep.violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(rep.violations))
	}

	v := rep.violations[0]

	if v.Kind != rules.KindAbsence || v.Severity != rules.SeverityHigh {
		t.Errorf("got %s/%s, want absence/high", v.Kind, v.Severity)
	}

	if !v.Timestamp.Equal(at(2)) {
		t.Errorf("violation fired at %v, want frame 3 time %v", v.Timestamp, at(2))
	}
}

// TestPhoneEndToEnd checks a phone above threshold on a single frame
// reports immediately, bypassing any streak
func TestPhoneEndToEnd(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	if err := s.ProcessFrame(frameAt(0, detect.LabelPerson, detect.LabelPhone)); err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	if len(rep.violations) != 1 {
		t.Fatalf("got %d violations, want 1", len(rep.violations))
	}

	if rep.violations[0].Kind != rules.KindForbiddenObject {
		t.Errorf("got kind %s, want forbidden-object", rep.violations[0].Kind)
	}
}

// TestThrottleWithBrowserEventEndToEnd checks two frame violations inside
// the window report once while a tab switch still reports its own
func TestThrottleWithBrowserEventEndToEnd(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	s.ProcessFrame(frameAt(0, detect.LabelPerson, detect.LabelPhone))
	s.ProcessFrame(frameAt(2, detect.LabelPerson, detect.LabelPhone))

	if len(rep.violations) != 1 {
		t.Fatalf("got %d reports inside window, want 1", len(rep.violations))
	}

	s.HandleBrowserEvent(rules.BrowserTabHidden, at(3))

	if len(rep.violations) != 2 {
		t.Fatalf("got %d reports after tab switch, want 2", len(rep.violations))
	}

	if rep.violations[1].Kind != rules.KindTabHidden {
		t.Errorf("got kind %s, want tab-hidden", rep.violations[1].Kind)
	}
}

// TestLockdownEndToEnd drives reported violations past the ceiling
func TestLockdownEndToEnd(t *testing.T) {

	rep := &recordingReporter{}

	cfg := DefaultConfig("session-1")
	cfg.Throttle.LockdownCeiling = 2

	s, err := NewSession(cfg, rep, nil, nil)

	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	s.ProcessFrame(frameAt(0, detect.LabelPerson, detect.LabelPhone))
	s.ProcessFrame(frameAt(10, detect.LabelPerson, detect.LabelPhone))

	if len(rep.lockdowns) != 1 {
		t.Fatalf("got %d lockdown signals, want 1", len(rep.lockdowns))
	}

	if rep.lockdowns[0] != "session-1" {
		t.Errorf("lockdown for %q, want session-1", rep.lockdowns[0])
	}
}

// TestMalformedFrameRecovered checks a shape mismatch is rejected without
// disturbing session counters or later frames
func TestMalformedFrameRecovered(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	// two empty frames build the absence streak to 2
	s.ProcessFrame(frameAt(0))
	s.ProcessFrame(frameAt(1))

	bad := FrameInput{
		Detections: make([]float32, 7),
		Anchors:    3,
		RatioX:     1,
		RatioY:     1,
		At:         at(2),
	}

	if err := s.ProcessFrame(bad); err == nil {
		t.Fatal("expected error for malformed buffer")
	}

	if len(rep.violations) != 0 {
		t.Fatal("malformed frame must not produce a violation")
	}

	// counters preserved, the next empty frame completes the streak
	if snap := s.Snapshot(); snap.AbsenceStreak != 2 {
		t.Errorf("got absence streak %f after rejected frame, want 2",
			snap.AbsenceStreak)
	}

	s.ProcessFrame(frameAt(3))

	if len(rep.violations) != 1 || rep.violations[0].Kind != rules.KindAbsence {
		t.Fatalf("expected absence violation after recovery, got %+v", rep.violations)
	}
}

// gazeFrame builds a frame with a person, angle model logits peaked at the
// given pitch/yaw bins and an iris offset
func gazeFrame(n int, pitchBin, yawBin int, g gaze.Vector) FrameInput {

	in := frameAt(n, detect.LabelPerson)

	pitch := make([]float32, 90)
	yaw := make([]float32, 90)
	pitch[pitchBin] = 30
	yaw[yawBin] = 30

	in.PitchLogits = pitch
	in.YawLogits = yaw
	in.Gaze = &g

	return in
}

// TestGazeSmoothingEndToEnd drives frames through the learned angle path
// and checks the smoothed zone becomes available after the window fills
func TestGazeSmoothingEndToEnd(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	if _, ok := s.SmoothedZone(); ok {
		t.Fatal("expected no smoothed zone before history fills")
	}

	// bin 45 decodes to 0 degrees on the default grid, straight at screen
	for i := 0; i < 5; i++ {
		if err := s.ProcessFrame(gazeFrame(i, 45, 45, gaze.Vector{})); err != nil {
			t.Fatalf("ProcessFrame failed: %v", err)
		}
	}

	zone, ok := s.SmoothedZone()

	if !ok {
		t.Fatal("expected smoothed zone after 5 frames")
	}

	if zone.Zone != gaze.ZoneScreen {
		t.Errorf("got zone %s, want screen", zone.Zone)
	}

	if v, ok := s.SmoothedVector(); !ok || v.X != 0 || v.Y != 0 {
		t.Errorf("got smoothed vector %+v ok=%v, want zero vector", v, ok)
	}
}

// TestLandmarkFallbackEndToEnd checks the geometric path produces a pose
// that feeds the gaze violation streak
func TestLandmarkFallbackEndToEnd(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	lm := &gaze.Landmarks{
		NoseTip:  gaze.Landmark{X: 135, Y: 100}, // hard right turn
		Forehead: gaze.Landmark{X: 100, Y: 60},
		Chin:     gaze.Landmark{X: 100, Y: 140},
		LeftEye:  gaze.Landmark{X: 80, Y: 85},
		RightEye: gaze.Landmark{X: 120, Y: 85},
		LeftEar:  gaze.Landmark{X: 60, Y: 100},
		RightEar: gaze.Landmark{X: 140, Y: 100},
	}

	for i := 0; i < 5; i++ {
		in := frameAt(i, detect.LabelPerson)
		in.Landmarks = lm

		if err := s.ProcessFrame(in); err != nil {
			t.Fatalf("ProcessFrame failed: %v", err)
		}
	}

	if len(rep.violations) != 1 || rep.violations[0].Kind != rules.KindGazeDeviation {
		t.Fatalf("expected one gaze deviation via landmark fallback, got %+v",
			rep.violations)
	}
}

// TestDegenerateLandmarksSkipped checks collapsed geometry skips the pose
// without an error or violation
func TestDegenerateLandmarksSkipped(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	in := frameAt(0, detect.LabelPerson)
	in.Landmarks = &gaze.Landmarks{} // all points coincide

	if err := s.ProcessFrame(in); err != nil {
		t.Fatalf("degenerate landmarks must not error the frame: %v", err)
	}

	if len(rep.violations) != 0 {
		t.Error("degenerate landmarks must not produce a violation")
	}
}

func TestConfigValidation(t *testing.T) {

	rep := &recordingReporter{}

	bad := DefaultConfig("")

	if _, err := NewSession(bad, rep, nil, nil); err == nil {
		t.Error("expected error for empty session ID")
	}

	bad = DefaultConfig("s")
	bad.SmoothWindow = bad.HistoryCapacity + 1

	if _, err := NewSession(bad, rep, nil, nil); err == nil {
		t.Error("expected error for smooth window above capacity")
	}

	bad = DefaultConfig("s")
	bad.Detect.ConfThreshold = 1.5

	if _, err := NewSession(bad, rep, nil, nil); err == nil {
		t.Error("expected error for out of range confidence threshold")
	}

	if _, err := NewSession(DefaultConfig("s"), nil, nil, nil); err == nil {
		t.Error("expected error for missing reporter")
	}
}

// stubSource hands out a fixed frame once per call
type stubSource struct {
	frames chan FrameInput
}

func (s *stubSource) NextFrame() (FrameInput, bool) {
	select {
	case f := <-s.frames:
		return f, true
	default:
		return FrameInput{}, false
	}
}

// TestRegistryLifecycle checks start, duplicate rejection, get and
// deterministic stop
func TestRegistryLifecycle(t *testing.T) {

	rep := &recordingReporter{}
	reg := NewRegistry(nil, nil)

	cfg := DefaultConfig("session-1")
	cfg.TickInterval = 5 * time.Millisecond

	src := &stubSource{frames: make(chan FrameInput, 1)}

	if _, err := reg.Start(context.Background(), cfg, src, rep); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := reg.Start(context.Background(), cfg, src, rep); err == nil {
		t.Error("expected error starting a duplicate session")
	}

	if _, ok := reg.Get("session-1"); !ok {
		t.Error("expected to find the running session")
	}

	if reg.Len() != 1 {
		t.Errorf("got %d sessions, want 1", reg.Len())
	}

	if !reg.Stop("session-1") {
		t.Error("Stop should report the session existed")
	}

	if reg.Stop("session-1") {
		t.Error("Stop should report an already stopped session as missing")
	}

	if reg.Len() != 0 {
		t.Errorf("got %d sessions after stop, want 0", reg.Len())
	}
}

// TestRunProcessesEventsAndTicks drives the run loop briefly with a real
// ticker and verifies browser events are handled as they arrive
func TestRunProcessesEventsAndTicks(t *testing.T) {

	rep := &recordingReporter{}
	reg := NewRegistry(nil, nil)

	cfg := DefaultConfig("session-1")
	cfg.TickInterval = 5 * time.Millisecond

	src := &stubSource{frames: make(chan FrameInput, 1)}
	src.frames <- frameAt(0, detect.LabelPerson, detect.LabelPhone)

	session, err := reg.Start(context.Background(), cfg, src, rep)

	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	session.Events() <- rules.BrowserTabHidden

	if _, ok := reg.Get("session-1"); !ok {
		t.Fatal("session not found while running")
	}

	// one phone report from the tick loop plus the tab event report
	deadline := time.After(time.Second)

	for rep.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reports, got %d", rep.count())
		case <-time.After(2 * time.Millisecond):
		}
	}

	reg.StopAll()

	if reg.Len() != 0 {
		t.Errorf("got %d sessions after StopAll, want 0", reg.Len())
	}
}

// TestRuntimeReconfiguration retunes every pipeline stage through the session
// setters without restarting it and checks each retune takes effect on the
// next frame
func TestRuntimeReconfiguration(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	// raise the detection threshold above the 0.9 synthetic scores so the
	// phone frame decodes to nothing
	p := detect.DefaultParams()
	p.ConfThreshold = 0.95

	if err := s.SetDetectParams(p); err != nil {
		t.Fatalf("SetDetectParams failed: %v", err)
	}

	s.ProcessFrame(frameAt(0, detect.LabelPerson, detect.LabelPhone))

	if len(rep.violations) != 0 {
		t.Fatalf("phone reported despite raised threshold: %+v", rep.violations)
	}

	// restore the defaults and the same frame reports
	if err := s.SetDetectParams(detect.DefaultParams()); err != nil {
		t.Fatalf("restoring detect params failed: %v", err)
	}

	s.ProcessFrame(frameAt(10, detect.LabelPerson, detect.LabelPhone))

	if len(rep.violations) != 1 || rep.violations[0].Kind != rules.KindForbiddenObject {
		t.Fatalf("expected one phone report after restore, got %+v", rep.violations)
	}

	// narrow the throttle window so a repeat 2 seconds later reports where
	// the default 5 second window would suppress it
	tp := rules.DefaultThrottleParams()
	tp.Window = time.Second
	tp.LockdownCeiling = 10

	if err := s.SetThrottleParams(tp); err != nil {
		t.Fatalf("SetThrottleParams failed: %v", err)
	}

	s.ProcessFrame(frameAt(12, detect.LabelPerson, detect.LabelPhone))

	if len(rep.violations) != 2 {
		t.Fatalf("got %d reports after narrowing the window, want 2", len(rep.violations))
	}

	// drop the absence threshold to 1 so a single empty frame fires
	rp := rules.DefaultEngineParams()
	rp.AbsenceStreakThreshold = 1

	if err := s.SetRuleParams(rp); err != nil {
		t.Fatalf("SetRuleParams failed: %v", err)
	}

	s.ProcessFrame(frameAt(20))

	if len(rep.violations) != 3 || rep.violations[2].Kind != rules.KindAbsence {
		t.Fatalf("expected absence on a single empty frame, got %+v", rep.violations)
	}

	// shrink the smoothing window so the smoothed zone resolves after 2 frames
	if err := s.SetSmoothWindow(2); err != nil {
		t.Fatalf("SetSmoothWindow failed: %v", err)
	}

	s.ProcessFrame(gazeFrame(30, 45, 45, gaze.Vector{}))
	s.ProcessFrame(gazeFrame(31, 45, 45, gaze.Vector{}))

	if zone, ok := s.SmoothedZone(); !ok || zone.Zone != gaze.ZoneScreen {
		t.Errorf("got zone %+v ok=%v after shrinking window, want screen", zone, ok)
	}

	// zone thresholds retune through the same surface
	zp := gaze.DefaultZoneParams()
	zp.AwayYaw = 10

	if err := s.SetZoneParams(zp); err != nil {
		t.Fatalf("SetZoneParams failed: %v", err)
	}
}

// TestRuntimeReconfigurationRejectsInvalid checks every setter rejects
// unusable values and leaves the running configuration untouched
func TestRuntimeReconfigurationRejectsInvalid(t *testing.T) {

	rep := &recordingReporter{}
	s := newTestSession(t, rep)

	bad := detect.DefaultParams()
	bad.ConfThreshold = 0

	if err := s.SetDetectParams(bad); err == nil {
		t.Error("expected error for zero confidence threshold")
	}

	if err := s.SetSmoothWindow(0); err == nil {
		t.Error("expected error for zero smooth window")
	}

	if err := s.SetSmoothWindow(DefaultConfig("s").HistoryCapacity + 1); err == nil {
		t.Error("expected error for smooth window above capacity")
	}

	if err := s.SetHistoryCapacity(DefaultConfig("s").SmoothWindow - 1); err == nil {
		t.Error("expected error for capacity below the smooth window")
	}

	badThrottle := rules.DefaultThrottleParams()
	badThrottle.LockdownCeiling = 0

	if err := s.SetThrottleParams(badThrottle); err == nil {
		t.Error("expected error for zero lockdown ceiling")
	}

	badRules := rules.DefaultEngineParams()
	badRules.AbsenceDecay = 0

	if err := s.SetRuleParams(badRules); err == nil {
		t.Error("expected error for zero absence decay")
	}

	// the pipeline still runs with the original configuration
	s.ProcessFrame(frameAt(0, detect.LabelPerson, detect.LabelPhone))

	if len(rep.violations) != 1 {
		t.Errorf("got %d reports after rejected retunes, want 1", len(rep.violations))
	}
}

// alwaysSource always has a fresh frame with one person ready
type alwaysSource struct{}

func (alwaysSource) NextFrame() (FrameInput, bool) {

	buf, anchors := detectionFrame(detect.LabelPerson)

	return FrameInput{
		Detections: buf,
		Anchors:    anchors,
		RatioX:     1,
		RatioY:     1,
	}, true
}

// TestSnapshotDuringRun reads counters and retunes thresholds while the run
// loop is processing frames
func TestSnapshotDuringRun(t *testing.T) {

	rep := &recordingReporter{}
	reg := NewRegistry(nil, nil)

	cfg := DefaultConfig("session-1")
	cfg.TickInterval = time.Millisecond

	session, err := reg.Start(context.Background(), cfg, alwaysSource{}, rep)

	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stop := time.Now().Add(50 * time.Millisecond)

	for time.Now().Before(stop) {
		_ = session.Snapshot()
		_, _ = session.SmoothedZone()
		session.LookingAway(time.Now())

		if err := session.SetRuleParams(rules.DefaultEngineParams()); err != nil {
			t.Fatalf("SetRuleParams failed mid-run: %v", err)
		}
	}

	reg.StopAll()

	if snap := session.Snapshot(); snap.FramesAnalyzed == 0 {
		t.Error("expected frames analyzed while snapshotting concurrently")
	}
}
