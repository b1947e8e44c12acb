package rules

import (
	"fmt"
	"time"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
)

// EngineParams defines the rule engine thresholds
type EngineParams struct {
	// AbsenceStreakThreshold is the number of consecutive no-person frames
	// required before an absence violation fires
	AbsenceStreakThreshold float64
	// AbsenceDecay is subtracted from the absence streak on each clean
	// frame instead of resetting it, so intermittent detection misses do
	// not instantly clear suspicion
	AbsenceDecay float64
	// GazeStreakThreshold is the number of consecutive deviating frames
	// required before a gaze violation fires, rejecting single frame jitter
	GazeStreakThreshold int
	// GazeYawLimit is the yaw magnitude in degrees that counts as a gaze
	// deviation.  This is stricter than the zone classification thresholds.
	GazeYawLimit float32
	// GazePitchLimit is the pitch magnitude in degrees that counts as a
	// gaze deviation
	GazePitchLimit float32
}

// DefaultEngineParams returns an instance of EngineParams with the default
// thresholds:
// - Absence streak: 3 frames, decaying by 0.5 per clean frame
// - Gaze streak: 5 consecutive frames at 40/35 degrees yaw/pitch
func DefaultEngineParams() EngineParams {
	return EngineParams{
		AbsenceStreakThreshold: 3,
		AbsenceDecay:           0.5,
		GazeStreakThreshold:    5,
		GazeYawLimit:           40,
		GazePitchLimit:         35,
	}
}

// Validate checks the thresholds are usable
func (p EngineParams) Validate() error {

	if p.AbsenceStreakThreshold < 1 {
		return fmt.Errorf("params: absence streak threshold must be at least 1")
	}

	if p.AbsenceDecay <= 0 {
		return fmt.Errorf("params: absence decay must be positive")
	}

	if p.GazeStreakThreshold < 1 {
		return fmt.Errorf("params: gaze streak threshold must be at least 1")
	}

	if p.GazeYawLimit <= 0 || p.GazePitchLimit <= 0 {
		return fmt.Errorf("params: gaze angle limits must be positive")
	}

	return nil
}

// Frame carries one analyzed frame's decoded signals into the rule engine
type Frame struct {
	// Objects are the decoded detections for the frame
	Objects []detect.Object
	// Pose is the decoded head pose, nil when neither the angle model nor
	// the landmark fallback produced one this frame
	Pose *gaze.HeadPose
	// At is the frame timestamp
	At time.Time
}

// Counters is a read only snapshot of the per session rule state
type Counters struct {
	AbsenceStreak float64
	GazeStreak    int
}

// Engine is the per session violation rule state machine.  One Engine is
// owned by exactly one session pipeline, all state is private to that
// session and mutated only from the single tick/event processing path.
type Engine struct {
	params    EngineParams
	sessionID string

	// absenceStreak counts consecutive frames with no person visible.  It
	// decays fractionally on clean frames and never drops below zero.
	absenceStreak float64
	// gazeStreak counts consecutive frames with a deviating head pose.  It
	// decays by one per clean frame rather than resetting.
	gazeStreak int
}

// NewEngine returns a rule engine for the given session
func NewEngine(sessionID string, p EngineParams) (*Engine, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		params:    p,
		sessionID: sessionID,
	}, nil
}

// Params returns the current thresholds
func (e *Engine) Params() EngineParams {
	return e.params
}

// SetParams replaces the thresholds, rejecting invalid values while leaving
// the current thresholds in place.  The hysteresis counters are preserved so
// a retune mid-streak does not discard accumulated suspicion.
func (e *Engine) SetParams(p EngineParams) error {

	if err := p.Validate(); err != nil {
		return err
	}

	e.params = p
	return nil
}

// Counters returns a snapshot of the hysteresis counters
func (e *Engine) Counters() Counters {
	return Counters{
		AbsenceStreak: e.absenceStreak,
		GazeStreak:    e.gazeStreak,
	}
}

// Reset clears the hysteresis counters
func (e *Engine) Reset() {
	e.absenceStreak = 0
	e.gazeStreak = 0
}

// Evaluate runs the rule priority chain over one frame and returns at most
// one violation.  The first applicable rule wins and later rules are
// skipped, except the two hysteresis counters which update on every frame
// regardless of which rule fires:
//
//  1. multiple persons: immediate high severity
//  2. absence streak reached: high severity, streak resets to 0
//  3. phone visible: immediate high severity
//  4. book or paper visible: immediate medium severity
//  5. gaze streak reached: medium severity, streak resets to 0
//
// On a frame where no rule fired and a person is present the absence streak
// decays by the configured fractional amount.
func (e *Engine) Evaluate(f Frame) (Violation, bool) {

	persons := detect.CountLabel(f.Objects, detect.LabelPerson)

	// hysteresis counters always update
	if persons == 0 {
		e.absenceStreak++
	}

	if f.Pose != nil {
		if e.deviates(*f.Pose) {
			e.gazeStreak++
		} else if e.gazeStreak > 0 {
			e.gazeStreak--
		}
	}

	switch {
	case persons > 1:
		return newViolation(e.sessionID, KindMultiplePersons, SeverityHigh,
			fmt.Sprintf("%d persons visible in frame", persons), f.At), true

	case persons == 0 && e.absenceStreak >= e.params.AbsenceStreakThreshold:
		e.absenceStreak = 0
		return newViolation(e.sessionID, KindAbsence, SeverityHigh,
			"no person visible in frame", f.At), true

	case persons == 0:
		// streak still building, nothing emitted this frame
		return Violation{}, false
	}

	if obj, ok := detect.FirstLabel(f.Objects, detect.LabelPhone); ok {
		return newViolation(e.sessionID, KindForbiddenObject, SeverityHigh,
			forbiddenMessage(obj), f.At), true
	}

	for _, label := range []detect.Label{detect.LabelBook, detect.LabelPaper} {
		if obj, ok := detect.FirstLabel(f.Objects, label); ok {
			return newViolation(e.sessionID, KindForbiddenObject, SeverityMedium,
				forbiddenMessage(obj), f.At), true
		}
	}

	if f.Pose != nil && e.gazeStreak >= e.params.GazeStreakThreshold {
		e.gazeStreak = 0
		return newViolation(e.sessionID, KindGazeDeviation, SeverityMedium,
			fmt.Sprintf("sustained gaze deviation, yaw %.1f pitch %.1f",
				f.Pose.Yaw, f.Pose.Pitch), f.At), true
	}

	// clean frame, fractional absence decay
	e.absenceStreak -= e.params.AbsenceDecay

	if e.absenceStreak < 0 {
		e.absenceStreak = 0
	}

	return Violation{}, false
}

// HandleBrowserEvent turns a discrete browser event into an immediate high
// severity violation, bypassing the per frame pipeline entirely
func (e *Engine) HandleBrowserEvent(ev BrowserEvent, at time.Time) Violation {

	kind := KindTabHidden
	msg := "exam tab hidden or switched away from"

	if ev == BrowserFullscreenExit {
		kind = KindFullscreenExit
		msg = "exam left fullscreen mode"
	}

	return newViolation(e.sessionID, kind, SeverityHigh, msg, at)
}

// deviates reports whether the pose exceeds the violation grade angle limits
func (e *Engine) deviates(pose gaze.HeadPose) bool {
	return absf(pose.Yaw) > e.params.GazeYawLimit ||
		absf(pose.Pitch) > e.params.GazePitchLimit
}

func forbiddenMessage(obj detect.Object) string {
	return fmt.Sprintf("forbidden object visible: %s (%.0f%%)",
		obj.Label, obj.Confidence*100)
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
