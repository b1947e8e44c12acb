package proctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
	"github.com/proctorsight/go-proctor/metrics"
	"github.com/proctorsight/go-proctor/rules"
	"github.com/proctorsight/go-proctor/track"
)

// FrameInput carries one frame's worth of raw model outputs into the
// pipeline.  The vision models themselves run in an external collaborator,
// the session only consumes their numeric outputs.
type FrameInput struct {
	// Detections is the flat detection tensor laid out as
	// [cx, cy, w, h, class scores...] per anchor
	Detections []float32
	// Anchors is the anchor count A of the detection tensor
	Anchors int
	// RatioX and RatioY map model space coordinates to source frame
	// coordinates
	RatioX, RatioY float32

	// PitchLogits and YawLogits are the angle model bin outputs, nil when
	// the angle model produced nothing this frame
	PitchLogits []float32
	YawLogits   []float32

	// Landmarks enables the geometric pose fallback when only a face
	// landmark model is available
	Landmarks *gaze.Landmarks

	// Gaze is the normalized iris offset from the landmark model, nil when
	// unavailable
	Gaze *gaze.Vector

	// At is the frame timestamp
	At time.Time
}

// FrameSource supplies the latest ready frame to the tick loop.  Returning
// ok false means inference has not produced a result since the last tick and
// the tick is skipped, stale frames are never queued.
type FrameSource interface {
	NextFrame() (FrameInput, bool)
}

// Reporter receives the engine's outbound signals.  It is implemented by
// the external reporting/transport collaborator.
type Reporter interface {
	// Report delivers one violation
	Report(v rules.Violation)
	// Lockdown signals the session crossed the violation ceiling and
	// should be auto submitted/ended
	Lockdown(sessionID string, total int)
}

// Snapshot is a read only copy of the session's mutable counters
type Snapshot struct {
	AbsenceStreak   float64
	GazeStreak      int
	TotalViolations int
	LastReportTime  time.Time
	LookAwayStart   time.Time
	LastLookAway    time.Time
	FramesAnalyzed  uint64
}

// Session is the decision pipeline for one monitored examinee.  All state is
// private to the session, independent sessions share nothing mutable.  Frame
// and event processing happen on the run loop, while snapshots and runtime
// retuning may arrive from other goroutines, so the mutable pipeline state
// sits behind a single mutex.
type Session struct {
	cfg Config
	log *slog.Logger

	// mu guards the pipeline stages, the configuration and the counters
	// against concurrent snapshot and retune calls while Run is processing
	mu sync.Mutex

	decoder    *detect.Decoder
	binDecoder *gaze.BinDecoder
	classifier *gaze.Classifier
	history    *track.History
	engine     *rules.Engine
	throttle   *rules.Throttle

	reporter Reporter
	col      *metrics.Collector

	events chan rules.BrowserEvent
	frames uint64

	// awayWarned tracks whether the current away stretch was already logged
	awayWarned bool
}

// NewSession constructs a session pipeline from the validated configuration.
// Invalid thresholds are fatal here, nothing is fatal afterwards.
func NewSession(cfg Config, reporter Reporter, col *metrics.Collector,
	log *slog.Logger) (*Session, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if reporter == nil {
		return nil, fmt.Errorf("config: reporter is required")
	}

	decoder, err := detect.NewDecoder(cfg.Detect)

	if err != nil {
		return nil, fmt.Errorf("detection decoder: %w", err)
	}

	binDecoder, err := gaze.NewBinDecoder(cfg.GazeBins)

	if err != nil {
		return nil, fmt.Errorf("gaze bin decoder: %w", err)
	}

	classifier, err := gaze.NewClassifier(cfg.Zone)

	if err != nil {
		return nil, fmt.Errorf("zone classifier: %w", err)
	}

	history, err := track.NewHistory(cfg.HistoryCapacity)

	if err != nil {
		return nil, fmt.Errorf("gaze history: %w", err)
	}

	engine, err := rules.NewEngine(cfg.SessionID, cfg.Rules)

	if err != nil {
		return nil, fmt.Errorf("rule engine: %w", err)
	}

	throttle, err := rules.NewThrottle(cfg.Throttle)

	if err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Session{
		cfg:        cfg,
		log:        log.With("session", cfg.SessionID),
		decoder:    decoder,
		binDecoder: binDecoder,
		classifier: classifier,
		history:    history,
		engine:     engine,
		throttle:   throttle,
		reporter:   reporter,
		col:        col,
		events:     make(chan rules.BrowserEvent, 16),
	}, nil
}

// Events returns the channel discrete browser events are delivered on.  The
// run loop processes them immediately on arrival, they are never dropped.
func (s *Session) Events() chan<- rules.BrowserEvent {
	return s.events
}

// SetDetectParams replaces the object detection decoder parameters at
// runtime.  Invalid values are rejected and the running parameters are kept.
func (s *Session) SetDetectParams(p detect.Params) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.decoder.SetParams(p); err != nil {
		return err
	}

	s.cfg.Detect = p
	return nil
}

// SetZoneParams replaces the gaze zone classification thresholds at runtime
func (s *Session) SetZoneParams(p gaze.ZoneParams) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.classifier.SetParams(p); err != nil {
		return err
	}

	s.cfg.Zone = p
	return nil
}

// SetRuleParams replaces the rule engine thresholds at runtime.  The
// hysteresis counters are preserved across the retune.
func (s *Session) SetRuleParams(p rules.EngineParams) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.SetParams(p); err != nil {
		return err
	}

	s.cfg.Rules = p
	return nil
}

// SetThrottleParams replaces the report throttle configuration at runtime.
// The reported total and the window anchor are preserved.
func (s *Session) SetThrottleParams(p rules.ThrottleParams) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.throttle.SetParams(p); err != nil {
		return err
	}

	s.cfg.Throttle = p
	return nil
}

// SetSmoothWindow changes the number of recent samples used for gaze
// smoothing.  The window cannot exceed the history capacity.
func (s *Session) SetSmoothWindow(k int) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if k <= 0 || k > s.cfg.HistoryCapacity {
		return fmt.Errorf("config: smooth window must be within (0, %d]",
			s.cfg.HistoryCapacity)
	}

	s.cfg.SmoothWindow = k
	return nil
}

// SetHistoryCapacity changes the number of gaze samples retained.  Shrinking
// evicts the oldest samples, and the capacity cannot drop below the current
// smoothing window.
func (s *Session) SetHistoryCapacity(capacity int) error {

	s.mu.Lock()
	defer s.mu.Unlock()

	if capacity < s.cfg.SmoothWindow {
		return fmt.Errorf("config: history capacity must be at least the "+
			"smooth window %d", s.cfg.SmoothWindow)
	}

	if err := s.history.SetCapacity(capacity); err != nil {
		return err
	}

	s.cfg.HistoryCapacity = capacity
	return nil
}

// Run drives the pipeline at the configured tick cadence until ctx is
// cancelled.  Each tick pulls the latest frame from the source, a tick with
// no frame ready is skipped.  Browser events are processed as they arrive.
// Teardown is deterministic: the ticker stops and history clears before Run
// returns.
func (s *Session) Run(ctx context.Context, src FrameSource) error {

	ticker := time.NewTicker(s.cfg.TickInterval)

	defer func() {
		ticker.Stop()

		s.mu.Lock()
		s.history.Reset()
		frames := s.frames
		s.mu.Unlock()

		s.log.Info("monitoring stopped", "frames", frames)
	}()

	s.log.Info("monitoring started", "tick", s.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-s.events:
			s.HandleBrowserEvent(ev, time.Now())

		case <-ticker.C:
			in, ok := src.NextFrame()

			if !ok {
				// inference not ready, skip the tick
				if s.col != nil {
					s.col.FramesSkipped.Add(1)
				}
				continue
			}

			if err := s.ProcessFrame(in); err != nil {
				// frame failures are recovered locally, counters are
				// preserved and the session keeps running
				s.log.Warn("frame rejected", "err", err)
			}
		}
	}
}

// ProcessFrame runs one frame through decode, zone classification, rule
// fusion and throttling.  It may be called directly when the collaborator
// drives cadence itself instead of using Run.
func (s *Session) ProcessFrame(in FrameInput) error {

	if in.At.IsZero() {
		in.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, err := s.decoder.Decode(in.Detections, in.Anchors,
		in.RatioX, in.RatioY)

	if err != nil {
		if s.col != nil {
			s.col.FramesRejected.Add(1)
		}
		return fmt.Errorf("detection decode: %w", err)
	}

	pose := s.decodePose(in)

	if pose != nil && in.Gaze != nil {
		s.observeGaze(*in.Gaze, *pose, in.At)
	}

	s.frames++

	if s.col != nil {
		s.col.FramesAnalyzed.Add(1)
	}

	v, fired := s.engine.Evaluate(rules.Frame{
		Objects: objects,
		Pose:    pose,
		At:      in.At,
	})

	if fired {
		s.report(v)
	}

	return nil
}

// HandleBrowserEvent processes a discrete browser event immediately.  The
// resulting violation bypasses throttling.
func (s *Session) HandleBrowserEvent(ev rules.BrowserEvent, at time.Time) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col != nil {
		s.col.BrowserEvents.Add(1)
	}

	s.report(s.engine.HandleBrowserEvent(ev, at))
}

// LookingAway reports whether the smoothed gaze has been continuously off
// screen for at least the configured minimum, with the warning text
func (s *Session) LookingAway(now time.Time) (string, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.LookingAway(now, s.cfg.MinAwayDuration) {
		return "", false
	}

	return s.history.AwayWarning(now), true
}

// SmoothedZone returns the majority vote gaze zone over the configured
// smoothing window.  ok is false until enough history has accumulated.
func (s *Session) SmoothedZone() (gaze.ZoneResult, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.SmoothedZone(s.cfg.SmoothWindow)
}

// SmoothedVector returns the mean gaze vector over the configured smoothing
// window.  ok is false until enough history has accumulated.
func (s *Session) SmoothedVector() (gaze.Vector, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.SmoothedVector(s.cfg.SmoothWindow)
}

// Snapshot returns a read only copy of the session counters.  It is safe to
// call while Run is processing frames.
func (s *Session) Snapshot() Snapshot {

	s.mu.Lock()
	defer s.mu.Unlock()

	counters := s.engine.Counters()

	return Snapshot{
		AbsenceStreak:   counters.AbsenceStreak,
		GazeStreak:      counters.GazeStreak,
		TotalViolations: s.throttle.Total(),
		LastReportTime:  s.throttle.LastReport(),
		LookAwayStart:   s.history.AwayStart(),
		LastLookAway:    s.history.LastAway(),
		FramesAnalyzed:  s.frames,
	}
}

// decodePose produces a head pose from the angle model output when present,
// falling back to landmark geometry.  Decode failures skip the pose for the
// frame, they never propagate.
func (s *Session) decodePose(in FrameInput) *gaze.HeadPose {

	if in.PitchLogits != nil && in.YawLogits != nil {
		pose, err := s.binDecoder.DecodePose(in.PitchLogits, in.YawLogits)

		if err != nil {
			s.log.Warn("gaze decode failed, skipping pose", "err", err)
			return nil
		}

		return &pose
	}

	if in.Landmarks != nil {
		pose, err := gaze.EstimatePose(*in.Landmarks)

		if err != nil {
			if !errors.Is(err, gaze.ErrDegenerateGeometry) {
				s.log.Warn("pose estimate failed", "err", err)
			}
			return nil
		}

		return &pose
	}

	return nil
}

// observeGaze classifies the gaze zone, records it in the history and logs
// the away warning once per away stretch
func (s *Session) observeGaze(g gaze.Vector, pose gaze.HeadPose, at time.Time) {

	zone := s.classifier.Classify(g, pose)

	s.history.Add(track.Sample{
		Zone:   zone.Zone,
		Vector: g,
		At:     at,
	})

	if zone.Zone == gaze.ZoneScreen {
		s.awayWarned = false
		return
	}

	if !s.awayWarned && s.history.LookingAway(at, s.cfg.MinAwayDuration) {
		s.awayWarned = true
		s.log.Info(s.history.AwayWarning(at), "zone", zone.Zone.String())
	}
}

// report pushes a violation through the throttle to the reporter
func (s *Session) report(v rules.Violation) {

	ok, lockdown := s.throttle.Admit(v)

	if !ok {
		if s.col != nil {
			s.col.ReportsThrottled.Add(1)
		}
		s.log.Debug("report throttled", "kind", v.Kind.String())
		return
	}

	if s.col != nil {
		s.col.CountViolation(v.Severity.String())
	}

	s.log.Info("violation reported",
		"kind", v.Kind.String(),
		"severity", v.Severity.String(),
		"message", v.Message)

	s.reporter.Report(v)

	if lockdown {
		if s.col != nil {
			s.col.Lockdowns.Add(1)
		}

		s.log.Warn("violation ceiling crossed, signalling lockdown")
		s.reporter.Lockdown(s.cfg.SessionID, s.cfg.Throttle.LockdownCeiling)
	}
}
