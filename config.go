package proctor

import (
	"fmt"
	"time"

	"github.com/proctorsight/go-proctor/detect"
	"github.com/proctorsight/go-proctor/gaze"
	"github.com/proctorsight/go-proctor/rules"
)

// Config aggregates all pipeline configuration for one monitored session.
// Validation failures here are the only fatal errors in the engine, every
// per frame failure after construction is recovered locally.
type Config struct {
	// SessionID identifies the monitored exam session
	SessionID string
	// TickInterval is the frame analysis cadence
	TickInterval time.Duration
	// HistoryCapacity is the maximum number of gaze samples retained for
	// smoothing
	HistoryCapacity int
	// SmoothWindow is the number of recent samples K used for the smoothed
	// gaze vector and majority vote zone
	SmoothWindow int
	// MinAwayDuration is how long the gaze must stay off screen before the
	// session reports the examinee as looking away
	MinAwayDuration time.Duration

	// Detect configures the object detection decoder
	Detect detect.Params
	// GazeBins configures the angle bin decoder
	GazeBins gaze.BinDecoderParams
	// Zone configures the gaze zone classifier
	Zone gaze.ZoneParams
	// Rules configures the violation rule engine
	Rules rules.EngineParams
	// Throttle configures report rate limiting and lockdown
	Throttle rules.ThrottleParams
}

// DefaultConfig returns a Config with the default parameters for all
// pipeline stages
func DefaultConfig(sessionID string) Config {
	return Config{
		SessionID:       sessionID,
		TickInterval:    time.Second,
		HistoryCapacity: 30,
		SmoothWindow:    5,
		MinAwayDuration: 3 * time.Second,
		Detect:          detect.DefaultParams(),
		GazeBins:        gaze.DefaultBinDecoderParams(),
		Zone:            gaze.DefaultZoneParams(),
		Rules:           rules.DefaultEngineParams(),
		Throttle:        rules.DefaultThrottleParams(),
	}
}

// Validate checks the session level settings.  The stage Params are
// validated by their own constructors when the session is built.
func (c Config) Validate() error {

	if c.SessionID == "" {
		return fmt.Errorf("config: session ID is required")
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick interval must be positive")
	}

	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("config: history capacity must be positive")
	}

	if c.SmoothWindow <= 0 || c.SmoothWindow > c.HistoryCapacity {
		return fmt.Errorf("config: smooth window must be within (0, %d]",
			c.HistoryCapacity)
	}

	if c.MinAwayDuration < 0 {
		return fmt.Errorf("config: min away duration must not be negative")
	}

	return nil
}
