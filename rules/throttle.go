package rules

import (
	"fmt"
	"time"
)

// ThrottleParams defines the report rate limiting configuration
type ThrottleParams struct {
	// Window is the minimum time between successive outbound reports.
	// Violations arriving inside the window are suppressed, except discrete
	// browser event kinds which always pass.
	Window time.Duration
	// LockdownCeiling is the reported violation total that triggers a
	// session level lockdown signal
	LockdownCeiling int
}

// DefaultThrottleParams returns an instance of ThrottleParams with a 5
// second window and a lockdown ceiling of 3 reported violations
func DefaultThrottleParams() ThrottleParams {
	return ThrottleParams{
		Window:          5 * time.Second,
		LockdownCeiling: 3,
	}
}

// Validate checks the configuration is usable
func (p ThrottleParams) Validate() error {

	if p.Window <= 0 {
		return fmt.Errorf("params: throttle window must be positive")
	}

	if p.LockdownCeiling < 1 {
		return fmt.Errorf("params: lockdown ceiling must be at least 1")
	}

	return nil
}

// Throttle rate limits outbound violation reports for one session and
// tracks the cumulative reported total for lockdown decisions.  Like the
// Engine it is owned by a single session pipeline.
type Throttle struct {
	params ThrottleParams

	// lastReport is the timestamp of the last report that passed the
	// window.  Suppressed violations and discrete browser events do not
	// move it.
	lastReport time.Time
	// total is the running count of reported violations, reset to zero
	// after each lockdown signal so repeated crossings re-trigger
	total int
}

// NewThrottle returns a report throttle for one session
func NewThrottle(p ThrottleParams) (*Throttle, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Throttle{
		params: p,
	}, nil
}

// Params returns the current rate limiting configuration
func (t *Throttle) Params() ThrottleParams {
	return t.params
}

// SetParams replaces the rate limiting configuration, rejecting invalid
// values while leaving the current configuration in place.  The running
// total and the window anchor are preserved.
func (t *Throttle) SetParams(p ThrottleParams) error {

	if err := p.Validate(); err != nil {
		return err
	}

	t.params = p
	return nil
}

// Admit decides whether the violation may be reported now.  The second
// return value signals that the reported total crossed the lockdown ceiling,
// after which the total resets to zero.
func (t *Throttle) Admit(v Violation) (report bool, lockdown bool) {

	if v.Kind.Discrete() {
		// discrete browser events are never suppressed and do not extend
		// the window for frame violations
		t.total++
	} else {
		if !t.lastReport.IsZero() &&
			v.Timestamp.Sub(t.lastReport) < t.params.Window {
			return false, false
		}

		t.lastReport = v.Timestamp
		t.total++
	}

	if t.total >= t.params.LockdownCeiling {
		t.total = 0
		return true, true
	}

	return true, false
}

// Total returns the current reported violation count since the last
// lockdown signal
func (t *Throttle) Total() int {
	return t.total
}

// LastReport returns the timestamp of the last reported frame violation
func (t *Throttle) LastReport() time.Time {
	return t.lastReport
}

// Reset clears the window and the running total
func (t *Throttle) Reset() {
	t.lastReport = time.Time{}
	t.total = 0
}
