package track

import (
	"fmt"
	"time"

	"github.com/proctorsight/go-proctor/gaze"
	"gonum.org/v1/gonum/stat"
)

// Sample is one classified gaze observation added to the history
type Sample struct {
	Zone   gaze.Zone
	Vector gaze.Vector
	At     time.Time
}

// History is a fixed capacity FIFO of recent gaze samples used for noise
// reduction and for tracking how long the examinee has been looking away
// from the screen.  It is owned by a single session pipeline and is not safe
// for concurrent use.
type History struct {
	// capacity is the maximum number of most recent samples to keep
	capacity int
	// samples ordered oldest first
	samples []Sample
	// awayStart is the time of the first sample that left the screen zone,
	// zero while the examinee is looking at the screen
	awayStart time.Time
	// lastAway is the time of the most recent non screen sample
	lastAway time.Time
}

// NewHistory returns a new gaze sample history.  Capacity is the maximum
// number of most recent samples to keep, the oldest is evicted first.
func NewHistory(capacity int) (*History, error) {

	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive")
	}

	return &History{
		capacity: capacity,
	}, nil
}

// SetCapacity changes the maximum number of samples kept.  Shrinking evicts
// the oldest samples immediately so the next Add does not overshoot.
func (h *History) SetCapacity(capacity int) error {

	if capacity <= 0 {
		return fmt.Errorf("history capacity must be positive")
	}

	h.capacity = capacity

	if len(h.samples) > capacity {
		h.samples = h.samples[len(h.samples)-capacity:]
	}

	return nil
}

// Add appends a sample to the history, evicting the oldest when capacity is
// exceeded, and advances the away duration timer
func (h *History) Add(s Sample) {

	h.samples = append(h.samples, s)

	// check if history is exceeded and drop oldest sample
	if len(h.samples) > h.capacity {
		h.samples = h.samples[1:]
	}

	if s.Zone == gaze.ZoneScreen {
		// back on screen, timer resets to unset
		h.awayStart = time.Time{}
		return
	}

	h.lastAway = s.At

	if h.awayStart.IsZero() {
		h.awayStart = s.At
	}
}

// Len returns the number of samples currently held
func (h *History) Len() int {
	return len(h.samples)
}

// Reset clears all samples and the away timer
func (h *History) Reset() {
	h.samples = nil
	h.awayStart = time.Time{}
	h.lastAway = time.Time{}
}

// SmoothedVector returns the arithmetic mean of the last k gaze vectors.
// When fewer than k samples exist there is no result, callers must handle
// the absence rather than receiving a default.
func (h *History) SmoothedVector(k int) (gaze.Vector, bool) {

	if k <= 0 || len(h.samples) < k {
		return gaze.Vector{}, false
	}

	window := h.samples[len(h.samples)-k:]

	xs := make([]float64, len(window))
	ys := make([]float64, len(window))

	for i, s := range window {
		xs[i] = float64(s.Vector.X)
		ys[i] = float64(s.Vector.Y)
	}

	return gaze.Vector{
		X: float32(stat.Mean(xs, nil)),
		Y: float32(stat.Mean(ys, nil)),
	}, true
}

// SmoothedZone returns the majority vote zone over the last k samples along
// with the vote fraction of the winner.  Ties are broken by the zone seen
// first in window order, which keeps the result deterministic.  When fewer
// than k samples exist there is no result.
func (h *History) SmoothedZone(k int) (gaze.ZoneResult, bool) {

	if k <= 0 || len(h.samples) < k {
		return gaze.ZoneResult{}, false
	}

	window := h.samples[len(h.samples)-k:]

	counts := make(map[gaze.Zone]int)

	for _, s := range window {
		counts[s.Zone]++
	}

	// walk the window in order so the first seen zone wins a tie
	best := window[0].Zone

	for _, s := range window {
		if counts[s.Zone] > counts[best] {
			best = s.Zone
		}
	}

	return gaze.ZoneResult{
		Zone:       best,
		Confidence: float32(counts[best]) / float32(k),
	}, true
}

// AwayDuration returns how long the gaze has continuously been off screen as
// of now, zero when looking at the screen
func (h *History) AwayDuration(now time.Time) time.Duration {

	if h.awayStart.IsZero() {
		return 0
	}

	return now.Sub(h.awayStart)
}

// LookingAway reports whether the gaze has been continuously off screen for
// at least min
func (h *History) LookingAway(now time.Time, min time.Duration) bool {
	return !h.awayStart.IsZero() && h.AwayDuration(now) >= min
}

// AwayWarning returns a human readable warning with the away duration in
// whole seconds
func (h *History) AwayWarning(now time.Time) string {

	secs := int(h.AwayDuration(now).Seconds())

	return fmt.Sprintf("looking away from screen for %d seconds", secs)
}

// AwayStart returns the time the current away stretch began, zero while the
// examinee is looking at the screen
func (h *History) AwayStart() time.Time {
	return h.awayStart
}

// LastAway returns the time of the most recent off screen sample
func (h *History) LastAway() time.Time {
	return h.lastAway
}
