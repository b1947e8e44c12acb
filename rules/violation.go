package rules

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the rule that produced a violation
type Kind int

const (
	KindMultiplePersons Kind = iota
	KindAbsence
	KindForbiddenObject
	KindGazeDeviation
	KindTabHidden
	KindFullscreenExit
)

// kindNames maps each Kind to its wire name
var kindNames = map[Kind]string{
	KindMultiplePersons: "multiple-persons",
	KindAbsence:         "absence",
	KindForbiddenObject: "forbidden-object",
	KindGazeDeviation:   "gaze-deviation",
	KindTabHidden:       "tab-hidden",
	KindFullscreenExit:  "fullscreen-exit",
}

// String returns the wire name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

// MarshalJSON writes the kind as its wire name
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Discrete returns true for violations produced by discrete browser events
// rather than the per frame pipeline.  Discrete violations bypass report
// throttling since they are time critical and lossless.
func (k Kind) Discrete() bool {
	return k == KindTabHidden || k == KindFullscreenExit
}

// Severity grades a violation
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

// severityNames maps each Severity to its wire name
var severityNames = map[Severity]string{
	SeverityLow:    "low",
	SeverityMedium: "medium",
	SeverityHigh:   "high",
}

// String returns the wire name of the severity
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}

	return "unknown"
}

// MarshalJSON writes the severity as its wire name
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Violation is a single detected rule trigger to be pushed to the external
// reporting collaborator.  It is emitted transiently and not stored by the
// engine beyond reporting.
type Violation struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// newViolation creates a Violation with a fresh unique ID
func newViolation(sessionID string, kind Kind, severity Severity,
	message string, at time.Time) Violation {

	return Violation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Timestamp: at,
	}
}

// BrowserEvent is a discrete browser state change reported by the exam UI
type BrowserEvent int

const (
	BrowserTabHidden BrowserEvent = iota
	BrowserFullscreenExit
)

// String returns the wire name of the browser event
func (e BrowserEvent) String() string {
	switch e {
	case BrowserTabHidden:
		return "tab-hidden"
	case BrowserFullscreenExit:
		return "fullscreen-exit"
	}

	return "unknown"
}
