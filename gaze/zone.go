package gaze

import "fmt"

// Zone is the coarse discrete classification of where the examinee appears
// to be looking
type Zone int

const (
	ZoneScreen Zone = iota
	ZoneKeyboard
	ZonePhone
	ZoneAwayHorizontal
	ZoneCeiling
)

// zoneNames maps each Zone to its display name
var zoneNames = map[Zone]string{
	ZoneScreen:         "screen",
	ZoneKeyboard:       "keyboard",
	ZonePhone:          "phone",
	ZoneAwayHorizontal: "away-horizontal",
	ZoneCeiling:        "ceiling",
}

// String returns the display name of the zone
func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}

	return "unknown"
}

// ZoneResult is a classified gaze zone with the confidence of the
// classification
type ZoneResult struct {
	Zone       Zone
	Confidence float32
}

// ZoneParams defines the angle and iris offset thresholds used for zone
// classification.  Angles are degrees with positive pitch upward, offsets
// are normalized iris coordinates with positive Y downward.
type ZoneParams struct {
	// PhonePitch is the downward pitch magnitude beyond which, combined
	// with a lateral yaw, the examinee is looking at a phone held below or
	// beside the face
	PhonePitch float32
	// PhoneYaw is the lateral yaw magnitude used with PhonePitch
	PhoneYaw float32
	// AwayGazeX is the horizontal iris offset magnitude for looking away
	AwayGazeX float32
	// AwayYaw is the yaw magnitude for looking away
	AwayYaw float32
	// DownPitch is the downward pitch magnitude for looking at the keyboard
	DownPitch float32
	// DownGazeY is the downward iris offset for looking at the keyboard
	DownGazeY float32
	// UpPitch is the upward pitch magnitude for looking at the ceiling
	UpPitch float32
	// UpGazeY is the upward iris offset magnitude for looking at the ceiling
	UpGazeY float32
}

// DefaultZoneParams returns an instance of ZoneParams with thresholds tuned
// for a webcam mounted at the top of the examinee's screen
func DefaultZoneParams() ZoneParams {
	return ZoneParams{
		PhonePitch: 30,
		PhoneYaw:   15,
		AwayGazeX:  0.35,
		AwayYaw:    25,
		DownPitch:  15,
		DownGazeY:  0.30,
		UpPitch:    15,
		UpGazeY:    0.30,
	}
}

// Validate checks the thresholds are usable
func (p ZoneParams) Validate() error {

	for _, v := range []struct {
		name string
		val  float32
	}{
		{"phone pitch", p.PhonePitch},
		{"phone yaw", p.PhoneYaw},
		{"away gaze x", p.AwayGazeX},
		{"away yaw", p.AwayYaw},
		{"down pitch", p.DownPitch},
		{"down gaze y", p.DownGazeY},
		{"up pitch", p.UpPitch},
		{"up gaze y", p.UpGazeY},
	} {
		if v.val <= 0 {
			return fmt.Errorf("params: %s threshold must be positive", v.name)
		}
	}

	return nil
}

// Fixed confidences for each classification branch, decreasing down the
// priority list
const (
	confPhone    = 0.90
	confAway     = 0.85
	confKeyboard = 0.75
	confCeiling  = 0.70
	confScreen   = 0.60
)

// Classifier turns an iris offset and head pose into a discrete gaze zone
type Classifier struct {
	params ZoneParams
}

// NewClassifier returns an instance of the zone classifier
func NewClassifier(p ZoneParams) (*Classifier, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Classifier{
		params: p,
	}, nil
}

// SetParams replaces the classification thresholds at runtime
func (c *Classifier) SetParams(p ZoneParams) error {

	if err := p.Validate(); err != nil {
		return err
	}

	c.params = p

	return nil
}

// Params returns the current classification thresholds
func (c *Classifier) Params() ZoneParams {
	return c.params
}

// Classify is a pure function of the gaze vector and head pose.  Branches
// are checked in fixed priority order with the first match winning, which
// avoids ambiguity between overlapping conditions:
// phone > away-horizontal > keyboard > ceiling > screen.
func (c *Classifier) Classify(g Vector, pose HeadPose) ZoneResult {

	p := c.params

	// phone held below or beside the face
	if pose.Pitch < -p.PhonePitch && absf(pose.Yaw) > p.PhoneYaw {
		return ZoneResult{Zone: ZonePhone, Confidence: confPhone}
	}

	if absf(g.X) > p.AwayGazeX || absf(pose.Yaw) > p.AwayYaw {
		return ZoneResult{Zone: ZoneAwayHorizontal, Confidence: confAway}
	}

	if pose.Pitch < -p.DownPitch || g.Y > p.DownGazeY {
		return ZoneResult{Zone: ZoneKeyboard, Confidence: confKeyboard}
	}

	if pose.Pitch > p.UpPitch || g.Y < -p.UpGazeY {
		return ZoneResult{Zone: ZoneCeiling, Confidence: confCeiling}
	}

	return ZoneResult{Zone: ZoneScreen, Confidence: confScreen}
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
