package gaze

import (
	"errors"
	"math"
)

// HeadPose holds the head orientation angles in degrees.  Positive pitch is
// upward, positive yaw is to the examinee's right, positive roll is a
// clockwise head tilt viewed from the camera.
type HeadPose struct {
	Pitch float32
	Yaw   float32
	Roll  float32
}

// Vector is the normalized iris offset relative to the eye center, each axis
// roughly in the range [-1, 1].  Positive X looks right, positive Y looks
// down in image coordinates.
type Vector struct {
	X float32
	Y float32
}

// Landmark is a single face landmark point in image coordinates
type Landmark struct {
	X float32
	Y float32
}

// Landmarks are the face landmark points the geometric pose estimate uses
type Landmarks struct {
	NoseTip  Landmark
	Forehead Landmark
	Chin     Landmark
	LeftEye  Landmark
	RightEye Landmark
	LeftEar  Landmark
	RightEar Landmark
}

// ErrDegenerateGeometry indicates the landmark geometry collapsed to a near
// zero face extent, the frame's pose output must be skipped rather than
// propagating NaN or Infinity downstream
var ErrDegenerateGeometry = errors.New("degenerate landmark geometry")

// minFaceExtent is the smallest face width/height in pixels the arctangent
// ratios remain meaningful for
const minFaceExtent = 1e-3

// EstimatePose computes a HeadPose geometrically from face landmarks.  This
// is the fallback path for when only a landmark model is available and no
// learned angle model output exists.  It produces the same HeadPose shape as
// the learned path so downstream consumers are agnostic to origin.
func EstimatePose(lm Landmarks) (HeadPose, error) {

	faceWidth := dist(lm.LeftEar, lm.RightEar)
	faceHeight := dist(lm.Forehead, lm.Chin)

	if faceWidth < minFaceExtent || faceHeight < minFaceExtent {
		return HeadPose{}, ErrDegenerateGeometry
	}

	// yaw from the nose offset relative to the ear midpoint
	earMidX := (lm.LeftEar.X + lm.RightEar.X) / 2
	yaw := atanDeg((lm.NoseTip.X - earMidX) / (faceWidth / 2))

	// pitch from the nose offset relative to the forehead/chin midpoint,
	// negated since image Y grows downward
	faceMidY := (lm.Forehead.Y + lm.Chin.Y) / 2
	pitch := -atanDeg((lm.NoseTip.Y - faceMidY) / (faceHeight / 2))

	// roll from the eye line slope
	roll := atan2Deg(lm.RightEye.Y-lm.LeftEye.Y, lm.RightEye.X-lm.LeftEye.X)

	return HeadPose{
		Pitch: pitch,
		Yaw:   yaw,
		Roll:  roll,
	}, nil
}

// dist returns the euclidean distance between two landmarks
func dist(a, b Landmark) float32 {

	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)

	return float32(math.Hypot(dx, dy))
}

// atanDeg returns the arctangent of x in degrees
func atanDeg(x float32) float32 {
	return float32(math.Atan(float64(x)) * 180 / math.Pi)
}

// atan2Deg returns the two argument arctangent of y/x in degrees
func atan2Deg(y, x float32) float32 {
	return float32(math.Atan2(float64(y), float64(x)) * 180 / math.Pi)
}
