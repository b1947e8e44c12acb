package gaze

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// BinDecoder converts the categorical probability output of a gaze angle
// model into a continuous angle using expected value decoding.  The model
// predicts a distribution over discretized angle bins; softmax followed by a
// probability weighted mean of the bin indexes gives sub-bin resolution.
type BinDecoder struct {
	// Params are the model configuration parameters
	Params BinDecoderParams
}

// BinDecoderParams defines the bin grid the angle model was trained on.
// These values are fixed at model training time and must match the deployed
// model, they are not inferred from the data.
type BinDecoderParams struct {
	// NumBins is the number of discrete angle bins the model predicts over
	NumBins int
	// BinWidth is the angular width of each bin in degrees
	BinWidth float32
	// AngleOffset is the angle in degrees of the center of bin zero
	AngleOffset float32
}

// DefaultBinDecoderParams returns an instance of BinDecoderParams configured
// for the standard gaze estimation grid of 90 bins of 4 degrees spanning
// [-180, 180)
func DefaultBinDecoderParams() BinDecoderParams {
	return BinDecoderParams{
		NumBins:     90,
		BinWidth:    4,
		AngleOffset: -180,
	}
}

// NewBinDecoder returns an instance of the angle bin decoder
func NewBinDecoder(p BinDecoderParams) (*BinDecoder, error) {

	if p.NumBins <= 0 {
		return nil, fmt.Errorf("params: number of bins must be positive")
	}

	if p.BinWidth <= 0 {
		return nil, fmt.Errorf("params: bin width must be positive")
	}

	return &BinDecoder{
		Params: p,
	}, nil
}

// DecodeAngle converts a vector of bin logits into a continuous angle in
// degrees.  Softmax is computed with the maximum logit subtracted first for
// numerical stability, which also makes the decode invariant to adding a
// constant to all logits.
func (d *BinDecoder) DecodeAngle(logits []float32) (float32, error) {

	if len(logits) != d.Params.NumBins {
		return 0, &ShapeMismatchError{Got: len(logits), Want: d.Params.NumBins}
	}

	exps := make([]float64, len(logits))

	for i, l := range logits {
		exps[i] = float64(l)
	}

	maxLogit := floats.Max(exps)

	for i := range exps {
		exps[i] = math.Exp(exps[i] - maxLogit)
	}

	sum := floats.Sum(exps)

	// probability weighted mean bin index
	meanIdx := float64(0)

	for i, e := range exps {
		meanIdx += e / sum * float64(i)
	}

	angle := float32(meanIdx)*d.Params.BinWidth + d.Params.AngleOffset

	return angle, nil
}

// DecodePose decodes the pitch and yaw bin logit vectors into a HeadPose.
// Roll is not predicted by binned gaze models and is reported as zero, the
// geometric landmark path provides roll when it is needed.
func (d *BinDecoder) DecodePose(pitchLogits, yawLogits []float32) (HeadPose, error) {

	pitch, err := d.DecodeAngle(pitchLogits)

	if err != nil {
		return HeadPose{}, fmt.Errorf("pitch: %w", err)
	}

	yaw, err := d.DecodeAngle(yawLogits)

	if err != nil {
		return HeadPose{}, fmt.Errorf("yaw: %w", err)
	}

	return HeadPose{
		Pitch: pitch,
		Yaw:   yaw,
	}, nil
}

// ShapeMismatchError indicates a logit vector length does not match the
// configured bin grid
type ShapeMismatchError struct {
	// Got is the vector length received
	Got int
	// Want is the vector length the bin grid requires
	Want int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: logit vector length %d, want %d",
		e.Got, e.Want)
}
