package detect

import (
	"fmt"
	"sort"
)

// Decoder turns a flat anchor-based model output tensor into labeled, scored,
// non-overlapping bounding boxes
type Decoder struct {
	// Params are the model configuration parameters
	Params Params
}

// Params defines the struct containing the Decoder parameters to use for
// post processing operations
type Params struct {
	// Classes is the class table of the model.  The index of each entry
	// corresponds to the class index in the output tensor, so its length
	// must equal the number of per-anchor class scores
	Classes []Label
	// ConfThreshold is the minimum probability score required for a bounding
	// box region to be considered for processing
	ConfThreshold float32
	// IoUThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes for both to be kept
	IoUThreshold float32
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
}

// DefaultParams returns an instance of Params configured with default values
// for the proctoring detection model featuring:
// - Object Classes: person, phone, book, paper, laptop, monitor
// - Confidence Threshold: 0.40
// - IoU Threshold: 0.45
// - Maximum Object Number: 32
func DefaultParams() Params {
	return Params{
		Classes: []Label{
			LabelPerson, LabelPhone, LabelBook,
			LabelPaper, LabelLaptop, LabelMonitor,
		},
		ConfThreshold:   0.40,
		IoUThreshold:    0.45,
		MaxObjectNumber: 32,
	}
}

// Validate checks the parameters are usable
func (p Params) Validate() error {

	if len(p.Classes) == 0 {
		return fmt.Errorf("params: class table is empty")
	}

	if p.ConfThreshold <= 0 || p.ConfThreshold > 1 {
		return fmt.Errorf("params: confidence threshold %f outside (0, 1]",
			p.ConfThreshold)
	}

	if p.IoUThreshold <= 0 || p.IoUThreshold > 1 {
		return fmt.Errorf("params: IoU threshold %f outside (0, 1]",
			p.IoUThreshold)
	}

	if p.MaxObjectNumber <= 0 {
		return fmt.Errorf("params: max object number must be positive")
	}

	return nil
}

// NewDecoder returns an instance of the detection Decoder
func NewDecoder(p Params) (*Decoder, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &Decoder{
		Params: p,
	}, nil
}

// SetParams replaces the decoder parameters, rejecting invalid values while
// leaving the current parameters in place.  Changing the class table changes
// the expected tensor stride on the next decode.
func (d *Decoder) SetParams(p Params) error {

	if err := p.Validate(); err != nil {
		return err
	}

	d.Params = p
	return nil
}

// Box are the corner coordinates of the bounding box of a detected object in
// source frame space
type Box struct {
	X1, Y1 float32
	X2, Y2 float32
}

// Area returns the area of the box, zero for degenerate boxes
func (b Box) Area() float32 {

	w := b.X2 - b.X1
	h := b.Y2 - b.Y1

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// Object defines the attributes of a single object detected
type Object struct {
	// Label is the class of the detected object
	Label Label
	// Confidence is the probability score of the object detected
	Confidence float32
	// Box are the bounding box dimensions of the object location
	Box Box
}

// ShapeMismatchError indicates the tensor buffer length does not match the
// layout implied by the anchor count and class table
type ShapeMismatchError struct {
	// Got is the buffer length received
	Got int
	// Want is the buffer length the layout requires
	Want int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: buffer length %d, want %d", e.Got, e.Want)
}

// Decode takes the flat model output buffer laid out as
// [cx, cy, w, h, score_0..score_C-1] per anchor and returns the detected
// objects after confidence filtering and non-maximum suppression.  The
// ratioX/ratioY values map model space coordinates back to source frame
// coordinates.
//
// The decode is deterministic for identical input: candidate ordering is by
// descending score with ties kept in original anchor order.
func (d *Decoder) Decode(buf []float32, anchors int, ratioX, ratioY float32) ([]Object, error) {

	stride := 4 + len(d.Params.Classes)
	want := stride * anchors

	if anchors <= 0 || len(buf) != want {
		return nil, &ShapeMismatchError{Got: len(buf), Want: want}
	}

	if ratioX <= 0 || ratioY <= 0 {
		return nil, fmt.Errorf("scale ratios must be positive, got %f, %f",
			ratioX, ratioY)
	}

	candidates := d.filterAnchors(buf, anchors, stride, ratioX, ratioY)

	if len(candidates) == 0 {
		// no object detected
		return nil, nil
	}

	// sort by descending score, stable so equal scores keep anchor order
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	keep := nms(candidates, d.Params.IoUThreshold)

	if len(keep) > d.Params.MaxObjectNumber {
		keep = keep[:d.Params.MaxObjectNumber]
	}

	return keep, nil
}

// filterAnchors scans each anchor taking the arg-max class score and keeps
// boxes whose score passes the confidence threshold, converting center/size
// to corner coordinates scaled into source frame space
func (d *Decoder) filterAnchors(buf []float32, anchors, stride int,
	ratioX, ratioY float32) []Object {

	var candidates []Object

	for a := 0; a < anchors; a++ {

		off := a * stride

		maxClassProb := buf[off+4]
		maxClassID := 0

		for k := 1; k < len(d.Params.Classes); k++ {
			prob := buf[off+4+k]
			if prob > maxClassProb {
				maxClassID = k
				maxClassProb = prob
			}
		}

		if maxClassProb < d.Params.ConfThreshold {
			continue
		}

		cx := buf[off]
		cy := buf[off+1]
		w := buf[off+2]
		h := buf[off+3]

		if w <= 0 || h <= 0 {
			// degenerate box, nothing to suppress against
			continue
		}

		candidates = append(candidates, Object{
			Label:      d.Params.Classes[maxClassID],
			Confidence: maxClassProb,
			Box: Box{
				X1: (cx - w/2) * ratioX,
				Y1: (cy - h/2) * ratioY,
				X2: (cx + w/2) * ratioX,
				Y2: (cy + h/2) * ratioY,
			},
		})
	}

	return candidates
}

// nms implements a greedy Non-Maximum Suppression (NMS) algorithm over the
// score-sorted candidates, suppressing any box whose IoU with an already
// selected box exceeds the threshold
func nms(candidates []Object, threshold float32) []Object {

	suppressed := make([]bool, len(candidates))
	keep := make([]Object, 0, len(candidates))

	for i := 0; i < len(candidates); i++ {

		if suppressed[i] {
			continue
		}

		keep = append(keep, candidates[i])

		for j := i + 1; j < len(candidates); j++ {

			if suppressed[j] {
				continue
			}

			if IoU(candidates[i].Box, candidates[j].Box) > threshold {
				suppressed[j] = true
			}
		}
	}

	return keep
}

// IoU works out the Intersection over Union value of two boxes.  Degenerate
// zero area boxes always yield 0
func IoU(a, b Box) float32 {

	w := minf(a.X2, b.X2) - maxf(a.X1, b.X1)
	h := minf(a.Y2, b.Y2) - maxf(a.Y1, b.Y1)

	if w <= 0 || h <= 0 {
		return 0
	}

	intersection := w * h
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// CountLabel returns the number of objects carrying the given label
func CountLabel(objects []Object, label Label) int {

	count := 0

	for _, obj := range objects {
		if obj.Label == label {
			count++
		}
	}

	return count
}

// FirstLabel returns the highest scoring object carrying the given label.
// Objects are already score ordered after Decode so the first hit wins.
func FirstLabel(objects []Object, label Label) (Object, bool) {

	for _, obj := range objects {
		if obj.Label == label {
			return obj, true
		}
	}

	return Object{}, false
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
