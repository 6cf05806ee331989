package yoloseg

import (
	"fmt"

	"github.com/swdee/go-yoloseg/postprocess"
)

// Outputs are the two output tensors of a segmentation model for one frame
type Outputs struct {
	Boxes  postprocess.BoxTensor
	Protos postprocess.Prototypes
}

// NewOutputs wraps raw float32 output buffers after checking them against
// their shapes.  The box shape is [1, features, candidates] and the prototype
// shape [1, channels, height, width], the leading batch dimension is optional.
// An empty prototype tensor is accepted and yields detections without masks.
// The buffers are referenced, not copied.
func NewOutputs(boxes []float32, boxShape []int64, protos []float32,
	protoShape []int64) (*Outputs, error) {

	bs, err := trimBatch(boxShape, 2, false)

	if err != nil {
		return nil, fmt.Errorf("box tensor: %w", err)
	}

	ps, err := trimBatch(protoShape, 3, true)

	if err != nil {
		return nil, fmt.Errorf("prototype tensor: %w", err)
	}

	if want := bs[0] * bs[1]; len(boxes) != want {
		return nil, fmt.Errorf("%w: box tensor has %d values, shape %v needs %d",
			ErrShapeMismatch, len(boxes), boxShape, want)
	}

	if want := ps[0] * ps[1] * ps[2]; len(protos) != want {
		return nil, fmt.Errorf("%w: prototype tensor has %d values, shape %v needs %d",
			ErrShapeMismatch, len(protos), protoShape, want)
	}

	return &Outputs{
		Boxes: postprocess.BoxTensor{
			Data:       boxes,
			Features:   bs[0],
			Candidates: bs[1],
		},
		Protos: postprocess.Prototypes{
			Data:     protos,
			Channels: ps[0],
			Height:   ps[1],
			Width:    ps[2],
		},
	}, nil
}

// NewOutputsFloat16 is NewOutputs for half precision buffers, values are
// widened into new float32 buffers
func NewOutputsFloat16(boxes []uint16, boxShape []int64, protos []uint16,
	protoShape []int64) (*Outputs, error) {

	return NewOutputs(Float16ToFloat32(nil, boxes), boxShape,
		Float16ToFloat32(nil, protos), protoShape)
}

// Check validates the box tensor against the model layout.  Prototype
// mismatches are not an error, they leave the affected masks empty.
func (o *Outputs) Check(spec ModelSpec) error {

	if o.Boxes.Features != spec.Features() {
		return fmt.Errorf("%w: box tensor has %d features, model %s needs %d",
			ErrShapeMismatch, o.Boxes.Features, spec.ID, spec.Features())
	}

	return nil
}

// trimBatch drops a leading batch dimension of 1 and checks the remaining
// rank and dimensions, zero sized dimensions are only accepted with allowEmpty
func trimBatch(shape []int64, rank int, allowEmpty bool) ([]int, error) {

	if len(shape) == rank+1 {
		if shape[0] != 1 {
			return nil, fmt.Errorf("%w: batch size %d, only 1 is supported",
				ErrShapeMismatch, shape[0])
		}

		shape = shape[1:]
	}

	if len(shape) != rank {
		return nil, fmt.Errorf("%w: rank %d, expected %d", ErrShapeMismatch,
			len(shape), rank)
	}

	dims := make([]int, rank)

	for i, d := range shape {
		if d < 0 || (d == 0 && !allowEmpty) {
			return nil, fmt.Errorf("%w: dimension %d is %d", ErrShapeMismatch, i, d)
		}

		dims[i] = int(d)
	}

	return dims, nil
}
