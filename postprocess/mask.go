package postprocess

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"gocv.io/x/gocv"
)

const (
	// DefaultMaskThreshold is the activated mask value at or below which a
	// pixel is treated as background
	DefaultMaskThreshold = 0.5

	// buffers
	bufCrop = "crop"
)

// MaskParams defines the parameters used for mask reconstruction
type MaskParams struct {
	// ModelWidth and ModelHeight are the model input resolution masks are
	// upsampled to
	ModelWidth  int
	ModelHeight int
	// Threshold is the activated value at or below which pixels are zeroed
	Threshold float32
}

// InstanceMask is a thresholded mask cropped to its detection box.  X and Y
// are the offset of the crop in model input coordinates.
type InstanceMask struct {
	Data   []float32
	X, Y   int
	Width  int
	Height int
}

// Empty reports if the mask holds no pixels
func (m InstanceMask) Empty() bool {
	return m.Width <= 0 || m.Height <= 0 || len(m.Data) == 0
}

// MaskReconstructor builds instance masks from the shared prototypes
type MaskReconstructor struct {
	Params  MaskParams
	bufPool *bufferPool[float32]
}

// NewMaskReconstructor returns a mask reconstructor for the given model
// input resolution
func NewMaskReconstructor(p MaskParams) *MaskReconstructor {

	if p.Threshold <= 0 {
		p.Threshold = DefaultMaskThreshold
	}

	r := &MaskReconstructor{
		Params:  p,
		bufPool: newBufferPool[float32](),
	}

	r.bufPool.Create(bufCrop, p.ModelWidth*p.ModelHeight)

	return r
}

// Combine computes the raw (pre activation) mask of each detection as the
// coefficient weighted sum of the prototypes.  The result is indexed like
// dets, a nil entry means no mask could be built for that detection.
func (r *MaskReconstructor) Combine(dets []Candidate, protos Prototypes) [][]float32 {

	coeffs := make([][]float32, len(dets))

	for i, d := range dets {
		coeffs[i] = d.Coefficients
	}

	return combineMasks(coeffs, protos)
}

// Build activates and upsamples a combined mask to the model resolution, then
// crops it to the detection box and thresholds it.  The returned mask's
// buffer must be handed back with Release once no longer needed.
func (r *MaskReconstructor) Build(combined []float32, protos Prototypes,
	box Box) (InstanceMask, error) {

	x1, y1, x2, y2 := r.clampBox(box)

	out := InstanceMask{X: x1, Y: y1}

	if len(combined) == 0 || x2 <= x1 || y2 <= y1 {
		return out, nil
	}

	if len(combined) != protos.Size() {
		return out, fmt.Errorf("combined mask has %d values, expected %d",
			len(combined), protos.Size())
	}

	src := gocv.NewMatWithSize(protos.Height, protos.Width, gocv.MatTypeCV32F)
	defer src.Close()

	srcData, err := src.DataPtrFloat32()

	if err != nil {
		return out, fmt.Errorf("error getting data pointer for mask: %w", err)
	}

	for i, v := range combined {
		srcData[i] = sigmoid(v)
	}

	modelW := r.Params.ModelWidth
	modelH := r.Params.ModelHeight

	upsampled := gocv.NewMat()
	defer upsampled.Close()

	gocv.Resize(src, &upsampled, image.Pt(modelW, modelH), 0, 0,
		gocv.InterpolationLinear)

	upData, err := upsampled.DataPtrFloat32()

	if err != nil {
		return out, fmt.Errorf("error getting data pointer for upsampled mask: %w", err)
	}

	// physical crop, only the box region is kept
	w := x2 - x1
	h := y2 - y1
	crop := r.bufPool.Get(bufCrop, w*h)

	for yy := 0; yy < h; yy++ {
		base := (y1+yy)*modelW + x1
		copy(crop[yy*w:(yy+1)*w], upData[base:base+w])
	}

	ThresholdMask(crop, r.Params.Threshold)

	out.Data = crop
	out.Width = w
	out.Height = h

	return out, nil
}

// Release returns the mask buffer to the pool
func (r *MaskReconstructor) Release(m InstanceMask) {
	if m.Data != nil {
		r.bufPool.Put(bufCrop, m.Data)
	}
}

// clampBox converts the box to integer pixel bounds limited to the model
// input dimensions
func (r *MaskReconstructor) clampBox(box Box) (x1, y1, x2, y2 int) {

	w := r.Params.ModelWidth
	h := r.Params.ModelHeight

	x1 = clampInt(int(math32.Floor(box.X1)), 0, w)
	y1 = clampInt(int(math32.Floor(box.Y1)), 0, h)
	x2 = clampInt(int(math32.Ceil(box.X2)), 0, w)
	y2 = clampInt(int(math32.Ceil(box.Y2)), 0, h)

	return x1, y1, x2, y2
}

// ThresholdMask zeroes every value at or below cutoff, values above are left
// unchanged
func ThresholdMask(buf []float32, cutoff float32) {
	for i, v := range buf {
		if v <= cutoff {
			buf[i] = 0
		}
	}
}
