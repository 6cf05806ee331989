package postprocess

// BoxTensor is the raw detection output of a segmentation model laid out
// feature major as [features, candidates] where features are the 4 box
// parameters (cx, cy, w, h), the class scores and then the mask coefficients
type BoxTensor struct {
	Data       []float32
	Features   int
	Candidates int
}

// At returns feature f of candidate i
func (t BoxTensor) At(f, i int) float32 {
	return t.Data[f*t.Candidates+i]
}

// Prototypes are the low resolution mask basis grids laid out as
// [channels, height, width]
type Prototypes struct {
	Data     []float32
	Channels int
	Height   int
	Width    int
}

// Size returns the element count of a single prototype grid
func (p Prototypes) Size() int {
	return p.Height * p.Width
}

// Channel returns prototype grid c
func (p Prototypes) Channel(c int) []float32 {
	size := p.Size()
	return p.Data[c*size : (c+1)*size]
}
