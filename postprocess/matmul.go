package postprocess

import (
	"gonum.org/v1/gonum/mat"
)

// combineMasks computes the linear combination of the prototypes for every
// coefficient row as a single matrix product
//
//	[rows x channels] . [channels x height*width] -> [rows x height*width]
//
// Rows whose coefficient count does not match the prototype channels, or an
// empty prototype set, produce a nil mask.
func combineMasks(coeffs [][]float32, protos Prototypes) [][]float32 {

	out := make([][]float32, len(coeffs))
	channels := protos.Channels
	size := protos.Size()

	if channels == 0 || size == 0 || len(protos.Data) < channels*size {
		return out
	}

	// only rows with a matching coefficient count take part in the product
	valid := make([]int, 0, len(coeffs))

	for i, c := range coeffs {
		if len(c) == channels {
			valid = append(valid, i)
		}
	}

	if len(valid) == 0 {
		return out
	}

	aData := make([]float64, len(valid)*channels)

	for r, i := range valid {
		for k, v := range coeffs[i] {
			aData[r*channels+k] = float64(v)
		}
	}

	bData := make([]float64, channels*size)

	for i, v := range protos.Data[:channels*size] {
		bData[i] = float64(v)
	}

	a := mat.NewDense(len(valid), channels, aData)
	b := mat.NewDense(channels, size, bData)

	var c mat.Dense
	c.Mul(a, b)

	raw := c.RawMatrix()

	for r, i := range valid {
		row := raw.Data[r*raw.Stride : r*raw.Stride+size]
		mask := make([]float32, size)

		for j, v := range row {
			mask[j] = float32(v)
		}

		out[i] = mask
	}

	return out
}
