package postprocess

// testCandidate describes one column of a synthetic box tensor
type testCandidate struct {
	cx, cy, w, h float32
	scores       []float32
	coeffs       []float32
}

// buildTensor lays candidates out feature major
func buildTensor(classes, coeffs int, cands []testCandidate) BoxTensor {

	features := 4 + classes + coeffs
	n := len(cands)
	data := make([]float32, features*n)

	for i, c := range cands {
		data[0*n+i] = c.cx
		data[1*n+i] = c.cy
		data[2*n+i] = c.w
		data[3*n+i] = c.h

		for k, s := range c.scores {
			data[(4+k)*n+i] = s
		}

		for k, v := range c.coeffs {
			data[(4+classes+k)*n+i] = v
		}
	}

	return BoxTensor{Data: data, Features: features, Candidates: n}
}
