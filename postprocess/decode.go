package postprocess

// DefaultSequentialLimit is the candidate count below which decoding runs on
// the calling goroutine
const DefaultSequentialLimit = 32

// DecoderParams defines the parameters used to decode the box tensor
type DecoderParams struct {
	// ClassNum is the number of classes the model was trained with
	ClassNum int
	// CoefficientNum is the number of mask coefficients per candidate
	CoefficientNum int
	// ConfidenceThreshold is the score a candidate's best class must exceed
	ConfidenceThreshold float32
	// SequentialLimit is the candidate count below which no parallel
	// dispatch is done
	SequentialLimit int
}

// Decoder turns the raw box tensor into confidence filtered candidates
type Decoder struct {
	Params  DecoderParams
	workers *Workers
}

// NewDecoder returns a decoder, workers may be nil to always decode
// sequentially
func NewDecoder(p DecoderParams, workers *Workers) *Decoder {

	if p.SequentialLimit <= 0 {
		p.SequentialLimit = DefaultSequentialLimit
	}

	return &Decoder{
		Params:  p,
		workers: workers,
	}
}

// Decode returns the candidates whose best class score exceeds the confidence
// threshold, in candidate index order
func (d *Decoder) Decode(t BoxTensor) []Candidate {

	if t.Candidates <= 0 {
		return nil
	}

	if d.workers == nil || t.Candidates < d.Params.SequentialLimit {
		return d.decodeRange(t, 0, t.Candidates)
	}

	// each chunk keeps its own survivors and they are joined in chunk order
	// so the output order matches a sequential decode
	parts := make([][]Candidate, d.workers.Size())

	chunks := d.workers.Chunks(t.Candidates, func(c, start, end int) {
		parts[c] = d.decodeRange(t, start, end)
	})

	total := 0

	for _, p := range parts[:chunks] {
		total += len(p)
	}

	if total == 0 {
		return nil
	}

	out := make([]Candidate, 0, total)

	for _, p := range parts[:chunks] {
		out = append(out, p...)
	}

	return out
}

// decodeRange decodes candidates [start,end)
func (d *Decoder) decodeRange(t BoxTensor, start, end int) []Candidate {

	var cands []Candidate

	classNum := d.Params.ClassNum
	coeffNum := d.Params.CoefficientNum

	for i := start; i < end; i++ {

		bestClass := 0
		bestScore := t.At(4, i)

		for c := 1; c < classNum; c++ {
			if s := t.At(4+c, i); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}

		if bestScore <= d.Params.ConfidenceThreshold {
			continue
		}

		cx := t.At(0, i)
		cy := t.At(1, i)
		w := t.At(2, i)
		h := t.At(3, i)

		coeffs := make([]float32, coeffNum)

		for k := 0; k < coeffNum; k++ {
			coeffs[k] = t.At(4+classNum+k, i)
		}

		cands = append(cands, Candidate{
			Class: bestClass,
			Score: bestScore,
			Box: Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
			Coefficients: coeffs,
		})
	}

	return cands
}
