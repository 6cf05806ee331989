package yoloseg

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/swdee/go-yoloseg/preprocess"
)

// testSpec is a small two class model with 640x640 input and 160x160 masks
func testSpec(id string) ModelSpec {
	return ModelSpec{
		ID:               id,
		InputWidth:       640,
		InputHeight:      640,
		MaskWidth:        160,
		MaskHeight:       160,
		MaskCoefficients: 2,
		Classes:          []string{"cat", "dog"},
		Precision:        Float32,
	}
}

// singleDetection returns outputs holding one candidate of class 1 scored
// score with box cx=100,cy=100,w=50,h=50 and coefficients [1,0].  The first
// prototype is positive over model pixels 60..140, negative elsewhere.
func singleDetection(score float32) *Outputs {

	boxes := []float32{
		100, 100, 50, 50, // cx, cy, w, h
		0.1, score, // class scores
		1, 0, // coefficients
	}

	const grid = 160
	protos := make([]float32, 2*grid*grid)

	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			v := float32(-8)

			if x >= 15 && x < 35 && y >= 15 && y < 35 {
				v = 8
			}

			protos[y*grid+x] = v
		}
	}

	out, err := NewOutputs(boxes, []int64{1, 8, 1}, protos, []int64{1, 2, grid, grid})

	if err != nil {
		panic(err)
	}

	return out
}

// fakeEngine returns fixed outputs
type fakeEngine struct {
	out    *Outputs
	err    error
	policy preprocess.ScalePolicy
	// started receives once Infer is entered, block holds Infer until closed
	started chan struct{}
	block   chan struct{}
	calls   *atomic.Int32
	closed  *atomic.Int32
}

func (f *fakeEngine) Infer(ctx context.Context, img image.Image) (*Outputs, error) {

	f.calls.Add(1)

	if f.started != nil {
		f.started <- struct{}{}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.out, f.err
}

func (f *fakeEngine) Close() error {
	f.closed.Add(1)
	return nil
}

// fakeFactory builds fakeEngines sharing counters
type fakeFactory struct {
	out     *Outputs
	err     error
	openErr error
	started chan struct{}
	block   chan struct{}
	opened  atomic.Int32
	calls   atomic.Int32
	closed  atomic.Int32
}

func (ff *fakeFactory) factory() EngineFactory {
	return func(spec ModelSpec, policy preprocess.ScalePolicy) (Engine, error) {

		if ff.openErr != nil {
			return nil, ff.openErr
		}

		ff.opened.Add(1)

		return &fakeEngine{
			out:     ff.out,
			err:     ff.err,
			policy:  policy,
			started: ff.started,
			block:   ff.block,
			calls:   &ff.calls,
			closed:  &ff.closed,
		}, nil
	}
}
