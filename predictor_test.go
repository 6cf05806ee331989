package yoloseg

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-yoloseg/postprocess"
	"github.com/swdee/go-yoloseg/preprocess"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRegistry(t *testing.T, ids ...string) *Registry {

	var specs []ModelSpec

	for _, id := range ids {
		specs = append(specs, testSpec(id))
	}

	reg, err := NewRegistry(specs...)
	require.NoError(t, err)

	return reg
}

func testConfig(conf float32) Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = conf
	cfg.Workers = 2
	return cfg
}

func blankFrame(t *testing.T, w, h int) Frame {
	f, err := FrameFromBytes(make([]byte, w*h*4), w, h)
	require.NoError(t, err)
	return f
}

func newTestPredictor(t *testing.T, ff *fakeFactory, cfg Config,
	opts ...Option) *Predictor {

	opts = append([]Option{
		WithRegistry(testRegistry(t, "test_seg", "other_seg")),
		WithEngineFactory(ff.factory()),
		WithLogger(quietLogger()),
	}, opts...)

	p, err := New("test_seg", cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { p.Close() })

	return p
}

func TestPredictEndToEnd(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}

	var (
		mu      sync.Mutex
		results []postprocess.PackedResult
	)

	p := newTestPredictor(t, ff, testConfig(0.5), WithCallback(func(res postprocess.PackedResult) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640),
		PredictOptions{TimestampMs: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.ID)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)

	require.Equal(t, int32(1), res.DetectionCount)
	assert.Equal(t, []int32{1}, res.ClassIndex)
	assert.InDelta(t, 0.9, res.Scores[0], 1e-6)
	assert.Equal(t, []byte("dog\x00"), res.ClassNames)
	assert.Equal(t, uint64(42), res.TimestampMs)

	require.Len(t, res.Boxes, 4)
	assert.InDelta(t, 75, res.Boxes[0], 1)
	assert.InDelta(t, 75, res.Boxes[1], 1)
	assert.InDelta(t, 125, res.Boxes[2], 1)
	assert.InDelta(t, 125, res.Boxes[3], 1)

	assert.Greater(t, res.PointCount, int32(0))
	assert.Equal(t, postprocess.PolygonEnd, res.ContourIndex[len(res.ContourIndex)-1])

	// outline stays within the box
	for i := 0; i < len(res.ContourPoints); i++ {
		assert.GreaterOrEqual(t, res.ContourPoints[i], int32(74))
		assert.LessOrEqual(t, res.ContourPoints[i], int32(126))
	}

	assert.InDelta(t, 100, res.Centroids[0], 1)
	assert.InDelta(t, 100, res.Centroids[1], 1)

	dets := task.Detections()
	require.Len(t, dets, 1)
	assert.Equal(t, "dog", dets[0].ClassName)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, res, results[0])
}

func TestPredictPostScale(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}
	p := newTestPredictor(t, ff, testConfig(0.5))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640),
		PredictOptions{TimestampMs: 1, ScaleX: 2, ScaleY: 0.5})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 150, res.Boxes[0], 1)
	assert.InDelta(t, 37.5, res.Boxes[1], 1)
	assert.InDelta(t, 250, res.Boxes[2], 1)
	assert.InDelta(t, 62.5, res.Boxes[3], 1)
}

func TestPredictFitMapping(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}

	cfg := testConfig(0.5)
	cfg.ScalePolicy = preprocess.ScaleFit

	p := newTestPredictor(t, ff, cfg)

	// 1280x640 letterboxed into 640x640 has a scale of 2 and 160 rows of
	// padding above the image
	task, err := p.Predict(context.Background(), blankFrame(t, 1280, 640),
		PredictOptions{TimestampMs: 1})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 150, res.Boxes[0], 1)
	assert.InDelta(t, -170, res.Boxes[1], 1)
	assert.InDelta(t, 250, res.Boxes[2], 1)
	assert.InDelta(t, -70, res.Boxes[3], 1)
}

func TestPredictorIsolation(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}

	low := newTestPredictor(t, ff, testConfig(0.5))
	high := newTestPredictor(t, ff, testConfig(0.95))

	frame := blankFrame(t, 640, 640)

	lt, err := low.Predict(context.Background(), frame, PredictOptions{})
	require.NoError(t, err)

	ht, err := high.Predict(context.Background(), frame, PredictOptions{})
	require.NoError(t, err)

	res, err := lt.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.DetectionCount)

	_, err = ht.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoDetections)

	// the first predictor is unaffected by the second
	lt, err = low.Predict(context.Background(), frame, PredictOptions{})
	require.NoError(t, err)

	res, err = lt.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), res.DetectionCount)

	// IDs are per predictor
	assert.Equal(t, int64(2), lt.ID)
	assert.Equal(t, int64(1), ht.ID)
}

func TestPredictEmptyFrames(t *testing.T) {

	calls := 0
	var mu sync.Mutex

	cb := func(res postprocess.PackedResult) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.Equal(t, int32(0), res.DetectionCount)
	}

	ff := &fakeFactory{out: singleDetection(0.1)}

	// dropped by default
	p := newTestPredictor(t, ff, testConfig(0.5), WithCallback(cb))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoDetections)

	// emitted when configured
	cfg := testConfig(0.5)
	cfg.EmitEmptyFrames = true
	p = newTestPredictor(t, ff, cfg, WithCallback(cb))

	task, err = p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), res.DetectionCount)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestPredictDefaultTimestamp(t *testing.T) {

	now := time.UnixMilli(1700000000123)
	ff := &fakeFactory{out: singleDetection(0.9)}

	p := newTestPredictor(t, ff, testConfig(0.5), withClock(func() time.Time {
		return now
	}))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000123), res.TimestampMs)
}

func TestPredictQueueFull(t *testing.T) {

	ff := &fakeFactory{
		out:     singleDetection(0.9),
		started: make(chan struct{}, 8),
		block:   make(chan struct{}),
	}

	cfg := testConfig(0.5)
	cfg.MaxInFlight = 1
	cfg.QueueSize = 1

	p := newTestPredictor(t, ff, cfg)
	frame := blankFrame(t, 640, 640)

	first, err := p.Predict(context.Background(), frame, PredictOptions{})
	require.NoError(t, err)

	// the only session is now busy
	<-ff.started

	second, err := p.Predict(context.Background(), frame, PredictOptions{})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), frame, PredictOptions{})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(ff.block)

	for _, task := range []*Task{first, second} {
		_, err := task.Wait(context.Background())
		assert.NoError(t, err)
	}
}

func TestPredictCanceled(t *testing.T) {

	ff := &fakeFactory{
		out:     singleDetection(0.9),
		started: make(chan struct{}, 8),
		block:   make(chan struct{}),
	}

	called := make(chan int64, 4)

	cfg := testConfig(0.5)
	cfg.MaxInFlight = 1

	p := newTestPredictor(t, ff, cfg, WithCallback(func(res postprocess.PackedResult) {
		called <- int64(res.TimestampMs)
	}))

	frame := blankFrame(t, 640, 640)

	first, err := p.Predict(context.Background(), frame, PredictOptions{TimestampMs: 1})
	require.NoError(t, err)
	<-ff.started

	ctx, cancel := context.WithCancel(context.Background())

	queued, err := p.Predict(ctx, frame, PredictOptions{TimestampMs: 2})
	require.NoError(t, err)

	cancel()
	close(ff.block)

	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)

	_, err = first.Wait(context.Background())
	require.NoError(t, err)

	// only the first frame reached the callback
	assert.Equal(t, int64(1), <-called)

	select {
	case ts := <-called:
		t.Fatalf("unexpected callback for frame %d", ts)
	default:
	}
}

func TestPredictWaitContext(t *testing.T) {

	ff := &fakeFactory{
		out:   singleDetection(0.9),
		block: make(chan struct{}),
	}

	p := newTestPredictor(t, ff, testConfig(0.5))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, task.Detections())

	close(ff.block)

	_, err = task.Wait(context.Background())
	assert.NoError(t, err)
}

func TestPredictPrototypeMismatch(t *testing.T) {

	good := singleDetection(0.9)

	// one prototype channel for a two coefficient model
	out, err := NewOutputs(good.Boxes.Data, []int64{1, 8, 1},
		make([]float32, 160*160), []int64{1, 1, 160, 160})
	require.NoError(t, err)

	var calls atomic.Int32

	ff := &fakeFactory{out: out}
	p := newTestPredictor(t, ff, testConfig(0.5), WithCallback(func(res postprocess.PackedResult) {
		calls.Add(1)
	}))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)

	require.Equal(t, int32(1), res.DetectionCount)
	assert.Equal(t, int32(0), res.PointCount)
	assert.Equal(t, []int32{0, postprocess.PolygonEnd}, res.ContourIndex)
	assert.InDelta(t, 75, res.Boxes[0], 1)

	// box center stands in for the mask centroid
	assert.InDelta(t, 100, res.Centroids[0], 1)
	assert.InDelta(t, 100, res.Centroids[1], 1)

	assert.Equal(t, int32(1), calls.Load())
}

func TestPredictCallbackOwnsResult(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}
	p := newTestPredictor(t, ff, testConfig(0.5), WithCallback(func(res postprocess.PackedResult) {
		res.Boxes[0] = -1
		res.ClassNames[0] = 'x'
	}))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	res, err := task.Wait(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 75, res.Boxes[0], 1)
	assert.Equal(t, []byte("dog\x00"), res.ClassNames)
}

func TestPredictEngineError(t *testing.T) {

	ff := &fakeFactory{err: errors.New("boom")}
	p := newTestPredictor(t, ff, testConfig(0.5))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestPredictShapeMismatch(t *testing.T) {

	out, err := NewOutputs(make([]float32, 9), []int64{1, 9, 1},
		make([]float32, 2*4*4), []int64{1, 2, 4, 4})
	require.NoError(t, err)

	ff := &fakeFactory{out: out}
	p := newTestPredictor(t, ff, testConfig(0.5))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestReinit(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}

	cfg := testConfig(0.5)
	cfg.MaxInFlight = 2

	p := newTestPredictor(t, ff, cfg)
	assert.Equal(t, int32(2), ff.opened.Load())

	// failures leave the current model in service
	err := p.Reinit("missing", cfg)
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, "test_seg", p.Spec().ID)

	high := testConfig(0.95)
	high.MaxInFlight = 2

	require.NoError(t, p.Reinit("other_seg", high))
	assert.Equal(t, "other_seg", p.Spec().ID)
	assert.Equal(t, float32(0.95), p.Config().ConfidenceThreshold)

	// previous sessions were released
	assert.Equal(t, int32(2), ff.closed.Load())

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)

	_, err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoDetections)
}

func TestReinitWaitsForInFlight(t *testing.T) {

	ff := &fakeFactory{
		out:     singleDetection(0.9),
		started: make(chan struct{}, 8),
		block:   make(chan struct{}),
	}

	p := newTestPredictor(t, ff, testConfig(0.5))

	task, err := p.Predict(context.Background(), blankFrame(t, 640, 640), PredictOptions{})
	require.NoError(t, err)
	<-ff.started

	done := make(chan error, 1)

	go func() {
		done <- p.Reinit("other_seg", testConfig(0.5))
	}()

	select {
	case <-done:
		t.Fatal("reinit completed while a frame was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(ff.block)

	_, err = task.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, "other_seg", p.Spec().ID)
}

func TestClose(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}

	p, err := New("test_seg", testConfig(0.5),
		WithRegistry(testRegistry(t, "test_seg")),
		WithEngineFactory(ff.factory()),
		WithLogger(quietLogger()))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Equal(t, ff.opened.Load(), ff.closed.Load())

	_, err = p.Predict(context.Background(), blankFrame(t, 8, 8), PredictOptions{})
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, p.Reinit("test_seg", testConfig(0.5)), ErrClosed)
}

func TestNewErrors(t *testing.T) {

	reg := testRegistry(t, "test_seg")
	ff := &fakeFactory{}

	_, err := New("test_seg", testConfig(0.5), WithRegistry(reg))
	assert.ErrorIs(t, err, ErrNoEngineFactory)

	_, err = New("nope", testConfig(0.5), WithRegistry(reg),
		WithEngineFactory(ff.factory()))
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = New("test_seg", testConfig(2), WithRegistry(reg),
		WithEngineFactory(ff.factory()))
	assert.Error(t, err)

	ff.openErr = errors.New("no device")
	_, err = New("test_seg", testConfig(0.5), WithRegistry(reg),
		WithEngineFactory(ff.factory()))
	assert.ErrorContains(t, err, "no device")
}

func TestInitialize(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}
	opts := []Option{
		WithRegistry(testRegistry(t, "test_seg")),
		WithEngineFactory(ff.factory()),
		WithLogger(quietLogger()),
	}

	p, ok := Initialize("test_seg", 0.3, 0.5, "letterbox", opts...)
	require.True(t, ok)
	defer p.Close()

	assert.Equal(t, preprocess.ScaleFit, p.Config().ScalePolicy)
	assert.Equal(t, float32(0.3), p.Config().ConfidenceThreshold)

	_, ok = Initialize("test_seg", 0.3, 0.5, "sideways", opts...)
	assert.False(t, ok)

	_, ok = Initialize("unknown", 0.3, 0.5, "fill", opts...)
	assert.False(t, ok)
}

func TestSetCallback(t *testing.T) {

	ff := &fakeFactory{out: singleDetection(0.9)}
	p := newTestPredictor(t, ff, testConfig(0.5))

	got := make(chan postprocess.PackedResult, 1)
	p.SetCallback(func(res postprocess.PackedResult) { got <- res })

	_, err := p.Predict(context.Background(), blankFrame(t, 640, 640),
		PredictOptions{TimestampMs: 7})
	require.NoError(t, err)

	select {
	case res := <-got:
		assert.Equal(t, uint64(7), res.TimestampMs)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}
}
