package yoloseg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-yoloseg/postprocess"
	"github.com/swdee/go-yoloseg/postprocess/result"
	"github.com/swdee/go-yoloseg/preprocess"
)

// Callback receives the packed detections of each completed frame.  The
// result is owned by the callback.
type Callback func(res postprocess.PackedResult)

// PredictOptions are the per frame options of Predict
type PredictOptions struct {
	// TimestampMs is echoed in the result, 0 uses the current time
	TimestampMs uint64
	// ScaleX and ScaleY are applied to output coordinates after mapping them
	// back onto the frame, 0 means 1
	ScaleX float64
	ScaleY float64
}

// Option configures a Predictor
type Option func(p *Predictor)

// WithRegistry looks models up in reg instead of the builtin models
func WithRegistry(reg *Registry) Option {
	return func(p *Predictor) {
		p.registry = reg
	}
}

// WithEngineFactory sets the factory used to open engine sessions
func WithEngineFactory(f EngineFactory) Option {
	return func(p *Predictor) {
		p.factory = f
	}
}

// WithCallback sets the callback invoked for each completed frame
func WithCallback(cb Callback) Option {
	return func(p *Predictor) {
		p.callback = cb
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(p *Predictor) {
		p.logger = log
	}
}

// WithContourTracer replaces the OpenCV contour tracer
func WithContourTracer(t postprocess.ContourTracer) Option {
	return func(p *Predictor) {
		p.tracer = t
	}
}

// withClock overrides the time source
func withClock(now func() time.Time) Option {
	return func(p *Predictor) {
		p.now = now
	}
}

// Predictor runs instance segmentation on frames submitted with Predict.
// Frames are queued and processed asynchronously by up to MaxInFlight
// goroutines, each holding its own engine session.  Predictors share no
// state with each other.
type Predictor struct {
	// mu is held shared by every frame being processed and exclusively
	// while swapping the model
	mu    sync.RWMutex
	model *model

	registry *Registry
	factory  EngineFactory
	tracer   postprocess.ContourTracer
	logger   *logrus.Logger
	log      *logrus.Entry
	now      func() time.Time

	cbMu     sync.RWMutex
	callback Callback

	ids   *result.IDGenerator
	queue chan *Task
	quit  chan struct{}
	wg    sync.WaitGroup

	// sendMu orders Predict against Close
	sendMu sync.Mutex
	closed bool
}

// New creates a Predictor for the model registered under modelID
func New(modelID string, cfg Config, opts ...Option) (*Predictor, error) {

	p := &Predictor{
		ids:  result.NewIDGenerator(),
		quit: make(chan struct{}),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.registry == nil {
		p.registry = DefaultRegistry()
	}

	if p.logger == nil {
		p.logger = logrus.StandardLogger()
	}

	if p.factory == nil {
		return nil, ErrNoEngineFactory
	}

	m, err := p.load(modelID, cfg)

	if err != nil {
		return nil, err
	}

	p.model = m
	p.log = p.logger.WithField("model", modelID)
	p.queue = make(chan *Task, m.cfg.QueueSize)

	for i := 0; i < m.cfg.MaxInFlight; i++ {
		p.wg.Add(1)
		go p.dispatch()
	}

	p.log.WithFields(logrus.Fields{
		"inFlight": m.cfg.MaxInFlight,
		"workers":  m.cfg.Workers,
		"policy":   m.cfg.ScalePolicy,
	}).Info("Predictor initialized")

	return p, nil
}

// Initialize creates a Predictor with the default configuration overridden
// by the given thresholds and scale policy name.  Failures are logged and
// reported as false.
func Initialize(modelID string, confThreshold, iouThreshold float32,
	policy string, opts ...Option) (*Predictor, bool) {

	log := logrus.StandardLogger()
	tmp := &Predictor{}

	for _, opt := range opts {
		opt(tmp)
	}

	if tmp.logger != nil {
		log = tmp.logger
	}

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = confThreshold
	cfg.IoUThreshold = iouThreshold

	sp, err := preprocess.ParseScalePolicy(policy)

	if err != nil {
		log.WithError(err).WithField("model", modelID).Error("Predictor initialization failed")
		return nil, false
	}

	cfg.ScalePolicy = sp

	p, err := New(modelID, cfg, opts...)

	if err != nil {
		log.WithError(err).WithField("model", modelID).Error("Predictor initialization failed")
		return nil, false
	}

	return p, true
}

// load validates the configuration and builds the model without touching the
// one in service
func (p *Predictor) load(modelID string, cfg Config) (*model, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	spec, err := p.registry.Lookup(modelID)

	if err != nil {
		return nil, err
	}

	m, err := newModel(spec, cfg.withDefaults(), p.factory, p.tracer)

	if err != nil {
		return nil, fmt.Errorf("error loading model %s: %w", modelID, err)
	}

	return m, nil
}

// SetCallback replaces the callback invoked for completed frames
func (p *Predictor) SetCallback(cb Callback) {
	p.cbMu.Lock()
	p.callback = cb
	p.cbMu.Unlock()
}

func (p *Predictor) getCallback() Callback {
	p.cbMu.RLock()
	defer p.cbMu.RUnlock()
	return p.callback
}

func (p *Predictor) entry() *logrus.Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.log
}

// Spec returns the spec of the model in service
func (p *Predictor) Spec() ModelSpec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model.spec
}

// Config returns the configuration of the model in service
func (p *Predictor) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model.cfg
}

// Predict queues the frame for processing and returns immediately.  The
// frame is dropped if ctx ends before its result is delivered.
// ErrQueueFull is returned when the queue has no free slot.
func (p *Predictor) Predict(ctx context.Context, frame Frame,
	opts PredictOptions) (*Task, error) {

	if frame.Image() == nil {
		return nil, errors.New("empty frame")
	}

	ts := opts.TimestampMs

	if ts == 0 {
		ts = uint64(p.now().UnixMilli())
	}

	t := &Task{
		ID:          p.ids.GetNext(),
		TimestampMs: ts,
		ctx:         ctx,
		frame:       frame,
		opts:        opts,
		done:        make(chan struct{}),
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	select {
	case p.queue <- t:
		return t, nil
	default:
		return nil, ErrQueueFull
	}
}

// dispatch processes queued frames until the predictor is closed
func (p *Predictor) dispatch() {

	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case t := <-p.queue:
			p.run(t)
		}
	}
}

// run processes a single frame and completes its task
func (p *Predictor) run(t *Task) {

	log := p.entry().WithFields(logrus.Fields{
		"request":   t.ID,
		"timestamp": t.TimestampMs,
	})

	res, dets, err := p.infer(t, log)

	if err == nil && t.ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ErrCanceled, t.ctx.Err())
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrNoDetections):
			log.Debug("No detections, frame dropped")
		case errors.Is(err, ErrCanceled):
			log.Debug("Frame canceled")
		default:
			log.WithError(err).Warn("Frame dropped")
		}

		t.finish(postprocess.PackedResult{}, nil, err)
		return
	}

	// invoked without holding the model lock so the callback may Reinit, the
	// callback owns its copy
	if cb := p.getCallback(); cb != nil {
		cb(res.Clone())
	}

	t.finish(res, dets, nil)
}

// infer runs the engine and post processing for a frame while holding the
// model lock shared
func (p *Predictor) infer(t *Task, log *logrus.Entry) (postprocess.PackedResult,
	[]postprocess.Detection, error) {

	if err := t.ctx.Err(); err != nil {
		return postprocess.PackedResult{}, nil, fmt.Errorf("%w: %v", ErrCanceled, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	m := p.model

	eng, err := m.engines.Get(t.ctx)

	if err != nil {
		if t.ctx.Err() != nil {
			return postprocess.PackedResult{}, nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}

		return postprocess.PackedResult{}, nil, err
	}

	defer m.engines.Return(eng)

	out, err := eng.Infer(t.ctx, t.frame.Image())

	if err != nil {
		return postprocess.PackedResult{}, nil, fmt.Errorf("inference failed: %w", err)
	}

	sc := ScalingContext{
		OriginalWidth:  t.frame.Width(),
		OriginalHeight: t.frame.Height(),
		ModelWidth:     m.spec.InputWidth,
		ModelHeight:    m.spec.InputHeight,
		Policy:         m.cfg.ScalePolicy,
		ScaleX:         t.opts.ScaleX,
		ScaleY:         t.opts.ScaleY,
	}

	dets, err := m.process(out, sc, log)

	if err != nil {
		return postprocess.PackedResult{}, nil, err
	}

	if len(dets) == 0 && !m.cfg.EmitEmptyFrames {
		return postprocess.PackedResult{}, nil, ErrNoDetections
	}

	log.WithField("detections", len(dets)).Debug("Frame processed")

	return postprocess.Pack(dets, t.TimestampMs), dets, nil
}

// Reinit loads the model registered under modelID with cfg and swaps it in
// once all in-flight frames have completed.  On failure the current model
// stays in service.  The queue size and number of dispatching goroutines are
// fixed when the Predictor is created.
func (p *Predictor) Reinit(modelID string, cfg Config) error {

	p.sendMu.Lock()
	closed := p.closed
	p.sendMu.Unlock()

	if closed {
		return ErrClosed
	}

	m, err := p.load(modelID, cfg)

	if err != nil {
		p.entry().WithError(err).WithField("next", modelID).Warn("Reinit failed, model unchanged")
		return err
	}

	p.mu.Lock()

	p.sendMu.Lock()
	closed = p.closed
	p.sendMu.Unlock()

	if closed {
		p.mu.Unlock()
		m.close()
		return ErrClosed
	}

	old := p.model
	p.model = m
	p.log = p.logger.WithField("model", modelID)
	log := p.log
	p.mu.Unlock()

	old.close()

	log.Info("Predictor reinitialized")

	return nil
}

// Close stops processing, frames still queued complete with ErrClosed, and
// releases the model
func (p *Predictor) Close() error {

	p.sendMu.Lock()

	if p.closed {
		p.sendMu.Unlock()
		return nil
	}

	p.closed = true
	p.sendMu.Unlock()

	close(p.quit)
	p.wg.Wait()

	for {
		select {
		case t := <-p.queue:
			t.finish(postprocess.PackedResult{}, nil, ErrClosed)
			continue
		default:
		}

		break
	}

	p.mu.Lock()
	p.model.close()
	p.mu.Unlock()

	return nil
}

// Task is the handle of a submitted frame
type Task struct {
	// ID is unique per Predictor and increases with each submission
	ID          int64
	TimestampMs uint64

	ctx   context.Context
	frame Frame
	opts  PredictOptions

	done chan struct{}
	res  postprocess.PackedResult
	dets []postprocess.Detection
	err  error
}

func (t *Task) finish(res postprocess.PackedResult, dets []postprocess.Detection,
	err error) {

	t.res = res
	t.dets = dets
	t.err = err
	close(t.done)
}

// Done is closed once the task has completed
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task completes or ctx ends and returns the packed
// result.  A frame without detections reports ErrNoDetections unless empty
// frames are emitted.
func (t *Task) Wait(ctx context.Context) (postprocess.PackedResult, error) {

	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return postprocess.PackedResult{}, ctx.Err()
	}
}

// Detections returns the unpacked detections once the task has completed
func (t *Task) Detections() []postprocess.Detection {

	select {
	case <-t.done:
		return t.dets
	default:
		return nil
	}
}

// Err returns the task's error once it has completed
func (t *Task) Err() error {

	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
