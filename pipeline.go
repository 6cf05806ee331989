package yoloseg

import (
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-yoloseg/postprocess"
	"github.com/swdee/go-yoloseg/preprocess"
)

// ScalingContext describes how a frame relates to the model input so output
// coordinates can be mapped back onto the frame
type ScalingContext struct {
	OriginalWidth  int
	OriginalHeight int
	ModelWidth     int
	ModelHeight    int
	Policy         preprocess.ScalePolicy
	// ScaleX and ScaleY are applied after the inverse transform, 0 means 1
	ScaleX float64
	ScaleY float64
}

// Mapper returns the model to original coordinate transform
func (s ScalingContext) Mapper() preprocess.Mapper {
	return preprocess.NewMapper(s.OriginalWidth, s.OriginalHeight,
		s.ModelWidth, s.ModelHeight, s.Policy).WithPostScale(s.ScaleX, s.ScaleY)
}

// model is a loaded segmentation model with everything needed to turn its
// outputs into detections
type model struct {
	spec    ModelSpec
	cfg     Config
	engines *Pool
	workers *postprocess.Workers
	decoder *postprocess.Decoder
	masks   *postprocess.MaskReconstructor
	tracer  postprocess.ContourTracer
}

// newModel opens cfg.MaxInFlight engine sessions and sets up the post
// processing stages
func newModel(spec ModelSpec, cfg Config, factory EngineFactory,
	tracer postprocess.ContourTracer) (*model, error) {

	engines, err := NewPool(cfg.MaxInFlight, factory, spec, cfg.ScalePolicy)

	if err != nil {
		return nil, err
	}

	workers := postprocess.NewWorkers(cfg.Workers)

	if tracer == nil {
		tracer = postprocess.NewContours(postprocess.ContourParams{
			MinArea:  cfg.MinContourArea,
			Epsilon:  cfg.ContourEpsilon,
			Dilation: cfg.ContourDilation,
		})
	}

	return &model{
		spec:    spec,
		cfg:     cfg,
		engines: engines,
		workers: workers,
		decoder: postprocess.NewDecoder(postprocess.DecoderParams{
			ClassNum:            spec.NumClasses(),
			CoefficientNum:      spec.MaskCoefficients,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			SequentialLimit:     cfg.SequentialDecodeLimit,
		}, workers),
		masks: postprocess.NewMaskReconstructor(postprocess.MaskParams{
			ModelWidth:  spec.InputWidth,
			ModelHeight: spec.InputHeight,
			Threshold:   cfg.MaskThreshold,
		}),
		tracer: tracer,
	}, nil
}

// process turns the model outputs of one frame into detections in original
// frame coordinates.  No detections yields an empty result and no error.
func (m *model) process(out *Outputs, sc ScalingContext,
	log *logrus.Entry) ([]postprocess.Detection, error) {

	if err := out.Check(m.spec); err != nil {
		return nil, err
	}

	cands := m.decoder.Decode(out.Boxes)

	if len(cands) == 0 {
		return nil, nil
	}

	kept := postprocess.Suppress(cands, m.cfg.IoUThreshold,
		m.cfg.MaxDetectionsPerClass)

	if out.Protos.Channels != m.spec.MaskCoefficients || out.Protos.Size() == 0 {
		log.WithFields(logrus.Fields{
			"channels": out.Protos.Channels,
			"expected": m.spec.MaskCoefficients,
			"size":     out.Protos.Size(),
		}).Warn("Prototype layout mismatch, masks left empty")
	}

	combined := m.masks.Combine(kept, out.Protos)
	mapper := sc.Mapper()
	coordFn := postprocess.CoordFunc(mapper.Apply)

	dets := make([]postprocess.Detection, len(kept))
	errs := make([]error, len(kept))

	// each detection writes only its own slot
	m.workers.Run(len(kept), func(i int) {
		c := kept[i]

		det := postprocess.Detection{
			Class:     c.Class,
			ClassName: m.spec.ClassName(c.Class),
			Score:     c.Score,
			Box:       m.mapBox(c.Box, mapper),
		}

		mask, err := m.masks.Build(combined[i], out.Protos, c.Box)

		if err != nil {
			errs[i] = err
		}

		if !mask.Empty() {
			det.Polygons, det.Centroid, err = m.tracer.Trace(mask.Data,
				mask.Width, mask.Height, mask.X, mask.Y, coordFn)

			if err != nil {
				errs[i] = err
			}
		} else {
			cx, cy := mapper.Apply(float64(c.Box.X1+c.Box.X2)/2,
				float64(c.Box.Y1+c.Box.Y2)/2)
			det.Centroid = postprocess.Centroid{X: cx, Y: cy}
		}

		m.masks.Release(mask)
		dets[i] = det
	})

	for i, err := range errs {
		if err != nil {
			log.WithError(err).WithField("detection", i).Warn("Mask outline unavailable")
		}
	}

	return dets, nil
}

// mapBox clips the box to the model input and maps its corners into
// original frame coordinates
func (m *model) mapBox(b postprocess.Box, mapper preprocess.Mapper) postprocess.Box {

	w := float32(m.spec.InputWidth)
	h := float32(m.spec.InputHeight)

	x1, y1 := mapper.Apply(float64(clampFloat(b.X1, 0, w)), float64(clampFloat(b.Y1, 0, h)))
	x2, y2 := mapper.Apply(float64(clampFloat(b.X2, 0, w)), float64(clampFloat(b.Y2, 0, h)))

	return postprocess.Box{
		X1: float32(x1),
		Y1: float32(y1),
		X2: float32(x2),
		Y2: float32(y2),
	}
}

// close releases the engine sessions and worker goroutines
func (m *model) close() {
	m.engines.Close()
	m.workers.Close()
}

func clampFloat(val, min, max float32) float32 {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}
