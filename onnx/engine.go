// Package onnx provides a yoloseg.Engine running YOLO11-seg models exported
// to ONNX with ONNX Runtime
package onnx

import (
	"context"
	"encoding/binary"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/swdee/go-yoloseg"
	"github.com/swdee/go-yoloseg/preprocess"
	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"
)

// Options defines the ONNX Runtime session options
type Options struct {
	// LibraryPath is the path to the onnxruntime shared library, empty uses
	// the platform default search path
	LibraryPath string
	// IntraOpThreads and InterOpThreads size the runtime's thread pools, 0
	// uses the runtime default
	IntraOpThreads int
	InterOpThreads int
	// tensor names, empty values use the names of Ultralytics exports
	InputName   string
	BoxOutput   string
	ProtoOutput string
}

func (o Options) withDefaults() Options {

	if o.InputName == "" {
		o.InputName = "images"
	}

	if o.BoxOutput == "" {
		o.BoxOutput = "output0"
	}

	if o.ProtoOutput == "" {
		o.ProtoOutput = "output1"
	}

	return o
}

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment loads the runtime library once per process
func initEnvironment(libPath string) error {

	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}

		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}

		envErr = errors.Wrap(ort.InitializeEnvironment(),
			"error initializing onnxruntime environment")
	})

	return envErr
}

// Factory returns an EngineFactory opening sessions with the given options
func Factory(opts Options) yoloseg.EngineFactory {
	return func(spec yoloseg.ModelSpec,
		policy preprocess.ScalePolicy) (yoloseg.Engine, error) {
		return NewEngine(spec, policy, opts)
	}
}

// Engine is a single ONNX Runtime session with its input and output tensors.
// It is not safe for concurrent use.
type Engine struct {
	spec    yoloseg.ModelSpec
	policy  preprocess.ScalePolicy
	session *ort.AdvancedSession
	input   tensor
	boxes   tensor
	protos  tensor
	// resizer is cached for the last seen frame size
	resizer *preprocess.Resizer
	// scratch buffers of float16 models
	boxBuf   []float32
	protoBuf []float32
}

// NewEngine opens a session for the model
func NewEngine(spec yoloseg.ModelSpec, policy preprocess.ScalePolicy,
	opts Options) (*Engine, error) {

	opts = opts.withDefaults()

	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	e := &Engine{
		spec:   spec,
		policy: policy,
	}

	half := spec.Precision == yoloseg.Float16
	var err error

	e.input, err = newTensor(half, ort.NewShape(1, 3, int64(spec.InputHeight),
		int64(spec.InputWidth)))

	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	e.boxes, err = newTensor(half, ort.NewShape(1, int64(spec.Features()),
		int64(spec.NumCandidates())))

	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "error creating box output tensor")
	}

	e.protos, err = newTensor(half, ort.NewShape(1, int64(spec.MaskCoefficients),
		int64(spec.MaskHeight), int64(spec.MaskWidth)))

	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "error creating prototype output tensor")
	}

	options, err := ort.NewSessionOptions()

	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "error creating session options")
	}

	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			e.Close()
			return nil, errors.Wrap(err, "error setting intra op threads")
		}
	}

	if opts.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
			e.Close()
			return nil, errors.Wrap(err, "error setting inter op threads")
		}
	}

	e.session, err = ort.NewAdvancedSession(
		spec.Path,
		[]string{opts.InputName},
		[]string{opts.BoxOutput, opts.ProtoOutput},
		[]ort.ArbitraryTensor{e.input.value()},
		[]ort.ArbitraryTensor{e.boxes.value(), e.protos.value()},
		options,
	)

	if err != nil {
		e.Close()
		return nil, errors.Wrapf(err, "error creating session for %s", spec.Path)
	}

	return e, nil
}

// Infer scales the image into the input tensor and runs the model.  The
// returned outputs reference the engine's tensors.
func (e *Engine) Infer(ctx context.Context, img image.Image) (*yoloseg.Outputs, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()

	if e.resizer == nil || e.resizer.SrcWidth() != b.Dx() ||
		e.resizer.SrcHeight() != b.Dy() {
		e.resizer = preprocess.NewResizer(b.Dx(), b.Dy(), e.spec.InputWidth,
			e.spec.InputHeight, e.policy)
	}

	e.input.fillCHW(e.resizer.Resize(img))

	if err := e.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running session")
	}

	if e.spec.Precision == yoloseg.Float16 {
		e.boxBuf = yoloseg.Float16ToFloat32(e.boxBuf, e.boxes.halfData())
		e.protoBuf = yoloseg.Float16ToFloat32(e.protoBuf, e.protos.halfData())

		return yoloseg.NewOutputs(e.boxBuf, e.boxes.shape, e.protoBuf, e.protos.shape)
	}

	return yoloseg.NewOutputs(e.boxes.f32.GetData(), e.boxes.shape,
		e.protos.f32.GetData(), e.protos.shape)
}

// Close releases the session and tensors
func (e *Engine) Close() error {

	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}

	e.input.destroy()
	e.boxes.destroy()
	e.protos.destroy()

	return nil
}

// tensor holds either a float32 tensor or a float16 tensor backed by raw
// bytes
type tensor struct {
	shape []int64
	f32   *ort.Tensor[float32]
	f16   *ort.CustomDataTensor
	raw   []byte
}

func newTensor(half bool, shape ort.Shape) (tensor, error) {

	t := tensor{shape: []int64(shape)}
	var err error

	if half {
		t.raw = make([]byte, shape.FlattenedSize()*2)
		t.f16, err = ort.NewCustomDataTensor(shape, t.raw,
			ort.TensorElementDataTypeFloat16)
	} else {
		t.f32, err = ort.NewEmptyTensor[float32](shape)
	}

	return t, err
}

func (t tensor) value() ort.ArbitraryTensor {

	if t.f16 != nil {
		return t.f16
	}

	return t.f32
}

// fillCHW writes the image as normalized planar RGB
func (t tensor) fillCHW(img *image.RGBA) {

	w := img.Rect.Dx()
	h := img.Rect.Dy()
	size := w * h

	var data []float32

	if t.f32 != nil {
		data = t.f32.GetData()
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]

		for x := 0; x < w; x++ {
			px := row[x*4:]
			i := y*w + x

			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255

				if data != nil {
					data[c*size+i] = v
					continue
				}

				binary.LittleEndian.PutUint16(t.raw[(c*size+i)*2:],
					float16.Fromfloat32(v).Bits())
			}
		}
	}
}

// halfData decodes the raw little endian float16 values
func (t tensor) halfData() []uint16 {

	out := make([]uint16, len(t.raw)/2)

	for i := range out {
		out[i] = binary.LittleEndian.Uint16(t.raw[i*2:])
	}

	return out
}

func (t *tensor) destroy() {

	if t.f32 != nil {
		t.f32.Destroy()
		t.f32 = nil
	}

	if t.f16 != nil {
		t.f16.Destroy()
		t.f16 = nil
	}
}
