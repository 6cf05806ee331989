package yoloseg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Precision is the element type of a model's output tensors
type Precision string

const (
	Float32 Precision = "float32"
	Float16 Precision = "float16"
)

// detection head strides of YOLO11 models
var headStrides = []int{8, 16, 32}

// ModelSpec describes the fixed input and output layout of a segmentation
// model
type ModelSpec struct {
	// ID the model is registered under, eg: yolo11n_seg
	ID string
	// Path to the model file loaded by the engine
	Path string
	// InputWidth and InputHeight is the model input resolution
	InputWidth  int
	InputHeight int
	// MaskWidth and MaskHeight is the resolution of the mask prototypes
	MaskWidth  int
	MaskHeight int
	// MaskCoefficients is the number of prototype channels
	MaskCoefficients int
	// Classes are the class names indexed by class
	Classes []string
	// Precision of the output tensors
	Precision Precision
}

// NumClasses returns the number of object classes
func (m ModelSpec) NumClasses() int {
	return len(m.Classes)
}

// Features returns the number of values per candidate in the box tensor
func (m ModelSpec) Features() int {
	return 4 + len(m.Classes) + m.MaskCoefficients
}

// NumCandidates returns the number of candidates the detection heads produce
// for the input resolution
func (m ModelSpec) NumCandidates() int {

	n := 0

	for _, s := range headStrides {
		n += (m.InputWidth / s) * (m.InputHeight / s)
	}

	return n
}

// ClassName returns the name of the given class, or an empty string when out
// of range
func (m ModelSpec) ClassName(class int) string {

	if class < 0 || class >= len(m.Classes) {
		return ""
	}

	return m.Classes[class]
}

// Validate checks the model layout is usable
func (m ModelSpec) Validate() error {

	if m.ID == "" {
		return errors.New("model id is empty")
	}

	if m.InputWidth <= 0 || m.InputHeight <= 0 {
		return fmt.Errorf("model %s: invalid input size %dx%d", m.ID,
			m.InputWidth, m.InputHeight)
	}

	if m.MaskWidth <= 0 || m.MaskHeight <= 0 || m.MaskCoefficients <= 0 {
		return fmt.Errorf("model %s: invalid mask layout %dx%dx%d", m.ID,
			m.MaskCoefficients, m.MaskHeight, m.MaskWidth)
	}

	if len(m.Classes) == 0 {
		return fmt.Errorf("model %s: no class names", m.ID)
	}

	switch m.Precision {
	case Float32, Float16:
	default:
		return fmt.Errorf("model %s: unknown precision %q", m.ID, m.Precision)
	}

	return nil
}

// yolo11Seg returns the layout of a stock 640x640 COCO YOLO11-seg export
func yolo11Seg(size string) ModelSpec {
	return ModelSpec{
		ID:               "yolo11" + size + "_seg",
		Path:             "yolo11" + size + "-seg.onnx",
		InputWidth:       640,
		InputHeight:      640,
		MaskWidth:        160,
		MaskHeight:       160,
		MaskCoefficients: 32,
		Classes:          COCOClasses,
		Precision:        Float32,
	}
}

// BuiltinModels returns the specs of the stock YOLO11-seg model sizes
func BuiltinModels() []ModelSpec {
	return []ModelSpec{
		yolo11Seg("n"),
		yolo11Seg("s"),
		yolo11Seg("m"),
		yolo11Seg("l"),
		yolo11Seg("x"),
	}
}

// Registry maps model IDs to their spec.  It is populated once before use
// and only read afterwards.
type Registry struct {
	models map[string]ModelSpec
}

// NewRegistry returns a registry holding the given specs
func NewRegistry(specs ...ModelSpec) (*Registry, error) {

	r := &Registry{
		models: make(map[string]ModelSpec, len(specs)),
	}

	for _, s := range specs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// DefaultRegistry returns a registry of the builtin models
func DefaultRegistry() *Registry {

	r, err := NewRegistry(BuiltinModels()...)

	if err != nil {
		// builtin specs are static
		panic(err)
	}

	return r
}

// Register validates and adds a model spec
func (r *Registry) Register(spec ModelSpec) error {

	if err := spec.Validate(); err != nil {
		return err
	}

	if _, ok := r.models[spec.ID]; ok {
		return fmt.Errorf("model %s already registered", spec.ID)
	}

	r.models[spec.ID] = spec
	return nil
}

// Lookup returns the spec registered under id
func (r *Registry) Lookup(id string) (ModelSpec, error) {

	spec, ok := r.models[id]

	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}

	return spec, nil
}

// IDs returns the registered model IDs in sorted order
func (r *Registry) IDs() []string {

	ids := make([]string, 0, len(r.models))

	for id := range r.models {
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

// manifest is the YAML layout of a model manifest file
type manifest struct {
	Models []manifestModel `yaml:"models"`
}

type manifestModel struct {
	ID    string `yaml:"id"`
	Path  string `yaml:"path"`
	Input struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"input"`
	Mask struct {
		Width        int `yaml:"width"`
		Height       int `yaml:"height"`
		Coefficients int `yaml:"coefficients"`
	} `yaml:"mask"`
	Precision Precision `yaml:"precision"`
	// class names are given by exactly one of these
	Classes     []string `yaml:"classes"`
	LabelsFile  string   `yaml:"labels_file"`
	LegacyNames string   `yaml:"legacy_names"`
	COCO        bool     `yaml:"coco"`
}

// LoadManifest reads a YAML model manifest file into a new registry.  Model
// and labels file paths are resolved relative to the manifest.
func LoadManifest(file string) (*Registry, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening manifest: %w", err)
	}

	defer f.Close()

	return ReadManifest(f, filepath.Dir(file))
}

// ReadManifest decodes a YAML model manifest, unknown fields are rejected.
// Relative paths are resolved against dir.
func ReadManifest(r io.Reader, dir string) (*Registry, error) {

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m manifest

	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("error decoding manifest: %w", err)
	}

	if len(m.Models) == 0 {
		return nil, errors.New("manifest has no models")
	}

	reg, _ := NewRegistry()

	for i, mm := range m.Models {
		spec, err := mm.toSpec(dir)

		if err != nil {
			return nil, fmt.Errorf("manifest model %d: %w", i, err)
		}

		if err := reg.Register(spec); err != nil {
			return nil, fmt.Errorf("manifest model %d: %w", i, err)
		}
	}

	return reg, nil
}

func (mm manifestModel) toSpec(dir string) (ModelSpec, error) {

	spec := ModelSpec{
		ID:               mm.ID,
		Path:             resolvePath(dir, mm.Path),
		InputWidth:       mm.Input.Width,
		InputHeight:      mm.Input.Height,
		MaskWidth:        mm.Mask.Width,
		MaskHeight:       mm.Mask.Height,
		MaskCoefficients: mm.Mask.Coefficients,
		Precision:        mm.Precision,
	}

	if spec.Precision == "" {
		spec.Precision = Float32
	}

	sources := 0

	for _, set := range []bool{len(mm.Classes) > 0, mm.LabelsFile != "",
		mm.LegacyNames != "", mm.COCO} {
		if set {
			sources++
		}
	}

	if sources != 1 {
		return spec, errors.New("exactly one of classes, labels_file, legacy_names or coco must be set")
	}

	var err error

	switch {
	case len(mm.Classes) > 0:
		spec.Classes = mm.Classes
	case mm.LabelsFile != "":
		spec.Classes, err = LoadLabels(resolvePath(dir, mm.LabelsFile))
	case mm.LegacyNames != "":
		spec.Classes, err = ParseLegacyNames(mm.LegacyNames)
	default:
		spec.Classes = COCOClasses
	}

	return spec, err
}

func resolvePath(dir, p string) string {

	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}

	return filepath.Join(dir, p)
}
