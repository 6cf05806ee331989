package yoloseg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinModels(t *testing.T) {

	reg := DefaultRegistry()

	assert.Equal(t, []string{"yolo11l_seg", "yolo11m_seg", "yolo11n_seg",
		"yolo11s_seg", "yolo11x_seg"}, reg.IDs())

	spec, err := reg.Lookup("yolo11n_seg")
	require.NoError(t, err)

	assert.Equal(t, 80, spec.NumClasses())
	assert.Equal(t, 116, spec.Features())
	assert.Equal(t, 8400, spec.NumCandidates())
	assert.Equal(t, "person", spec.ClassName(0))
	assert.Equal(t, "toothbrush", spec.ClassName(79))
	assert.Equal(t, "", spec.ClassName(80))

	_, err = reg.Lookup("yolo11q_seg")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRegistryRejectsInvalid(t *testing.T) {

	_, err := NewRegistry(testSpec("a"), testSpec("a"))
	assert.Error(t, err)

	bad := testSpec("b")
	bad.MaskCoefficients = 0

	_, err = NewRegistry(bad)
	assert.Error(t, err)

	bad = testSpec("c")
	bad.Precision = "int8"

	_, err = NewRegistry(bad)
	assert.Error(t, err)
}

const testManifest = `
models:
  - id: parts_seg
    path: parts.onnx
    input: {width: 320, height: 320}
    mask: {width: 80, height: 80, coefficients: 32}
    classes: [bolt, nut]
  - id: legacy_seg
    path: /abs/legacy.onnx
    input: {width: 640, height: 640}
    mask: {width: 160, height: 160, coefficients: 32}
    precision: float16
    legacy_names: "{0: 'person', 1: \"o'neil\"}"
  - id: coco_seg
    path: coco.onnx
    input: {width: 640, height: 640}
    mask: {width: 160, height: 160, coefficients: 32}
    coco: true
`

func TestReadManifest(t *testing.T) {

	reg, err := ReadManifest(strings.NewReader(testManifest), "/models")
	require.NoError(t, err)

	parts, err := reg.Lookup("parts_seg")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/models", "parts.onnx"), parts.Path)
	assert.Equal(t, []string{"bolt", "nut"}, parts.Classes)
	assert.Equal(t, Float32, parts.Precision)
	assert.Equal(t, 40*40+20*20+10*10, parts.NumCandidates())

	legacy, err := reg.Lookup("legacy_seg")
	require.NoError(t, err)

	assert.Equal(t, "/abs/legacy.onnx", legacy.Path)
	assert.Equal(t, []string{"person", "o'neil"}, legacy.Classes)
	assert.Equal(t, Float16, legacy.Precision)

	coco, err := reg.Lookup("coco_seg")
	require.NoError(t, err)
	assert.Len(t, coco.Classes, 80)
}

func TestReadManifestStrict(t *testing.T) {

	tests := []struct {
		name     string
		manifest string
	}{
		{
			name: "unknown field",
			manifest: `
models:
  - id: a
    path: a.onnx
    input: {width: 64, height: 64}
    mask: {width: 16, height: 16, coefficients: 4}
    classes: [x]
    anchors: 3
`,
		},
		{
			name: "no class names",
			manifest: `
models:
  - id: a
    path: a.onnx
    input: {width: 64, height: 64}
    mask: {width: 16, height: 16, coefficients: 4}
`,
		},
		{
			name: "two class name sources",
			manifest: `
models:
  - id: a
    path: a.onnx
    input: {width: 64, height: 64}
    mask: {width: 16, height: 16, coefficients: 4}
    classes: [x]
    coco: true
`,
		},
		{
			name: "missing input size",
			manifest: `
models:
  - id: a
    path: a.onnx
    mask: {width: 16, height: 16, coefficients: 4}
    classes: [x]
`,
		},
		{
			name:     "empty",
			manifest: `models: []`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadManifest(strings.NewReader(tc.manifest), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadManifestLabelsFile(t *testing.T) {

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"),
		[]byte("apple\n\nbanana\n"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.yaml"), []byte(`
models:
  - id: fruit_seg
    path: fruit.onnx
    input: {width: 64, height: 64}
    mask: {width: 16, height: 16, coefficients: 4}
    labels_file: labels.txt
`), 0o644))

	reg, err := LoadManifest(filepath.Join(dir, "models.yaml"))
	require.NoError(t, err)

	spec, err := reg.Lookup("fruit_seg")
	require.NoError(t, err)

	assert.Equal(t, []string{"apple", "banana"}, spec.Classes)
	assert.Equal(t, filepath.Join(dir, "fruit.onnx"), spec.Path)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
