package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalePolicy(t *testing.T) {

	tests := []struct {
		in   string
		want ScalePolicy
	}{
		{"fill", ScaleFill},
		{"scaleFill", ScaleFill},
		{"fit", ScaleFit},
		{"ScaleFit", ScaleFit},
		{"centerCrop", ScaleCenterCrop},
		{" centercrop ", ScaleCenterCrop},
	}

	for _, tc := range tests {
		got, err := ParseScalePolicy(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseScalePolicy("stretchy")
	assert.Error(t, err)
}

func TestMapperFillIdentity(t *testing.T) {
	m := NewMapper(640, 640, 640, 640, ScaleFill)

	assert.Equal(t, 1.0, m.SX)
	assert.Equal(t, 1.0, m.SY)
	assert.Equal(t, 0.0, m.DX)
	assert.Equal(t, 0.0, m.DY)

	for _, pt := range [][2]float64{{0, 0}, {12.5, 600}, {639, 1}, {-3, 700}} {
		x, y := m.Apply(pt[0], pt[1])
		assert.Equal(t, pt[0], x)
		assert.Equal(t, pt[1], y)
	}
}

func TestMapperFillIndependentAxes(t *testing.T) {
	m := NewMapper(1280, 320, 640, 640, ScaleFill)

	x, y := m.Apply(320, 320)
	assert.Equal(t, 640.0, x)
	assert.Equal(t, 160.0, y)
}

func TestMapperFitLetterbox(t *testing.T) {
	// 2:1 source into a square target, s = min(640/1280, 640/640) = 0.5 so
	// the scaled image is 640x320 and padding is (640-320)/2 = 160 on top
	m := NewMapper(1280, 640, 640, 640, ScaleFit)

	assert.Equal(t, 2.0, m.SX)
	assert.Equal(t, 2.0, m.SY)
	assert.Equal(t, 0.0, m.DX)
	assert.Equal(t, -160.0, m.DY)

	x, y := m.Apply(0, 160)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)

	x, y = m.Apply(640, 480)
	assert.Equal(t, 1280.0, x)
	assert.Equal(t, 640.0, y)
}

func TestMapperCenterCrop(t *testing.T) {
	// s = max(640/1280, 640/640) = 1, the scaled image is 1280x640 and 320
	// pixels are cropped from each side
	m := NewMapper(1280, 640, 640, 640, ScaleCenterCrop)

	assert.Equal(t, 1.0, m.SX)
	assert.Equal(t, 320.0, m.DX)
	assert.Equal(t, 0.0, m.DY)

	x, y := m.Apply(0, 0)
	assert.Equal(t, 320.0, x)
	assert.Equal(t, 0.0, y)
}

func TestMapperForwardRoundTrip(t *testing.T) {

	for _, policy := range []ScalePolicy{ScaleFill, ScaleFit, ScaleCenterCrop} {
		m := NewMapper(1920, 1080, 640, 640, policy)

		tx, ty := m.Forward(1000, 500)
		ox, oy := m.Apply(tx, ty)

		assert.InDelta(t, 1000, ox, 1e-9, policy.String())
		assert.InDelta(t, 500, oy, 1e-9, policy.String())
	}
}

func TestMapperPostScale(t *testing.T) {
	m := NewMapper(640, 640, 640, 640, ScaleFill).WithPostScale(0.5, 2)

	x, y := m.ApplyInt(101, 50.2)
	assert.Equal(t, 51, x)
	assert.Equal(t, 100, y)

	// zero post scale means unscaled
	m = m.WithPostScale(0, 0)
	x, y = m.ApplyInt(101, 50.2)
	assert.Equal(t, 101, x)
	assert.Equal(t, 50, y)
}
