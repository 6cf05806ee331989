package preprocess

import (
	"fmt"
	"math"
	"strings"
)

// ScalePolicy defines how a source image is scaled into the fixed size model
// input tensor
type ScalePolicy int

const (
	// ScaleFill stretches each axis independently to the model input size
	ScaleFill ScalePolicy = iota
	// ScaleFit scales uniformly so the whole image fits and pads the remainder
	// (letterbox)
	ScaleFit
	// ScaleCenterCrop scales uniformly so the model input is covered and crops
	// the overflow equally from both sides
	ScaleCenterCrop
)

// String returns the policy name as accepted by ParseScalePolicy
func (p ScalePolicy) String() string {
	switch p {
	case ScaleFill:
		return "fill"
	case ScaleFit:
		return "fit"
	case ScaleCenterCrop:
		return "centerCrop"
	}

	return fmt.Sprintf("ScalePolicy(%d)", int(p))
}

// ParseScalePolicy converts a policy name into a ScalePolicy.  Both the short
// names (fit|fill|centerCrop) and the legacy names (scaleFit|scaleFill) are
// accepted, matching is case insensitive.
func ParseScalePolicy(s string) (ScalePolicy, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fill", "scalefill":
		return ScaleFill, nil
	case "fit", "scalefit", "letterbox":
		return ScaleFit, nil
	case "centercrop", "center_crop", "crop":
		return ScaleCenterCrop, nil
	}

	return ScaleFill, fmt.Errorf("unknown scale policy %q", s)
}

// Mapper holds the inverse transform from model input coordinates back to the
// original image, such that original = (target + (DX,DY)) * (SX,SY), followed
// by an optional post scale used for display resolutions that differ from the
// capture resolution
type Mapper struct {
	SX, SY float64
	DX, DY float64
	// PostX and PostY are applied after the inverse transform
	PostX, PostY float64
}

// NewMapper calculates the inverse transform for an original image of
// srcW x srcH that was scaled into a dstW x dstH model input with the given
// policy
func NewMapper(srcW, srcH, dstW, dstH int, policy ScalePolicy) Mapper {

	w, h := float64(srcW), float64(srcH)
	tw, th := float64(dstW), float64(dstH)

	m := Mapper{PostX: 1, PostY: 1}

	switch policy {
	case ScaleFit:
		s := math.Min(tw/w, th/h)
		m.SX, m.SY = 1/s, 1/s
		m.DX = -(tw - w*s) / 2
		m.DY = -(th - h*s) / 2

	case ScaleCenterCrop:
		s := math.Max(tw/w, th/h)
		m.SX, m.SY = 1/s, 1/s
		// the crop offset was removed going forward so add it back
		m.DX = (w*s - tw) / 2
		m.DY = (h*s - th) / 2

	default:
		m.SX = w / tw
		m.SY = h / th
	}

	return m
}

// WithPostScale returns a copy of the mapper with the post scale factors set.
// Zero values are treated as 1.
func (m Mapper) WithPostScale(x, y float64) Mapper {

	if x == 0 {
		x = 1
	}

	if y == 0 {
		y = 1
	}

	m.PostX = x
	m.PostY = y

	return m
}

// Apply maps a model space point to the original (post scaled) image space
func (m Mapper) Apply(x, y float64) (float64, float64) {
	return (x + m.DX) * m.SX * m.PostX, (y + m.DY) * m.SY * m.PostY
}

// ApplyInt maps a model space point and rounds the result to the nearest
// integer
func (m Mapper) ApplyInt(x, y float64) (int, int) {
	ox, oy := m.Apply(x, y)
	return int(math.Round(ox)), int(math.Round(oy))
}

// Forward maps an original image point into model space, ignoring the post
// scale
func (m Mapper) Forward(x, y float64) (float64, float64) {
	return x/m.SX - m.DX, y/m.SY - m.DY
}
