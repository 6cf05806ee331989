package preprocess

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// PadColor is the letterbox fill used by YOLO exports
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Resizer defines the struct used for scaling a source image into the model
// input tensor dimensions under a ScalePolicy
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// policy used for scaling
	policy ScalePolicy
	// mapper is the inverse of the forward transform applied by Resize
	mapper Mapper
	// pad (fit) or crop (centerCrop) offsets in destination pixels
	xPad  float64
	yPad  float64
	scale float32
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions for input tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int,
	policy ScalePolicy) *Resizer {

	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		policy:     policy,
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// preCalc the scaling factors for source and destination images
func (r *Resizer) preCalc() {

	r.mapper = NewMapper(r.srcWidth, r.srcHeight, r.destWidth, r.destHeight,
		r.policy)

	switch r.policy {
	case ScaleFit:
		r.xPad = -r.mapper.DX
		r.yPad = -r.mapper.DY

	case ScaleCenterCrop:
		r.xPad = r.mapper.DX
		r.yPad = r.mapper.DY
	}

	// fill has independent axis scales, report the horizontal one
	r.scale = float32(1 / r.mapper.SX)
}

// Resize scales src into a destWidth x destHeight RGBA image following the
// resizer's policy.  Fit and centerCrop place the scaled image at the exact
// sub pixel offset the Mapper inverts.
func (r *Resizer) Resize(src image.Image) *image.RGBA {

	dest := image.NewRGBA(image.Rect(0, 0, r.destWidth, r.destHeight))

	switch r.policy {
	case ScaleFit, ScaleCenterCrop:
		if r.policy == ScaleFit {
			draw.Draw(dest, dest.Bounds(), &image.Uniform{C: PadColor},
				image.Point{}, draw.Src)
		}

		b := src.Bounds()

		// source to destination: dst = src/S - D, with src relative to b.Min
		s2d := f64.Aff3{
			1 / r.mapper.SX, 0, -r.mapper.DX - float64(b.Min.X)/r.mapper.SX,
			0, 1 / r.mapper.SY, -r.mapper.DY - float64(b.Min.Y)/r.mapper.SY,
		}

		draw.BiLinear.Transform(dest, s2d, src, b, draw.Src, nil)

	default:
		scaled := resize.Resize(uint(r.destWidth), uint(r.destHeight), src,
			resize.Bilinear)
		draw.Draw(dest, dest.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	}

	return dest
}

// Mapper returns the inverse coordinate transform for this resize
func (r *Resizer) Mapper() Mapper {
	return r.mapper
}

// ScaleFactor returns the uniform scale factor used in the resize
func (r *Resizer) ScaleFactor() float32 {
	return r.scale
}

// XPad returns the x padding (fit) or crop offset (centerCrop)
func (r *Resizer) XPad() float64 {
	return r.xPad
}

// YPad returns the y padding (fit) or crop offset (centerCrop)
func (r *Resizer) YPad() float64 {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
