package yoloseg

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Frame is an RGBA image submitted for prediction.  A Frame owns its pixels,
// the source buffer may be reused as soon as the constructor returns.
type Frame struct {
	img *image.RGBA
}

// FrameFromBytes copies width x height 8 bit RGBA pixels
func FrameFromBytes(data []byte, width, height int) (Frame, error) {

	n, err := frameSize(len(data), width, height)

	if err != nil {
		return Frame{}, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:n])

	return Frame{img: img}, nil
}

// FrameFromFloats converts width x height RGBA pixels normalized to [0,1],
// values outside the range are clamped
func FrameFromFloats(data []float32, width, height int) (Frame, error) {

	n, err := frameSize(len(data), width, height)

	if err != nil {
		return Frame{}, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i, v := range data[:n] {
		img.Pix[i] = floatToByte(v)
	}

	return Frame{img: img}, nil
}

// FrameFromImage copies any image into a Frame
func FrameFromImage(src image.Image) Frame {

	b := src.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	return Frame{img: img}
}

// Image returns the frame pixels
func (f Frame) Image() *image.RGBA {
	return f.img
}

// Width of the frame in pixels
func (f Frame) Width() int {

	if f.img == nil {
		return 0
	}

	return f.img.Rect.Dx()
}

// Height of the frame in pixels
func (f Frame) Height() int {

	if f.img == nil {
		return 0
	}

	return f.img.Rect.Dy()
}

func frameSize(have, width, height int) (int, error) {

	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	n := width * height * 4

	if have < n {
		return 0, fmt.Errorf("frame %dx%d needs %d values, got %d", width,
			height, n, have)
	}

	return n, nil
}

func floatToByte(v float32) uint8 {

	v *= 255

	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 255:
		return 255
	}

	// truncated, not rounded
	return uint8(v)
}
