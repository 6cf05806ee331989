package postprocess

import (
	"fmt"
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"
	"gocv.io/x/gocv"
)

// CoordFunc maps a model input space point into the output coordinate space
type CoordFunc func(x, y float64) (float64, float64)

// ContourTracer traces the outlines of a thresholded mask.  The mask is
// width x height with its top left corner at (offX, offY) in model space,
// every point produced is passed through fn before being returned.
type ContourTracer interface {
	Trace(mask []float32, width, height, offX, offY int,
		fn CoordFunc) ([]Polygon, Centroid, error)
}

// ContourParams defines the parameters used when tracing mask outlines
type ContourParams struct {
	// MinArea is the pixel area below which a contour is treated as noise
	MinArea float64
	// Epsilon is the ApproxPolyDP tolerance used to simplify outlines, 0
	// keeps every traced vertex
	Epsilon float64
	// Dilation grows each outline by the given pixel distance, 0 disables
	Dilation float64
}

// Contours traces outlines with OpenCV
type Contours struct {
	Params ContourParams
}

// NewContours returns an OpenCV backed contour tracer
func NewContours(p ContourParams) *Contours {
	return &Contours{Params: p}
}

// Trace returns the external outlines of the non zero region of the mask and
// the mask's centroid
func (c *Contours) Trace(mask []float32, width, height, offX, offY int,
	fn CoordFunc) ([]Polygon, Centroid, error) {

	centroid := mapCentroid(fn, float64(offX)+float64(width)/2,
		float64(offY)+float64(height)/2)

	if width <= 0 || height <= 0 || len(mask) < width*height {
		return nil, centroid, nil
	}

	bin := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	defer bin.Close()

	binData, err := bin.DataPtrUint8()

	if err != nil {
		return nil, centroid, fmt.Errorf("error getting data pointer for binary mask: %w", err)
	}

	nonZero := 0

	for i, v := range mask[:width*height] {
		if v != 0 {
			binData[i] = 255
			nonZero++
		} else {
			binData[i] = 0
		}
	}

	if nonZero == 0 {
		return nil, centroid, nil
	}

	moments := gocv.Moments(bin, true)

	if m00 := moments["m00"]; m00 > 0 {
		centroid = mapCentroid(fn, float64(offX)+moments["m10"]/m00,
			float64(offY)+moments["m01"]/m00)
	}

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	polys := make([]Polygon, 0, contours.Size())

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		if c.Params.MinArea > 0 && gocv.ContourArea(contour) < c.Params.MinArea {
			continue
		}

		var pts []image.Point

		if c.Params.Epsilon > 0 {
			approx := gocv.ApproxPolyDP(contour, c.Params.Epsilon, true)
			pts = approx.ToPoints()
			approx.Close()
		} else {
			pts = contour.ToPoints()
		}

		// shift from crop space into model space
		for j := range pts {
			pts[j] = pts[j].Add(image.Pt(offX, offY))
		}

		if c.Params.Dilation > 0 {
			for _, grown := range dilate(pts, c.Params.Dilation) {
				polys = append(polys, mapPolygon(fn, grown))
			}

			continue
		}

		polys = append(polys, mapPolygon(fn, pts))
	}

	return polys, centroid, nil
}

// dilate grows a closed polygon outwards by distance pixels with round joins
func dilate(pts []image.Point, distance float64) [][]image.Point {

	var path clipper.Path

	for _, pt := range pts {
		path = append(path, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
	}

	co := clipper.NewClipperOffset()
	co.AddPath(path, clipper.JtRound, clipper.EtClosedPolygon)

	solution := co.Execute(distance)
	out := make([][]image.Point, 0, len(solution))

	for _, sol := range solution {
		grown := make([]image.Point, 0, len(sol))

		for _, pt := range sol {
			grown = append(grown, image.Point{X: int(pt.X), Y: int(pt.Y)})
		}

		out = append(out, grown)
	}

	return out
}

// mapPolygon passes every point through fn rounding to the nearest integer
func mapPolygon(fn CoordFunc, pts []image.Point) Polygon {

	poly := make(Polygon, len(pts))

	for i, pt := range pts {
		x, y := float64(pt.X), float64(pt.Y)

		if fn != nil {
			x, y = fn(x, y)
		}

		poly[i] = image.Pt(int(math.Round(x)), int(math.Round(y)))
	}

	return poly
}

func mapCentroid(fn CoordFunc, x, y float64) Centroid {

	if fn != nil {
		x, y = fn(x, y)
	}

	return Centroid{X: x, Y: y}
}
