package postprocess

import "image"

// Box is an axis aligned bounding box in XYXY form
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width of the box, negative for inverted boxes
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height of the box, negative for inverted boxes
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area of the box, zero for degenerate boxes
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// Candidate is a single confidence filtered detection decoded from the box
// tensor, in model input coordinates
type Candidate struct {
	// Class is the index of the best scoring class
	Class int
	// Score is the best class score
	Score float32
	// Box is the decoded bounding box
	Box Box
	// Coefficients are the mask coefficients of the candidate
	Coefficients []float32
}

// Polygon is a closed outline of integer points
type Polygon []image.Point

// Centroid is the mass center of the instance mask
type Centroid struct {
	X, Y float64
}

// Detection is a suppressed candidate with its reconstructed outline,
// expressed in original image coordinates
type Detection struct {
	Class     int
	ClassName string
	Score     float32
	// Box corners in original image space
	Box      Box
	Polygons []Polygon
	Centroid Centroid
}
