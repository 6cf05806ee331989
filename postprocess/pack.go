package postprocess

import (
	"bytes"
	"fmt"
	"image"
	"math"
)

// PolygonEnd marks the end of a detection's polygon list in ContourIndex
const PolygonEnd int32 = -1

// PackedResult is the flat, fixed layout representation of a frame's
// detections handed across the consumer boundary
type PackedResult struct {
	DetectionCount int32
	// ClassIndex per detection
	ClassIndex []int32
	// ClassNames are the NUL terminated UTF-8 names of each detection's
	// class concatenated in detection order
	ClassNames   []byte
	NamesByteLen int32
	// Scores per detection
	Scores []float32
	// Boxes are x1,y1,x2,y2 per detection in original image pixels
	Boxes []int32
	// ContourPoints are the flattened x,y pairs of all polygons
	ContourPoints []int32
	PointCount    int32
	// ContourIndex holds, per detection, the start offset into ContourPoints,
	// then the end offset of each of its polygons, then PolygonEnd
	ContourIndex []int32
	IndexCount   int32
	// Centroids are x,y per detection
	Centroids []int32
	// TimestampMs echoes the frame timestamp
	TimestampMs uint64
}

// Pack serializes detections into a PackedResult.  Box corners and centroids
// are rounded to the nearest integer.
func Pack(dets []Detection, timestampMs uint64) PackedResult {

	n := len(dets)

	res := PackedResult{
		DetectionCount: int32(n),
		ClassIndex:     make([]int32, n),
		Scores:         make([]float32, n),
		Boxes:          make([]int32, n*4),
		Centroids:      make([]int32, n*2),
		TimestampMs:    timestampMs,
	}

	var names bytes.Buffer
	points := 0
	indexes := 0

	for _, d := range dets {
		indexes += 2 + len(d.Polygons)

		for _, p := range d.Polygons {
			points += len(p) * 2
		}
	}

	res.ContourPoints = make([]int32, 0, points)
	res.ContourIndex = make([]int32, 0, indexes)

	for i, d := range dets {
		res.ClassIndex[i] = int32(d.Class)
		res.Scores[i] = d.Score

		names.WriteString(d.ClassName)
		names.WriteByte(0)

		res.Boxes[i*4+0] = roundInt32(float64(d.Box.X1))
		res.Boxes[i*4+1] = roundInt32(float64(d.Box.Y1))
		res.Boxes[i*4+2] = roundInt32(float64(d.Box.X2))
		res.Boxes[i*4+3] = roundInt32(float64(d.Box.Y2))

		res.Centroids[i*2+0] = roundInt32(d.Centroid.X)
		res.Centroids[i*2+1] = roundInt32(d.Centroid.Y)

		res.ContourIndex = append(res.ContourIndex, int32(len(res.ContourPoints)))

		for _, poly := range d.Polygons {
			for _, pt := range poly {
				res.ContourPoints = append(res.ContourPoints, int32(pt.X), int32(pt.Y))
			}

			res.ContourIndex = append(res.ContourIndex, int32(len(res.ContourPoints)))
		}

		res.ContourIndex = append(res.ContourIndex, PolygonEnd)
	}

	res.ClassNames = names.Bytes()
	res.NamesByteLen = int32(len(res.ClassNames))
	res.PointCount = int32(len(res.ContourPoints))
	res.IndexCount = int32(len(res.ContourIndex))

	return res
}

// Clone returns a copy of the result that shares no memory with r
func (r PackedResult) Clone() PackedResult {

	c := r
	c.ClassIndex = cloneSlice(r.ClassIndex)
	c.ClassNames = cloneSlice(r.ClassNames)
	c.Scores = cloneSlice(r.Scores)
	c.Boxes = cloneSlice(r.Boxes)
	c.ContourPoints = cloneSlice(r.ContourPoints)
	c.ContourIndex = cloneSlice(r.ContourIndex)
	c.Centroids = cloneSlice(r.Centroids)

	return c
}

func cloneSlice[T any](s []T) []T {

	if s == nil {
		return nil
	}

	return append(make([]T, 0, len(s)), s...)
}

// Unpack reads a PackedResult back into detections
func Unpack(res PackedResult) ([]Detection, error) {

	n := int(res.DetectionCount)

	if len(res.ClassIndex) < n || len(res.Scores) < n || len(res.Boxes) < n*4 {
		return nil, fmt.Errorf("packed result truncated for %d detections", n)
	}

	names := bytes.Split(bytes.TrimSuffix(res.ClassNames, []byte{0}), []byte{0})

	dets := make([]Detection, n)
	idx := 0

	for i := 0; i < n; i++ {
		d := Detection{
			Class: int(res.ClassIndex[i]),
			Score: res.Scores[i],
			Box: Box{
				X1: float32(res.Boxes[i*4+0]),
				Y1: float32(res.Boxes[i*4+1]),
				X2: float32(res.Boxes[i*4+2]),
				Y2: float32(res.Boxes[i*4+3]),
			},
		}

		if i < len(names) && len(res.ClassNames) > 0 {
			d.ClassName = string(names[i])
		}

		if len(res.Centroids) >= (i+1)*2 {
			d.Centroid = Centroid{
				X: float64(res.Centroids[i*2+0]),
				Y: float64(res.Centroids[i*2+1]),
			}
		}

		if idx >= len(res.ContourIndex) {
			return nil, fmt.Errorf("contour index truncated at detection %d", i)
		}

		start := res.ContourIndex[idx]
		idx++

		for idx < len(res.ContourIndex) && res.ContourIndex[idx] != PolygonEnd {
			end := res.ContourIndex[idx]

			if start > end || int(end) > len(res.ContourPoints) {
				return nil, fmt.Errorf("invalid polygon range %d-%d", start, end)
			}

			poly := make(Polygon, 0, (end-start)/2)

			for p := start; p+1 < end; p += 2 {
				poly = append(poly, image.Pt(int(res.ContourPoints[p]),
					int(res.ContourPoints[p+1])))
			}

			d.Polygons = append(d.Polygons, poly)
			start = end
			idx++
		}

		// skip the end marker
		idx++
		dets[i] = d
	}

	return dets, nil
}

func roundInt32(v float64) int32 {
	return int32(math.Round(v))
}
