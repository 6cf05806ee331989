package postprocess

import (
	"github.com/chewxy/math32"
)

// sigmoid is the logistic activation
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// clampInt restricts val to the range [min,max]
func clampInt(val, min, max int) int {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}

// IoU calculates the Intersection over Union of two boxes.  Boxes that do
// not overlap, or only touch, have an IoU of 0.
func IoU(a, b Box) float32 {

	xA := math32.Max(a.X1, b.X1)
	yA := math32.Max(a.Y1, b.Y1)
	xB := math32.Min(a.X2, b.X2)
	yB := math32.Min(a.Y2, b.Y2)

	if xA >= xB || yA >= yB {
		return 0
	}

	inter := (xB - xA) * (yB - yA)
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}
