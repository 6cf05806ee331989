package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-yoloseg/postprocess"
	"gocv.io/x/gocv"
)

// boxLabel is a precalculated label drawn after all outlines
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Detections renders the outline of each detected object, falling back to
// its bounding box when no outline was traced, and a class label above it
func Detections(img *gocv.Mat, dets []postprocess.Detection, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := ClassColor(det.Class)

		rect := image.Rect(int(det.Box.X1), int(det.Box.Y1), int(det.Box.X2),
			int(det.Box.Y2))

		if !Outlines(img, det.Polygons, useClr, lineThickness) {
			gocv.Rectangle(img, rect, useClr, lineThickness)
		}

		// centroid marker
		gocv.Circle(img, image.Pt(int(det.Centroid.X), int(det.Centroid.Y)),
			lineThickness+1, useClr, -1)

		// create text for label
		text := fmt.Sprintf("%s %.2f", det.ClassName, det.Score)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		centerX := font.labelX(rect.Min.X, rect.Max.X, textSize.X, lineThickness)

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(centerX-textSize.X/2, rect.Min.Y-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			rect.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, rect.Min.Y)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		})
	}

	// draw all precalculated box labels so they are the top most layer on the
	// image and don't get overlapped with outlines
	for _, box := range boxLabels {
		// draw box text gets written on
		gocv.Rectangle(img, box.rect, box.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// Outlines draws closed polygons onto the image and reports if any were
// drawn
func Outlines(img *gocv.Mat, polys []postprocess.Polygon, clr color.RGBA,
	lineThickness int) bool {

	pts := make([][]image.Point, 0, len(polys))

	for _, p := range polys {
		if len(p) < 2 {
			continue
		}

		pts = append(pts, p)
	}

	if len(pts) == 0 {
		return false
	}

	ptsVec := gocv.NewPointsVectorFromPoints(pts)
	defer ptsVec.Close()

	gocv.Polylines(img, ptsVec, true, clr, lineThickness)

	return true
}
