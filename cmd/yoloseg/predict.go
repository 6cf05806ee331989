package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/swdee/go-yoloseg"
	"github.com/swdee/go-yoloseg/postprocess"
	"github.com/swdee/go-yoloseg/render"
	"gocv.io/x/gocv"
)

var (
	inputPath  string
	outputPath string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Segment the objects in an image",
	RunE: func(cmd *cobra.Command, args []string) error {

		img := gocv.IMRead(inputPath, gocv.IMReadColor)

		if img.Empty() {
			return fmt.Errorf("error reading image %s", inputPath)
		}

		defer img.Close()

		frame, err := matToFrame(img)

		if err != nil {
			return err
		}

		p, err := newPredictor(opts)

		if err != nil {
			return err
		}

		defer p.Close()

		task, err := p.Predict(cmd.Context(), frame, yoloseg.PredictOptions{})

		if err != nil {
			return err
		}

		res, err := task.Wait(cmd.Context())

		if errors.Is(err, yoloseg.ErrNoDetections) {
			fmt.Println("no objects detected")
			return nil
		}

		if err != nil {
			return err
		}

		dets, err := postprocess.Unpack(res)

		if err != nil {
			return err
		}

		printDetections(dets)

		if outputPath == "" {
			return nil
		}

		render.Detections(&img, dets, render.DefaultFont(), 2)

		if !gocv.IMWrite(outputPath, img) {
			return fmt.Errorf("error writing image %s", outputPath)
		}

		log.WithField("file", outputPath).Info("Saved annotated image")

		return nil
	},
}

func init() {
	predictCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Path to image")
	predictCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the annotated image to this path")

	predictCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(predictCmd)
}

// matToFrame converts a BGR image into an RGBA frame
func matToFrame(img gocv.Mat) (yoloseg.Frame, error) {

	rgba := gocv.NewMat()
	defer rgba.Close()

	gocv.CvtColor(img, &rgba, gocv.ColorBGRToRGBA)

	return yoloseg.FrameFromBytes(rgba.ToBytes(), rgba.Cols(), rgba.Rows())
}

func printDetections(dets []postprocess.Detection) {

	for i, d := range dets {
		points := 0

		for _, p := range d.Polygons {
			points += len(p)
		}

		fmt.Fprintf(os.Stdout, "%d: %s (%.2f) box=(%d,%d)-(%d,%d) centroid=(%d,%d) polygons=%d points=%d\n",
			i, d.ClassName, d.Score, int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2),
			int(d.Box.Y2), int(d.Centroid.X), int(d.Centroid.Y), len(d.Polygons),
			points)
	}
}
