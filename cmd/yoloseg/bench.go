package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/swdee/go-yoloseg"
	"gocv.io/x/gocv"
)

var benchFrames int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure throughput by repeatedly segmenting an image",
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

		return runBench(cmd, p, frame, benchFrames)
	},
}

func init() {
	benchCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Path to image")
	benchCmd.Flags().IntVarP(&benchFrames, "frames", "n", 100, "Number of frames to process")

	benchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(benchCmd)
}

// runBench submits frames keeping the queue full and waits on the oldest
// outstanding task whenever the predictor pushes back
func runBench(cmd *cobra.Command, p *yoloseg.Predictor, frame yoloseg.Frame,
	frames int) error {

	if frames <= 0 {
		return fmt.Errorf("frames must be positive")
	}

	ctx := cmd.Context()

	bar := progressbar.NewOptions(frames,
		progressbar.OptionSetDescription("Segmenting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var (
		pending   []*yoloseg.Task
		submitted = make(map[int64]time.Time, frames)
		latency   time.Duration
		detected  int
		empty     int
	)

	wait := func() error {
		t := pending[0]
		pending = pending[1:]

		res, err := t.Wait(ctx)

		switch {
		case errors.Is(err, yoloseg.ErrNoDetections):
			empty++
		case err != nil:
			return err
		default:
			detected += int(res.DetectionCount)
		}

		latency += time.Since(submitted[t.ID])
		bar.Add(1)

		return nil
	}

	start := time.Now()

	for i := 0; i < frames; {
		t, err := p.Predict(ctx, frame, yoloseg.PredictOptions{})

		if errors.Is(err, yoloseg.ErrQueueFull) {
			if len(pending) == 0 {
				time.Sleep(time.Millisecond)
				continue
			}

			if err := wait(); err != nil {
				return err
			}

			continue
		}

		if err != nil {
			return err
		}

		submitted[t.ID] = time.Now()
		pending = append(pending, t)
		i++
	}

	for len(pending) > 0 {
		if err := wait(); err != nil {
			return err
		}
	}

	bar.Finish()

	elapsed := time.Since(start)

	fmt.Fprintf(os.Stdout, "\nframes=%d elapsed=%s fps=%.2f mean latency=%s detections=%d empty=%d\n",
		frames, elapsed.Round(time.Millisecond),
		float64(frames)/elapsed.Seconds(),
		(latency / time.Duration(frames)).Round(time.Microsecond), detected, empty)

	return nil
}
