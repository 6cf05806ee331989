package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/swdee/go-yoloseg"
	"github.com/swdee/go-yoloseg/onnx"
	"github.com/swdee/go-yoloseg/preprocess"
)

// Options holds the shared configuration of all subcommands
type Options struct {
	ModelID      string
	Manifest     string
	LibraryPath  string
	LogLevel     string
	CPUAffinity  string
	Confidence   float32
	IoU          float32
	Policy       string
	InFlight     int
	Workers      int
	QueueSize    int
	Epsilon      float64
	MinArea      float64
	Dilation     float64
	IntraThreads int
}

var (
	opts Options
	log  = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "yoloseg",
	Short: "YOLO11 instance segmentation",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		lvl, err := logrus.ParseLevel(opts.LogLevel)

		if err != nil {
			return err
		}

		log.SetLevel(lvl)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		if opts.CPUAffinity != "" {
			if err := setAffinity(opts.CPUAffinity); err != nil {
				return err
			}
		}

		return nil
	},
}

// Execute runs the root command
func Execute() {
	// cancel on Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&opts.ModelID, "model", "m", "yolo11n_seg", "Model ID")
	f.StringVar(&opts.Manifest, "manifest", "", "YAML model manifest, builtin models are used when empty")
	f.StringVar(&opts.LibraryPath, "ort-lib", "", "Path to the onnxruntime shared library")
	f.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	f.StringVar(&opts.CPUAffinity, "cpu-affinity", "", "Cores to run on, a list such as 0-3,6 or platform:type such as rk3588:fast")
	f.Float32Var(&opts.Confidence, "conf", 0.25, "Confidence threshold")
	f.Float32Var(&opts.IoU, "iou", 0.45, "NMS IoU threshold")
	f.StringVar(&opts.Policy, "policy", "fill", "Scale policy (fill|fit|centercrop)")
	f.IntVar(&opts.InFlight, "in-flight", 1, "Frames processed concurrently")
	f.IntVar(&opts.Workers, "workers", 0, "Post processing workers, 0 uses all CPUs")
	f.IntVar(&opts.QueueSize, "queue", 4, "Frames queued before predict is rejected")
	f.Float64Var(&opts.Epsilon, "epsilon", 0, "Outline simplification tolerance in pixels")
	f.Float64Var(&opts.MinArea, "min-area", 0, "Discard outlines smaller than this area")
	f.Float64Var(&opts.Dilation, "dilate", 0, "Grow outlines by this many model pixels")
	f.IntVar(&opts.IntraThreads, "threads", 0, "onnxruntime intra op threads, 0 uses the runtime default")
}

// setAffinity pins the process to a core list or platform core type
func setAffinity(spec string) error {

	if platform, coreType, ok := strings.Cut(spec, ":"); ok {
		ct, err := yoloseg.ParseCoreType(coreType)

		if err != nil {
			return err
		}

		if err := yoloseg.SetCPUAffinityByPlatform(platform, ct); err != nil {
			return err
		}
	} else {
		cores, err := yoloseg.ParseCoreList(spec)

		if err != nil {
			return err
		}

		if err := yoloseg.SetCPUAffinity(cores); err != nil {
			return err
		}
	}

	cores, err := yoloseg.GetCPUAffinity()

	if err != nil {
		return fmt.Errorf("error reading CPU affinity: %w", err)
	}

	log.WithField("cores", cores).Info("CPU affinity set")

	return nil
}

// buildConfig returns the predictor configuration from the flags
func buildConfig(o Options) (yoloseg.Config, error) {

	cfg := yoloseg.DefaultConfig()

	policy, err := preprocess.ParseScalePolicy(o.Policy)

	if err != nil {
		return cfg, err
	}

	cfg.ConfidenceThreshold = o.Confidence
	cfg.IoUThreshold = o.IoU
	cfg.ScalePolicy = policy
	cfg.MaxInFlight = o.InFlight
	cfg.QueueSize = o.QueueSize
	cfg.ContourEpsilon = o.Epsilon
	cfg.MinContourArea = o.MinArea
	cfg.ContourDilation = o.Dilation

	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}

	return cfg, cfg.Validate()
}

// newPredictor creates a predictor from the flags
func newPredictor(o Options, extra ...yoloseg.Option) (*yoloseg.Predictor, error) {

	cfg, err := buildConfig(o)

	if err != nil {
		return nil, err
	}

	popts := []yoloseg.Option{
		yoloseg.WithLogger(log),
		yoloseg.WithEngineFactory(onnx.Factory(onnx.Options{
			LibraryPath:    o.LibraryPath,
			IntraOpThreads: o.IntraThreads,
		})),
	}

	if o.Manifest != "" {
		reg, err := yoloseg.LoadManifest(o.Manifest)

		if err != nil {
			return nil, err
		}

		popts = append(popts, yoloseg.WithRegistry(reg))
	}

	return yoloseg.New(o.ModelID, cfg, append(popts, extra...)...)
}
