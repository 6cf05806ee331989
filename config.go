package yoloseg

import (
	"fmt"
	"runtime"

	"github.com/swdee/go-yoloseg/postprocess"
	"github.com/swdee/go-yoloseg/preprocess"
)

// Config defines the shared, read only, configuration of a Predictor
type Config struct {
	// ConfidenceThreshold is the score a candidate's best class must exceed
	// to be kept
	ConfidenceThreshold float32
	// IoUThreshold is the maximum overlap allowed between two boxes of the
	// same class before the lower scoring one is suppressed
	IoUThreshold float32
	// ScalePolicy is how frames are scaled into the model input
	ScalePolicy preprocess.ScalePolicy
	// MaxDetectionsPerClass is the NMS per class selection limit
	MaxDetectionsPerClass int
	// MaskThreshold is the activated mask value at or below which pixels are
	// background
	MaskThreshold float32
	// SequentialDecodeLimit is the candidate count below which decoding is
	// not parallelized
	SequentialDecodeLimit int
	// Workers is the size of the fan-out worker pool
	Workers int
	// MaxInFlight is the number of frames, and engine sessions, processed
	// concurrently
	MaxInFlight int
	// QueueSize is the number of frames that may wait for a free session
	// before Predict returns ErrQueueFull, 0 uses 1
	QueueSize int
	// EmitEmptyFrames invokes the callback with zero detections instead of
	// dropping frames where nothing was detected
	EmitEmptyFrames bool
	// MinContourArea discards traced outlines smaller than this pixel area
	MinContourArea float64
	// ContourEpsilon simplifies outlines with the given tolerance in pixels
	ContourEpsilon float64
	// ContourDilation grows outlines by the given distance in model pixels
	ContourDilation float64
}

// DefaultConfig returns a Config with the default values for a YOLO11-seg
// model trained on the COCO dataset featuring:
// - Confidence Threshold: 0.25
// - IoU Threshold: 0.45
// - Scale Policy: fill
// - Maximum Detections per Class: 100
// - Mask Threshold: 0.5
// - Workers: NumCPU
// - Max In Flight: 1
// - Queue Size: 4
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   0.25,
		IoUThreshold:          0.45,
		ScalePolicy:           preprocess.ScaleFill,
		MaxDetectionsPerClass: postprocess.DefaultClassLimit,
		MaskThreshold:         postprocess.DefaultMaskThreshold,
		SequentialDecodeLimit: postprocess.DefaultSequentialLimit,
		Workers:               runtime.NumCPU(),
		MaxInFlight:           1,
		QueueSize:             4,
	}
}

// Validate checks the configuration values are in range
func (c Config) Validate() error {

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0,1]", c.ConfidenceThreshold)
	}

	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold %v outside [0,1]", c.IoUThreshold)
	}

	if c.MaskThreshold < 0 || c.MaskThreshold >= 1 {
		return fmt.Errorf("mask threshold %v outside [0,1)", c.MaskThreshold)
	}

	switch c.ScalePolicy {
	case preprocess.ScaleFill, preprocess.ScaleFit, preprocess.ScaleCenterCrop:
	default:
		return fmt.Errorf("unknown scale policy %v", c.ScalePolicy)
	}

	if c.MaxDetectionsPerClass < 0 || c.Workers < 0 || c.MaxInFlight < 0 ||
		c.QueueSize < 0 || c.SequentialDecodeLimit < 0 {
		return fmt.Errorf("negative limits are not allowed")
	}

	if c.MinContourArea < 0 || c.ContourEpsilon < 0 || c.ContourDilation < 0 {
		return fmt.Errorf("negative contour parameters are not allowed")
	}

	return nil
}

// withDefaults fills in zero valued limits
func (c Config) withDefaults() Config {

	if c.MaxInFlight == 0 {
		c.MaxInFlight = 1
	}

	if c.QueueSize == 0 {
		c.QueueSize = 1
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	if c.MaxDetectionsPerClass == 0 {
		c.MaxDetectionsPerClass = postprocess.DefaultClassLimit
	}

	if c.MaskThreshold == 0 {
		c.MaskThreshold = postprocess.DefaultMaskThreshold
	}

	if c.SequentialDecodeLimit == 0 {
		c.SequentialDecodeLimit = postprocess.DefaultSequentialLimit
	}

	return c
}
