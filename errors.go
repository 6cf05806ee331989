package yoloseg

import "errors"

var (
	// ErrUnknownModel is returned when a model ID is not in the registry
	ErrUnknownModel = errors.New("unknown model")
	// ErrNoEngineFactory is returned when a Predictor is created without an
	// engine factory
	ErrNoEngineFactory = errors.New("no engine factory configured")
	// ErrClosed is returned when using a Predictor after Close
	ErrClosed = errors.New("predictor closed")
	// ErrQueueFull is returned by Predict when no queue slot is free
	ErrQueueFull = errors.New("predict queue full")
	// ErrNoDetections is set on a Task whose frame produced no detections
	// and was not emitted
	ErrNoDetections = errors.New("no detections")
	// ErrShapeMismatch is returned when output tensors do not match the
	// model's registered layout
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	// ErrCanceled is set on a Task whose context ended before it completed
	ErrCanceled = errors.New("predict canceled")
)
