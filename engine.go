package yoloseg

import (
	"context"
	"image"

	"github.com/swdee/go-yoloseg/preprocess"
)

// Engine runs a model on a single frame.  The returned Outputs may reference
// buffers owned by the engine and are only valid until the next call to Infer.
// An Engine is used by one goroutine at a time.
type Engine interface {
	Infer(ctx context.Context, img image.Image) (*Outputs, error)
	Close() error
}

// EngineFactory creates an engine for the model, frames passed to Infer are to
// be scaled into the model input with the given policy
type EngineFactory func(spec ModelSpec, policy preprocess.ScalePolicy) (Engine, error)
