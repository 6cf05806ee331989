/*
go-yoloseg runs YOLO11 instance segmentation models and turns their raw output
tensors into per object class labels, scores, bounding boxes and traced mask
outlines expressed in the coordinates of the original frame.

A Predictor is created for a model registered by ID, frames are submitted
asynchronously with Predict and each frame's detections are delivered as a
flat PackedResult to a callback and to the returned Task.

Inference is performed by an Engine supplied through an EngineFactory, the
onnx subpackage provides one backed by ONNX Runtime.

See the cmd/yoloseg tool for example usage.
*/
package yoloseg
