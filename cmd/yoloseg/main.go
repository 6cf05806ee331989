// Command yoloseg runs YOLO11 instance segmentation on images
package main

func main() {
	Execute()
}
