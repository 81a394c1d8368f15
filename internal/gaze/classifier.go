// Package gaze turns eye landmark positions into a vertical gaze direction.
package gaze

import "eyescroll/internal/scroll"

// Sensitivity bounds
const (
	MinSensitivity     = 0
	MaxSensitivity     = 100
	DefaultSensitivity = 50
)

// Threshold constants in pixels: the dead zone spans baseThreshold at
// maximum sensitivity and baseThreshold+thresholdRange at minimum.
const (
	baseThreshold  = 5.0
	thresholdRange = 15.0
)

// Point is a 2-D landmark position in image pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a face bounding box in image pixels
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// CenterY returns the vertical center of the box
func (r Rect) CenterY() float64 {
	return (r.Top + r.Bottom) / 2
}

// Sample is one face observed in one frame
type Sample struct {
	LeftEye  Point `json:"left_eye"`
	RightEye Point `json:"right_eye"`
	Face     Rect  `json:"face"`
}

// Delta is how far the eyes' midpoint sits below (positive) or above
// (negative) the face center.
func (s Sample) Delta() float64 {
	eyesCenterY := (s.LeftEye.Y + s.RightEye.Y) / 2
	return eyesCenterY - s.Face.CenterY()
}

// Clamp limits v to the valid sensitivity range
func Clamp(v int) int {
	if v < MinSensitivity {
		return MinSensitivity
	}
	if v > MaxSensitivity {
		return MaxSensitivity
	}
	return v
}

// Threshold returns the dead-zone half width for a sensitivity level:
// 20px at sensitivity 0 down to 5px at 100.
func Threshold(sensitivity int) float64 {
	s := float64(Clamp(sensitivity)) / MaxSensitivity
	return thresholdRange*(1-s) + baseThreshold
}

// Classify maps a sample to Up, Down or Center. Both comparisons are strict:
// a delta exactly on the threshold is Center.
func Classify(sample Sample, sensitivity int) scroll.Direction {
	return classifyDelta(sample.Delta(), Threshold(sensitivity))
}

func classifyDelta(delta, threshold float64) scroll.Direction {
	switch {
	case delta < -threshold:
		return scroll.Up
	case delta > threshold:
		return scroll.Down
	default:
		return scroll.Center
	}
}
