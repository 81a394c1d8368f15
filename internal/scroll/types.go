// Package scroll holds the shared scroll target and the swipe gesture it performs.
package scroll

import (
	"strings"
	"time"
)

// Direction is a discrete vertical scroll decision
type Direction int

const (
	// Center means "no action" and is never dispatched
	Center Direction = iota
	Up
	Down
)

// String returns the lower-case name used in logs and on the wire
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "center"
	}
}

// ParseDirection maps "up"/"down"/"center" (any case) to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, true
	case "down":
		return Down, true
	case "center":
		return Center, true
	}
	return Center, false
}

// MarshalText implements encoding.TextMarshaler
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Direction) UnmarshalText(b []byte) error {
	v, ok := ParseDirection(string(b))
	if !ok {
		return ErrUnknownDirection
	}
	*d = v
	return nil
}

// Target is anything able to execute a vertical scroll gesture
type Target interface {
	PerformScroll(d Direction) error
}

// Point is a screen coordinate in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is a single continuous swipe from Start to End
type Stroke struct {
	Start    Point         `json:"start"`
	End      Point         `json:"end"`
	Duration time.Duration `json:"duration"`
}

// Executor performs a stroke on screen. Swipe blocks until the gesture
// finished or failed.
type Executor interface {
	Swipe(s Stroke) error
}
