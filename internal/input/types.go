// Package input injects the synthetic pointer gestures that scroll the
// foreground application.
package input

import (
	"errors"
	"math"
	"time"

	"eyescroll/internal/scroll"
)

// ErrUnsupportedPlatform is returned where no injection backend exists
var ErrUnsupportedPlatform = errors.New("input injection not supported on this platform")

// ErrNotTrusted is returned when the OS refuses synthetic input (macOS
// accessibility permission missing)
var ErrNotTrusted = errors.New("input injection not permitted")

// stepInterval is the pause between two intermediate pointer moves
const stepInterval = 10 * time.Millisecond

// pointer is the per-platform primitive a stroke is built from
type pointer interface {
	press(p scroll.Point) error
	drag(p scroll.Point) error
	release(p scroll.Point) error
}

// Steps returns the intermediate points of s, end included and start
// excluded, spaced so that one point is emitted every stepInterval.
func Steps(s scroll.Stroke) []scroll.Point {
	n := int(s.Duration / stepInterval)
	if n < 1 {
		n = 1
	}
	pts := make([]scroll.Point, n)
	for i := 1; i <= n; i++ {
		f := float64(i) / float64(n)
		pts[i-1] = scroll.Point{
			X: math.Round(s.Start.X + (s.End.X-s.Start.X)*f),
			Y: math.Round(s.Start.Y + (s.End.Y-s.Start.Y)*f),
		}
	}
	return pts
}

// perform presses at the start, drags through every step and releases at
// the end. The button is released even if a move fails.
func perform(p pointer, s scroll.Stroke, sleep func(time.Duration)) error {
	if err := p.press(s.Start); err != nil {
		return err
	}

	var moveErr error
	for _, pt := range Steps(s) {
		sleep(stepInterval)
		if moveErr = p.drag(pt); moveErr != nil {
			break
		}
	}

	if err := p.release(s.End); err != nil {
		return err
	}
	return moveErr
}

// absoluteMax is the largest coordinate of the normalized 0..65535 space
// used by absolute pointer events
const absoluteMax = 65535

// absolute maps a pixel on a width x height screen to the normalized
// absolute space. Points outside the screen are clamped to its edges and a
// screen narrower than two pixels maps everything to 0.
func absolute(p scroll.Point, width, height int) (int32, int32) {
	return absoluteAxis(p.X, width), absoluteAxis(p.Y, height)
}

func absoluteAxis(v float64, size int) int32 {
	if size < 2 || math.IsNaN(v) || v <= 0 {
		return 0
	}
	last := float64(size - 1)
	if v >= last {
		return absoluteMax
	}
	return int32(math.Round(v * absoluteMax / last))
}
