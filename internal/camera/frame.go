// Package camera delivers per-frame face landmarks to the control engine.
//
// Landmark extraction is done by an external capability: either a helper
// process that prints one JSON line per analyzed frame, or (with the gocv
// build tag) OpenCV cascades running in process.
package camera

import (
	"context"
	"errors"
	"sync"
	"time"

	"eyescroll/internal/gaze"
)

// ErrUnsupported is returned by sources that were not compiled in
var ErrUnsupported = errors.New("camera: source not supported in this build")

// Frame is the result of analyzing one camera image
type Frame struct {
	Seq       uint64
	Timestamp time.Time

	// Face is nil when no face (or no eye pair) was found in the image
	Face *gaze.Sample

	release func()
	once    sync.Once
}

// NewFrame creates a frame. release, if not nil, runs once on Release.
func NewFrame(seq uint64, ts time.Time, face *gaze.Sample, release func()) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: ts,
		Face:      face,
		release:   release,
	}
}

// Release returns the frame's resources to its source. It is safe to call
// more than once.
func (f *Frame) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// PublishFunc hands a frame to the consumer. It must not block.
type PublishFunc func(f *Frame)

// Source produces frames until ctx is done or the capture fails
type Source interface {
	Run(ctx context.Context, publish PublishFunc) error
}
