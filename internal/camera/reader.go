package camera

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"eyescroll/internal/gaze"
)

// landmarkLine is one analyzed frame as printed by a landmark helper:
//
//	{"ts":1700000000000,"faces":[{"left_eye":{"x":310,"y":240},"right_eye":{"x":250,"y":242},"box":{"left":200,"top":150,"right":360,"bottom":350}}]}
//
// An empty or missing "faces" list means no face was detected.
type landmarkLine struct {
	TS    int64        `json:"ts"`
	Faces []faceRecord `json:"faces"`
}

type faceRecord struct {
	LeftEye  *gaze.Point `json:"left_eye"`
	RightEye *gaze.Point `json:"right_eye"`
	Box      gaze.Rect   `json:"box"`
}

// sample returns the gaze sample for the first face, or nil when there is
// no face or it lacks an eye landmark.
func (l landmarkLine) sample() *gaze.Sample {
	if len(l.Faces) == 0 {
		return nil
	}
	f := l.Faces[0]
	if f.LeftEye == nil || f.RightEye == nil {
		return nil
	}
	return &gaze.Sample{
		LeftEye:  *f.LeftEye,
		RightEye: *f.RightEye,
		Face:     f.Box,
	}
}

// ReaderSource reads landmark JSON lines from R
type ReaderSource struct {
	R io.Reader
}

// Run publishes one frame per valid line until EOF or ctx is done.
// Malformed lines are logged and skipped.
func (s *ReaderSource) Run(ctx context.Context, publish PublishFunc) error {
	sc := bufio.NewScanner(s.R)
	var seq uint64
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var l landmarkLine
		if err := json.Unmarshal(line, &l); err != nil {
			log.Printf("Camera: Skipping malformed landmark line: %v", err)
			continue
		}

		ts := time.Now()
		if l.TS > 0 {
			ts = time.UnixMilli(l.TS)
		}
		seq++
		publish(NewFrame(seq, ts, l.sample(), nil))
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("camera: read landmarks: %w", err)
	}
	return nil
}
