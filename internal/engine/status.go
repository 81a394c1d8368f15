package engine

import (
	"time"

	"eyescroll/internal/scroll"
)

// EventType distinguishes engine events
type EventType string

const (
	// EventGaze is emitted for every classified frame, Center included
	EventGaze EventType = "gaze"

	// EventDispatch is emitted for every Up/Down handed to the registry
	EventDispatch EventType = "dispatch"
)

// Event describes one gaze decision or one dispatch
type Event struct {
	Type      EventType
	Origin    Origin
	Direction scroll.Direction
	Delivered bool // dispatch only: a target performed the scroll

	// Gaze only
	Delta     float64
	Threshold float64

	Time time.Time
}

// Observer receives engine events. It runs on the dispatching goroutine and
// must not block.
type Observer func(Event)

// Status is a snapshot of the engine state
type Status struct {
	GazeRunning     bool              `json:"gaze_running"`
	RemoteRunning   bool              `json:"remote_running"`
	RemoteAddr      string            `json:"remote_addr,omitempty"`
	TargetConnected bool              `json:"target_connected"`
	Sensitivity     int               `json:"sensitivity"`
	LastGaze        string            `json:"last_gaze,omitempty"`
	FaceVisible     bool              `json:"face_visible"`
	LastFrameAt     time.Time         `json:"last_frame_at,omitempty"`
	FramesProcessed uint64            `json:"frames_processed"`
	FramesDropped   uint64            `json:"frames_dropped"`
	Dispatched      map[Origin]uint64 `json:"dispatched"`
	Undelivered     uint64            `json:"undelivered"`
}

// Status returns the current engine state
func (e *Engine) Status() Status {
	s := Status{
		TargetConnected: e.registry.Connected(),
		Sensitivity:     e.sensitivity(),
		FramesProcessed: e.framesProcessed.Load(),
		FramesDropped:   e.framesDropped.Load(),
		Undelivered:     e.undelivered.Load(),
		Dispatched:      make(map[Origin]uint64),
	}

	e.mu.Lock()
	s.GazeRunning = e.gazeRunningLocked()
	e.mu.Unlock()

	if e.server != nil {
		s.RemoteRunning = e.server.Running()
		if addr := e.server.Addr(); addr != nil {
			s.RemoteAddr = addr.String()
		}
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.hasGaze {
		s.LastGaze = e.lastGaze.String()
	}
	s.FaceVisible = e.faceVisible
	s.LastFrameAt = e.lastFrameAt
	for o, n := range e.dispatched {
		s.Dispatched[o] = n
	}
	return s
}
