package scroll

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SwipeDuration is how long a single scroll stroke lasts
const SwipeDuration = 300 * time.Millisecond

// Stroke endpoints as fractions of the screen height
const (
	swipeHigh = 0.3
	swipeLow  = 0.7
)

// ScreenFunc reports the current screen size in pixels
type ScreenFunc func() (width, height int, err error)

// SwipePath computes the vertical stroke for d on a width x height screen.
// Up drags content from 70% to 30% of the height, Down from 30% to 70%,
// both on the horizontal center.
func SwipePath(d Direction, width, height int, duration time.Duration) (Stroke, error) {
	if d != Up && d != Down {
		return Stroke{}, ErrNoDirection
	}
	if width <= 0 || height <= 0 {
		return Stroke{}, fmt.Errorf("%w: %dx%d", ErrNoScreen, width, height)
	}

	x := float64(width) * 0.5
	startY, endY := float64(height)*swipeLow, float64(height)*swipeHigh
	if d == Down {
		startY, endY = endY, startY
	}

	return Stroke{
		Start:    Point{X: x, Y: startY},
		End:      Point{X: x, Y: endY},
		Duration: duration,
	}, nil
}

// SwipeTarget is the Target that executes scrolls as swipe gestures through
// an Executor. It attaches itself to a Registry when the gesture capability
// becomes available and detaches when it goes away.
type SwipeTarget struct {
	registry *Registry
	executor Executor
	screen   ScreenFunc
	duration time.Duration

	// OnResult, if set, is told how each stroke ended. It is informational;
	// failed strokes are not retried.
	OnResult func(s Stroke, err error)

	mu       sync.Mutex
	id       uuid.UUID
	attached bool

	execMu   sync.Mutex // one stroke on screen at a time
	inflight sync.WaitGroup
}

// NewSwipeTarget creates a detached swipe target
func NewSwipeTarget(reg *Registry, exec Executor, screen ScreenFunc) *SwipeTarget {
	return &SwipeTarget{
		registry: reg,
		executor: exec,
		screen:   screen,
		duration: SwipeDuration,
	}
}

// OnConnect attaches the target to its registry. Calling it while attached
// does nothing.
func (t *SwipeTarget) OnConnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached {
		return
	}
	t.id = t.registry.Connect(t)
	t.attached = true
}

// OnDisconnect detaches the target. Calling it while detached does nothing.
func (t *SwipeTarget) OnDisconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.attached {
		return
	}
	t.registry.Disconnect(t.id)
	t.attached = false
}

// Attached reports whether OnConnect is in effect
func (t *SwipeTarget) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

// PerformScroll builds the stroke for d and hands it to the executor in the
// background. Only path computation errors are returned.
func (t *SwipeTarget) PerformScroll(d Direction) error {
	w, h, err := t.screen()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoScreen, err)
	}
	stroke, err := SwipePath(d, w, h, t.duration)
	if err != nil {
		return err
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()

		t.execMu.Lock()
		err := t.executor.Swipe(stroke)
		t.execMu.Unlock()

		if err != nil {
			log.Printf("Scroll: Swipe %s cancelled: %v", d, err)
		}
		if t.OnResult != nil {
			t.OnResult(stroke, err)
		}
	}()
	return nil
}

// Wait blocks until every stroke started so far has finished
func (t *SwipeTarget) Wait() {
	t.inflight.Wait()
}

// FixedScreen returns a ScreenFunc reporting a constant size
func FixedScreen(width, height int) ScreenFunc {
	return func() (int, int, error) {
		return width, height, nil
	}
}
