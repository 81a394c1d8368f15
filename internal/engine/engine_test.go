package engine

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eyescroll/internal/camera"
	"eyescroll/internal/gaze"
	"eyescroll/internal/remote"
	"eyescroll/internal/scroll"
)

type countingTarget struct {
	up, down atomic.Int64
	delay    time.Duration
}

func (c *countingTarget) PerformScroll(d scroll.Direction) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if d == scroll.Up {
		c.up.Add(1)
	} else {
		c.down.Add(1)
	}
	return nil
}

// chanSource hands its publish func to the test and runs until cancelled
type chanSource struct {
	ready chan camera.PublishFunc
}

func newChanSource() *chanSource {
	return &chanSource{ready: make(chan camera.PublishFunc, 1)}
}

func (s *chanSource) Run(ctx context.Context, publish camera.PublishFunc) error {
	s.ready <- publish
	<-ctx.Done()
	return ctx.Err()
}

func faceFrame(seq uint64, delta float64, released *atomic.Int64) *camera.Frame {
	face := gaze.Rect{Top: 0, Bottom: 200}
	y := face.CenterY() + delta
	sample := &gaze.Sample{
		LeftEye:  gaze.Point{X: 60, Y: y},
		RightEye: gaze.Point{X: 140, Y: y},
		Face:     face,
	}
	return camera.NewFrame(seq, time.Now(), sample, func() {
		if released != nil {
			released.Add(1)
		}
	})
}

// tryDeliver publishes f, retrying until the classifier accepts it rather
// than dropping it.
func tryDeliver(e *Engine, publish camera.PublishFunc, f func() *camera.Frame) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		before := e.Status().FramesDropped
		publish(f())
		if e.Status().FramesDropped == before {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func deliver(t *testing.T, e *Engine, publish camera.PublishFunc, f func() *camera.Frame) {
	t.Helper()
	if !tryDeliver(e, publish, f) {
		t.Fatal("frame never accepted")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startGaze(t *testing.T, opts ...Option) (*Engine, *countingTarget, camera.PublishFunc) {
	t.Helper()
	reg := scroll.NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)

	src := newChanSource()
	e := New(reg, append([]Option{WithFrameSource(src), WithSensitivity(func() int { return 50 })}, opts...)...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e, target, <-src.ready
}

func TestGazeScenarioSensitivity50(t *testing.T) {
	e, target, publish := startGaze(t)

	// 10px above the face center is inside the 12.5px dead zone
	deliver(t, e, publish, func() *camera.Frame { return faceFrame(1, -10, nil) })
	waitFor(t, func() bool { return e.Status().FramesProcessed == 1 })
	if target.up.Load() != 0 {
		t.Fatalf("Expected no scroll for delta -10, got %d", target.up.Load())
	}
	if got := e.Status().LastGaze; got != "center" {
		t.Errorf("Expected last gaze center, got %q", got)
	}

	deliver(t, e, publish, func() *camera.Frame { return faceFrame(2, -13, nil) })
	waitFor(t, func() bool { return target.up.Load() == 1 })

	deliver(t, e, publish, func() *camera.Frame { return faceFrame(3, 13, nil) })
	waitFor(t, func() bool { return target.down.Load() == 1 })

	waitFor(t, func() bool { return e.Status().Dispatched[OriginGaze] == 2 })
	if !e.Status().FaceVisible {
		t.Error("Expected face to be visible")
	}
}

func TestNoFaceEmitsNothing(t *testing.T) {
	var events atomic.Int64
	e, target, publish := startGaze(t, WithObserver(func(Event) { events.Add(1) }))

	var released atomic.Int64
	deliver(t, e, publish, func() *camera.Frame {
		return camera.NewFrame(1, time.Now(), nil, func() { released.Add(1) })
	})
	waitFor(t, func() bool { return released.Load() >= 1 && e.Status().FramesProcessed == 1 })

	st := e.Status()
	if st.FaceVisible {
		t.Error("Expected face to be reported missing")
	}
	if st.LastGaze != "" {
		t.Errorf("No face must not produce a gaze decision, got %q", st.LastGaze)
	}
	if events.Load() != 0 {
		t.Errorf("Expected no events, got %d", events.Load())
	}
	if target.up.Load()+target.down.Load() != 0 {
		t.Error("No face must not scroll")
	}
}

func TestFrameDroppedWhileBusy(t *testing.T) {
	reg := scroll.NewRegistry()
	target := &countingTarget{delay: 200 * time.Millisecond}
	reg.Connect(target)

	src := newChanSource()
	e := New(reg, WithFrameSource(src))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()
	publish := <-src.ready

	var released atomic.Int64
	deliver(t, e, publish, func() *camera.Frame { return faceFrame(1, -50, &released) })

	// The classifier is inside the slow dispatch: the next frame is dropped
	publish(faceFrame(2, 50, &released))
	if got := e.Status().FramesDropped; got != 1 {
		t.Fatalf("Expected 1 dropped frame, got %d", got)
	}
	if released.Load() != 1 {
		t.Errorf("Dropped frame must be released immediately, released=%d", released.Load())
	}

	waitFor(t, func() bool { return released.Load() == 2 })
	if target.up.Load() != 1 || target.down.Load() != 0 {
		t.Errorf("Expected only the first frame to scroll, got up=%d down=%d", target.up.Load(), target.down.Load())
	}
}

func TestGazeCooldown(t *testing.T) {
	e, target, publish := startGaze(t, WithGazeCooldown(time.Hour))

	deliver(t, e, publish, func() *camera.Frame { return faceFrame(1, -40, nil) })
	waitFor(t, func() bool { return e.Status().FramesProcessed == 1 })
	deliver(t, e, publish, func() *camera.Frame { return faceFrame(2, -40, nil) })
	waitFor(t, func() bool { return e.Status().FramesProcessed == 2 })

	if target.up.Load() != 1 {
		t.Errorf("Expected cooldown to suppress the second scroll, got %d", target.up.Load())
	}
}

func TestSensitivityReadPerFrame(t *testing.T) {
	var sens atomic.Int64
	sens.Store(0)

	e, target, publish := startGaze(t, WithSensitivity(func() int { return int(sens.Load()) }))

	// Threshold 20 at sensitivity 0: delta -15 is centered
	deliver(t, e, publish, func() *camera.Frame { return faceFrame(1, -15, nil) })
	waitFor(t, func() bool { return e.Status().FramesProcessed == 1 })
	if target.up.Load() != 0 {
		t.Fatal("Expected no scroll at sensitivity 0")
	}

	// Threshold 5 at sensitivity 100
	sens.Store(100)
	deliver(t, e, publish, func() *camera.Frame { return faceFrame(2, -15, nil) })
	waitFor(t, func() bool { return target.up.Load() == 1 })
}

func TestDispatchWithoutTarget(t *testing.T) {
	var events []Event
	var mu sync.Mutex
	e := New(scroll.NewRegistry(), WithObserver(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	ok, err := e.Dispatch(OriginRemote, scroll.Up)
	if err != nil || ok {
		t.Errorf("Dispatch without target = %v, %v; expected false, nil", ok, err)
	}
	if e.Status().Undelivered != 1 {
		t.Errorf("Expected 1 undelivered dispatch, got %d", e.Status().Undelivered)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Delivered {
		t.Errorf("Expected one undelivered event, got %+v", events)
	}
}

func TestDispatchFiltersCenter(t *testing.T) {
	reg := scroll.NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)
	e := New(reg)

	ok, err := e.Dispatch(OriginAPI, scroll.Center)
	if ok || err != nil {
		t.Errorf("Dispatch(Center) = %v, %v", ok, err)
	}
	if target.up.Load()+target.down.Load() != 0 {
		t.Error("Center must never reach the target")
	}
}

func TestRemotePath(t *testing.T) {
	reg := scroll.NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)

	e := New(reg, WithRemote("127.0.0.1:0", remote.Options{}))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()

	addr := e.Status().RemoteAddr
	for _, cmd := range []string{"scroll up\n", "scroll down\n"} {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		conn.Write([]byte(cmd))
		conn.Close()
	}

	waitFor(t, func() bool { return target.up.Load() == 1 && target.down.Load() == 1 })
	waitFor(t, func() bool { return e.Status().Dispatched[OriginRemote] == 2 })
}

func TestGazeAndRemoteConcurrently(t *testing.T) {
	reg := scroll.NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)

	src := newChanSource()
	e := New(reg, WithFrameSource(src), WithRemote("127.0.0.1:0", remote.Options{}))
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer e.Stop()
	publish := <-src.ready
	addr := e.Status().RemoteAddr

	const n = 20
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if !tryDeliver(e, publish, func() *camera.Frame { return faceFrame(uint64(i), -40, nil) }) {
				t.Errorf("Frame %d never accepted", i)
				return
			}
		}
	}()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				t.Errorf("Dial failed: %v", err)
				return
			}
			conn.Write([]byte("scroll down\n"))
			conn.Close()
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return target.up.Load() == n && target.down.Load() == n })
}

func TestStopIdempotent(t *testing.T) {
	e := New(scroll.NewRegistry(), WithFrameSource(newChanSource()), WithRemote("127.0.0.1:0", remote.Options{}))

	// Nothing started yet
	if err := e.Stop(); err != nil {
		t.Errorf("Stop before Start returned %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("First Stop returned %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Second Stop returned %v", err)
	}

	st := e.Status()
	if st.GazeRunning || st.RemoteRunning {
		t.Errorf("Expected everything stopped, got %+v", st)
	}
}

func TestPartialStartAndStop(t *testing.T) {
	e := New(scroll.NewRegistry(), WithFrameSource(newChanSource()), WithRemote("127.0.0.1:0", remote.Options{}))

	if err := e.StartRemote(); err != nil {
		t.Fatalf("StartRemote failed: %v", err)
	}
	// Gaze never started
	if err := e.Stop(); err != nil {
		t.Errorf("Stop with only remote running returned %v", err)
	}

	if err := e.StartGaze(context.Background()); err != nil {
		t.Fatalf("StartGaze failed: %v", err)
	}
	if !e.Status().GazeRunning {
		t.Error("Expected gaze to be running")
	}
	e.StopRemote()
	e.StopGaze()
	e.StopGaze()
	if e.Status().GazeRunning {
		t.Error("Expected gaze to be stopped")
	}
}

func TestStartBindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer busy.Close()

	e := New(scroll.NewRegistry(), WithFrameSource(newChanSource()), WithRemote(busy.Addr().String(), remote.Options{}))
	if err := e.Start(context.Background()); err == nil {
		e.Stop()
		t.Fatal("Expected Start to report the bind failure")
	}
	if e.Status().GazeRunning {
		t.Error("Gaze must not run after a failed Start")
	}
}

type failingSource struct{}

func (failingSource) Run(ctx context.Context, publish camera.PublishFunc) error {
	return camera.ErrUnsupported
}

func TestSourceFailureStopsGaze(t *testing.T) {
	e := New(scroll.NewRegistry(), WithFrameSource(failingSource{}))
	if err := e.StartGaze(context.Background()); err != nil {
		t.Fatalf("StartGaze failed: %v", err)
	}
	waitFor(t, func() bool { return !e.Status().GazeRunning })

	// A dead source can be restarted and stopped cleanly
	if err := e.StartGaze(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	e.StopGaze()
}
