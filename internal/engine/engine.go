// Package engine wires gaze classification and remote commands to the
// shared scroll target.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"eyescroll/internal/camera"
	"eyescroll/internal/gaze"
	"eyescroll/internal/remote"
	"eyescroll/internal/scroll"
)

// Origin names the input path a direction came from
type Origin string

const (
	OriginGaze   Origin = "gaze"
	OriginRemote Origin = "remote"
	OriginAPI    Origin = "api"
	OriginWS     Origin = "ws"
)

// Option configures an Engine
type Option func(*Engine)

// WithFrameSource enables gaze control fed by src
func WithFrameSource(src camera.Source) Option {
	return func(e *Engine) { e.source = src }
}

// WithRemote enables the TCP command server on addr
func WithRemote(addr string, opts remote.Options) Option {
	return func(e *Engine) {
		e.server = remote.NewServer(addr, func(d scroll.Direction) {
			e.Dispatch(OriginRemote, d)
		}, opts)
	}
}

// WithSensitivity sets where the current sensitivity is read from. It is
// called once per classified frame.
func WithSensitivity(fn func() int) Option {
	return func(e *Engine) { e.sensitivity = fn }
}

// WithGazeCooldown suppresses gaze dispatches that follow the previous one
// by less than d. Zero (the default) dispatches on every non-center frame.
func WithGazeCooldown(d time.Duration) Option {
	return func(e *Engine) { e.cooldown = d }
}

// WithObserver registers fn for every gaze and dispatch event
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// Engine owns the frame intake, the command server and the path from both
// to the scroll registry.
type Engine struct {
	registry    *scroll.Registry
	source      camera.Source
	server      *remote.Server
	sensitivity func() int
	cooldown    time.Duration

	obsMu     sync.RWMutex
	observers []Observer

	mu         sync.Mutex
	gazeCancel context.CancelFunc
	gazeDone   chan struct{}

	framesProcessed atomic.Uint64
	framesDropped   atomic.Uint64
	undelivered     atomic.Uint64

	stateMu      sync.Mutex
	dispatched   map[Origin]uint64
	lastGaze     scroll.Direction
	hasGaze      bool
	faceVisible  bool
	lastFrameAt  time.Time
	lastGazeSent time.Time
}

// New creates a stopped engine dispatching to reg
func New(reg *scroll.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		sensitivity: func() int { return gaze.DefaultSensitivity },
		dispatched:  make(map[Origin]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddObserver registers fn for every gaze and dispatch event
func (e *Engine) AddObserver(fn Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, fn)
}

// Start starts the command server and then gaze intake. A bind failure is
// returned and nothing is left running.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.StartRemote(); err != nil {
		return err
	}
	if err := e.StartGaze(ctx); err != nil {
		e.StopRemote()
		return err
	}
	return nil
}

// Stop stops gaze intake and the command server. Parts that never started
// are skipped, so Stop can be called any number of times.
func (e *Engine) Stop() error {
	e.StopGaze()
	return e.StopRemote()
}

// StartRemote starts the command server, if one is configured
func (e *Engine) StartRemote() error {
	if e.server == nil {
		return nil
	}
	if err := e.server.Start(); err != nil && !errors.Is(err, remote.ErrServerRunning) {
		log.Printf("Engine: Remote control failed to start: %v", err)
		return err
	}
	return nil
}

// StopRemote stops the command server, if one is configured
func (e *Engine) StopRemote() error {
	if e.server == nil {
		return nil
	}
	return e.server.Stop()
}

// StartGaze starts frame intake and classification, if a frame source is
// configured. Both stop when ctx is done, on StopGaze, or when the source
// gives up.
func (e *Engine) StartGaze(ctx context.Context) error {
	if e.source == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gazeRunningLocked() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.gazeCancel, e.gazeDone = cancel, done

	// Unbuffered: a send only succeeds while the classifier waits for work
	frames := make(chan *camera.Frame)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.classifyLoop(ctx, frames)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		err := e.source.Run(ctx, e.publisher(frames))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Engine: Frame source stopped: %v", err)
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	log.Printf("Engine: Gaze control started")
	return nil
}

// StopGaze stops frame intake and waits for the classifier to finish its
// current frame.
func (e *Engine) StopGaze() {
	e.mu.Lock()
	cancel, done := e.gazeCancel, e.gazeDone
	e.gazeCancel, e.gazeDone = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("Engine: Gaze control stopped")
}

func (e *Engine) gazeRunningLocked() bool {
	if e.gazeDone == nil {
		return false
	}
	select {
	case <-e.gazeDone:
		return false
	default:
		return true
	}
}

// publisher hands frames to the classifier, dropping any frame that arrives
// while the previous one is still being processed.
func (e *Engine) publisher(frames chan<- *camera.Frame) camera.PublishFunc {
	return func(f *camera.Frame) {
		select {
		case frames <- f:
		default:
			e.framesDropped.Add(1)
			f.Release()
		}
	}
}

func (e *Engine) classifyLoop(ctx context.Context, frames <-chan *camera.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-frames:
			e.processFrame(f)
		}
	}
}

func (e *Engine) processFrame(f *camera.Frame) {
	defer f.Release()
	defer e.framesProcessed.Add(1)

	if f.Face == nil {
		// Losing the face is not a Center decision; nothing is emitted
		e.stateMu.Lock()
		e.faceVisible = false
		e.lastFrameAt = f.Timestamp
		e.stateMu.Unlock()
		return
	}

	sensitivity := e.sensitivity()
	d := gaze.Classify(*f.Face, sensitivity)

	now := time.Now()
	e.stateMu.Lock()
	e.faceVisible = true
	e.lastFrameAt = f.Timestamp
	e.lastGaze, e.hasGaze = d, true
	suppress := d != scroll.Center && e.cooldown > 0 && now.Sub(e.lastGazeSent) < e.cooldown
	if d != scroll.Center && !suppress {
		e.lastGazeSent = now
	}
	e.stateMu.Unlock()

	e.notify(Event{
		Type:      EventGaze,
		Origin:    OriginGaze,
		Direction: d,
		Delta:     f.Face.Delta(),
		Threshold: gaze.Threshold(sensitivity),
		Time:      now,
	})

	if d == scroll.Center || suppress {
		return
	}
	e.Dispatch(OriginGaze, d)
}

// Dispatch sends d from origin to the current scroll target. Center is
// dropped here. With no target connected nothing happens and false is
// returned without error.
func (e *Engine) Dispatch(origin Origin, d scroll.Direction) (bool, error) {
	if d != scroll.Up && d != scroll.Down {
		return false, nil
	}

	ok, err := e.registry.Dispatch(d)
	if err != nil {
		log.Printf("Engine: Scroll %s from %s failed: %v", d, origin, err)
		return false, err
	}

	if ok {
		e.stateMu.Lock()
		e.dispatched[origin]++
		e.stateMu.Unlock()
	} else {
		e.undelivered.Add(1)
		log.Printf("Engine: Scroll %s from %s ignored, no scroll target connected", d, origin)
	}

	e.notify(Event{
		Type:      EventDispatch,
		Origin:    origin,
		Direction: d,
		Delivered: ok,
		Time:      time.Now(),
	})
	return ok, nil
}

func (e *Engine) notify(ev Event) {
	e.obsMu.RLock()
	defer e.obsMu.RUnlock()
	for _, fn := range e.observers {
		fn(ev)
	}
}
