package scroll

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

type countingTarget struct {
	up, down atomic.Int64
	delay    time.Duration
}

func (c *countingTarget) PerformScroll(d Direction) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	switch d {
	case Up:
		c.up.Add(1)
	case Down:
		c.down.Add(1)
	}
	return nil
}

func TestDispatchWithoutTarget(t *testing.T) {
	reg := NewRegistry()

	ok, err := reg.Dispatch(Up)
	if err != nil {
		t.Fatalf("Dispatch without target returned error: %v", err)
	}
	if ok {
		t.Error("Expected no dispatch without a target")
	}
}

func TestDispatchRejectsCenter(t *testing.T) {
	reg := NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)

	if _, err := reg.Dispatch(Center); !errors.Is(err, ErrNoDirection) {
		t.Errorf("Expected ErrNoDirection, got %v", err)
	}
	if target.up.Load()+target.down.Load() != 0 {
		t.Error("Center must not reach the target")
	}
}

func TestConnectDispatchDisconnect(t *testing.T) {
	reg := NewRegistry()
	target := &countingTarget{}

	id := reg.Connect(target)
	if !reg.Connected() {
		t.Fatal("Expected registry to be connected")
	}

	if ok, err := reg.Dispatch(Down); !ok || err != nil {
		t.Fatalf("Dispatch(Down) = %v, %v", ok, err)
	}
	if got := target.down.Load(); got != 1 {
		t.Errorf("Expected 1 down scroll, got %d", got)
	}

	if !reg.Disconnect(id) {
		t.Error("Expected Disconnect to clear the target")
	}
	if reg.Disconnect(id) {
		t.Error("Second Disconnect should be a no-op")
	}

	if ok, _ := reg.Dispatch(Up); ok {
		t.Error("Dispatch after disconnect should be a no-op")
	}
	if got := target.up.Load(); got != 0 {
		t.Errorf("Expected 0 up scrolls after disconnect, got %d", got)
	}
}

func TestStaleDisconnectKeepsNewerTarget(t *testing.T) {
	reg := NewRegistry()
	old := reg.Connect(&countingTarget{})
	newer := &countingTarget{}
	reg.Connect(newer)

	if reg.Disconnect(old) {
		t.Error("Stale id must not clear the newer target")
	}
	if reg.Disconnect(uuid.New()) {
		t.Error("Unknown id must not clear the target")
	}

	reg.Dispatch(Up)
	if got := newer.up.Load(); got != 1 {
		t.Errorf("Expected newer target to receive the scroll, got %d", got)
	}
}

// A disconnect racing an in-flight dispatch must wait for it to finish.
func TestDisconnectWaitsForInflightDispatch(t *testing.T) {
	reg := NewRegistry()
	target := &countingTarget{delay: 50 * time.Millisecond}
	id := reg.Connect(target)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		reg.Dispatch(Up)
		close(done)
	}()

	<-started
	time.Sleep(10 * time.Millisecond)
	reg.Disconnect(id)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not complete")
	}

	// Either the dispatch ran against the old target or it saw no target;
	// it never runs partially.
	if got := target.up.Load(); got > 1 {
		t.Errorf("Expected at most one scroll, got %d", got)
	}
}

func TestConcurrentDispatchAndLifecycle(t *testing.T) {
	reg := NewRegistry()
	target := &countingTarget{}

	var wg sync.WaitGroup
	var dispatched atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if ok, _ := reg.Dispatch(Up); ok {
					dispatched.Add(1)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			id := reg.Connect(target)
			reg.Disconnect(id)
		}
	}()
	wg.Wait()

	if got := target.up.Load(); got != dispatched.Load() {
		t.Errorf("Target saw %d scrolls, registry reported %d", got, dispatched.Load())
	}
}
