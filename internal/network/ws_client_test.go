package network

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"eyescroll/internal/api"
	"eyescroll/internal/config"
	"eyescroll/internal/engine"
	"eyescroll/internal/protocol"
	"eyescroll/internal/scroll"
)

type countingTarget struct {
	up, down atomic.Int64
}

func (c *countingTarget) PerformScroll(d scroll.Direction) error {
	if d == scroll.Up {
		c.up.Add(1)
	} else {
		c.down.Add(1)
	}
	return nil
}

func startAPI(t *testing.T, token string) (string, *engine.Engine, *countingTarget) {
	t.Helper()
	cfg := config.NewManagerAt(filepath.Join(t.TempDir(), "config.json"))
	if token != "" {
		c := cfg.Get()
		c.API.Token = token
		cfg.Set(c)
	}

	reg := scroll.NewRegistry()
	target := &countingTarget{}
	reg.Connect(target)
	eng := engine.New(reg, engine.WithSensitivity(cfg.Sensitivity))

	s := api.NewServer(cfg, eng)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Stop(context.Background())
		ts.Close()
	})
	return strings.TrimPrefix(ts.URL, "http://"), eng, target
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWSClientFollowsEvents(t *testing.T) {
	addr, eng, target := startAPI(t, "secret")

	var statuses, dispatches atomic.Int64
	var lastOrigin atomic.Value

	c := NewWSClient(addr, "secret")
	c.OnStatus = func(st engine.Status) {
		if st.TargetConnected {
			statuses.Add(1)
		}
	}
	c.OnDispatch = func(p protocol.DispatchPayload) {
		lastOrigin.Store(p.Origin)
		dispatches.Add(1)
	}
	c.Start()
	defer c.Close()

	waitFor(t, func() bool { return statuses.Load() == 1 && c.IsConnected() })

	if err := c.SendScroll(scroll.Up); err != nil {
		t.Fatalf("SendScroll failed: %v", err)
	}
	waitFor(t, func() bool { return target.up.Load() == 1 && dispatches.Load() == 1 })
	if got := lastOrigin.Load(); got != "ws" {
		t.Errorf("Expected ws origin, got %v", got)
	}

	// Dispatches from other paths are streamed too
	eng.Dispatch(engine.OriginRemote, scroll.Down)
	waitFor(t, func() bool { return dispatches.Load() == 2 })
	if got := lastOrigin.Load(); got != "remote" {
		t.Errorf("Expected remote origin, got %v", got)
	}
}

func TestWSClientRejectsCenter(t *testing.T) {
	c := NewWSClient("127.0.0.1:1", "")
	if err := c.SendScroll(scroll.Center); !errors.Is(err, scroll.ErrNoDirection) {
		t.Errorf("Expected ErrNoDirection, got %v", err)
	}
}

func TestWSClientClose(t *testing.T) {
	addr, _, _ := startAPI(t, "")

	c := NewWSClient(addr, "")
	c.Start()
	waitFor(t, c.IsConnected)

	c.Close()
	c.Close()
	waitFor(t, func() bool { return !c.IsConnected() })

	// Fill the queue; once full a closed client reports it
	var err error
	for i := 0; i < 200 && err == nil; i++ {
		err = c.SendScroll(scroll.Down)
	}
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
