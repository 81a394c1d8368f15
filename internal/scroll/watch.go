package scroll

import (
	"context"
	"log"
	"time"
)

// Watch polls probe every interval and connects or disconnects t whenever
// the capability it reports appears or goes away. It detaches t and returns
// when ctx is done.
func Watch(ctx context.Context, t *SwipeTarget, probe func() bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer t.OnDisconnect()

	check := func() {
		ok := probe()
		switch {
		case ok && !t.Attached():
			log.Printf("Scroll: Gesture capability available")
			t.OnConnect()
		case !ok && t.Attached():
			log.Printf("Scroll: Gesture capability lost")
			t.OnDisconnect()
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
