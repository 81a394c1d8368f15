//go:build darwin

package input

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <stdbool.h>
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

// Check if we have accessibility permissions
static bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

static int postLeftMouse(CGEventType type, double x, double y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), kCGMouseButtonLeft);
    if (event == NULL) {
        return -1;
    }
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
    return 0;
}

static void mainDisplaySize(double *w, double *h) {
    CGRect bounds = CGDisplayBounds(CGMainDisplayID());
    *w = bounds.size.width;
    *h = bounds.size.height;
}
*/
import "C"
import (
	"errors"
	"fmt"
	"time"

	"eyescroll/internal/scroll"
)

// macOS implementation of gesture injection using CoreGraphics

// Injector posts left-button drag events through CoreGraphics
type Injector struct{}

// NewInjector creates a new macOS injector
func NewInjector() *Injector {
	return &Injector{}
}

// Available reports whether the process is trusted for accessibility.
// Without it CoreGraphics silently discards posted events.
func (i *Injector) Available() bool {
	return bool(C.hasAccessibilityPermissions())
}

// ScreenSize returns the main display size in points
func (i *Injector) ScreenSize() (int, int, error) {
	var w, h C.double
	C.mainDisplaySize(&w, &h)
	if w <= 0 || h <= 0 {
		return 0, 0, errors.New("no main display")
	}
	return int(w), int(h), nil
}

// Swipe presses the primary button at the stroke start, drags to its end
// over its duration and releases.
func (i *Injector) Swipe(s scroll.Stroke) error {
	if !i.Available() {
		return ErrNotTrusted
	}
	return perform(cgPointer{}, s, time.Sleep)
}

type cgPointer struct{}

func post(t C.CGEventType, p scroll.Point) error {
	if C.postLeftMouse(t, C.double(p.X), C.double(p.Y)) != 0 {
		return fmt.Errorf("CGEventCreateMouseEvent failed at %.0f,%.0f", p.X, p.Y)
	}
	return nil
}

func (cgPointer) press(p scroll.Point) error {
	return post(C.kCGEventLeftMouseDown, p)
}

func (cgPointer) drag(p scroll.Point) error {
	return post(C.kCGEventLeftMouseDragged, p)
}

func (cgPointer) release(p scroll.Point) error {
	return post(C.kCGEventLeftMouseUp, p)
}
