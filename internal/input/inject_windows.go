//go:build windows

package input

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"eyescroll/internal/scroll"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSendInput        = user32.NewProc("SendInput")
	procGetSystemMetrics = user32.NewProc("GetSystemMetrics")
)

const (
	inputMouse = 0

	mouseeventfMove     = 0x0001
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	mouseeventfAbsolute = 0x8000

	smCxScreen = 0
	smCyScreen = 1
)

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

// mouseInputEvent mirrors INPUT with the mouse member of the union. Go
// aligns Mi the same way the C union is aligned.
type mouseInputEvent struct {
	Type uint32
	Mi   mouseInput
}

// Injector posts mouse input through SendInput
type Injector struct{}

// NewInjector creates a new Windows injector
func NewInjector() *Injector {
	return &Injector{}
}

// Available reports whether synthetic input can be posted
func (i *Injector) Available() bool {
	return procSendInput.Find() == nil
}

// ScreenSize returns the primary display size in pixels
func (i *Injector) ScreenSize() (int, int, error) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 0, 0, fmt.Errorf("GetSystemMetrics returned %dx%d", w, h)
	}
	return int(w), int(h), nil
}

// Swipe presses the primary button at the stroke start, drags to its end
// over its duration and releases.
func (i *Injector) Swipe(s scroll.Stroke) error {
	w, h, err := i.ScreenSize()
	if err != nil {
		return err
	}
	return perform(&sendInput{width: w, height: h}, s, time.Sleep)
}

type sendInput struct {
	width, height int
}

func (si *sendInput) send(p scroll.Point, flags uint32) error {
	var in mouseInputEvent
	in.Type = inputMouse
	in.Mi.Dx, in.Mi.Dy = absolute(p, si.width, si.height)
	in.Mi.DwFlags = flags | mouseeventfMove | mouseeventfAbsolute

	n, _, err := procSendInput.Call(
		1,
		uintptr(unsafe.Pointer(&in)),
		unsafe.Sizeof(in),
	)
	if n != 1 {
		return fmt.Errorf("SendInput: %w", err)
	}
	return nil
}

func (si *sendInput) press(p scroll.Point) error {
	return si.send(p, mouseeventfLeftDown)
}

func (si *sendInput) drag(p scroll.Point) error {
	return si.send(p, 0)
}

func (si *sendInput) release(p scroll.Point) error {
	return si.send(p, mouseeventfLeftUp)
}
