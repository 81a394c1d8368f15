//go:build !darwin && !windows

package input

import (
	"eyescroll/internal/scroll"
)

// Injector represents a stub input injector
type Injector struct{}

// NewInjector creates a new stub injector
func NewInjector() *Injector {
	return &Injector{}
}

// Available reports whether synthetic input can be posted (never here)
func (i *Injector) Available() bool {
	return false
}

// Swipe performs a stroke (stub)
func (i *Injector) Swipe(s scroll.Stroke) error {
	return ErrUnsupportedPlatform
}

// ScreenSize returns the primary display size (stub)
func (i *Injector) ScreenSize() (int, int, error) {
	return 0, 0, ErrUnsupportedPlatform
}
