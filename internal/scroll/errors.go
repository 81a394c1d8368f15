package scroll

import "errors"

var (
	// ErrNoDirection is returned when Center is passed to a dispatch
	ErrNoDirection = errors.New("scroll: center is not a scroll direction")

	// ErrUnknownDirection is returned when a direction name cannot be parsed
	ErrUnknownDirection = errors.New("scroll: unknown direction")

	// ErrNoScreen is returned when the screen size is not usable
	ErrNoScreen = errors.New("scroll: screen size unavailable")
)
