package protocol

import (
	"errors"
	"strings"

	"eyescroll/internal/scroll"
)

// Remote commands, compared after trimming and lower-casing
const (
	CommandScrollUp   = "scroll up"
	CommandScrollDown = "scroll down"
)

// ErrUnknownCommand is returned for any line that is not a scroll command
var ErrUnknownCommand = errors.New("protocol: unknown command")

// ParseCommand maps one command line to a direction. Surrounding whitespace,
// including the line terminator, is ignored and matching is case-insensitive.
func ParseCommand(line string) (scroll.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case CommandScrollUp:
		return scroll.Up, nil
	case CommandScrollDown:
		return scroll.Down, nil
	default:
		return scroll.Center, ErrUnknownCommand
	}
}

// FormatCommand returns the wire line for d, terminator included
func FormatCommand(d scroll.Direction) (string, error) {
	switch d {
	case scroll.Up:
		return CommandScrollUp + "\n", nil
	case scroll.Down:
		return CommandScrollDown + "\n", nil
	default:
		return "", scroll.ErrNoDirection
	}
}
