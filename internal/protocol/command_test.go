package protocol

import (
	"errors"
	"testing"

	"eyescroll/internal/scroll"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want scroll.Direction
		err  error
	}{
		{"scroll up", scroll.Up, nil},
		{"SCROLL UP", scroll.Up, nil},
		{"  scroll up  \n", scroll.Up, nil},
		{"Scroll Down\r\n", scroll.Down, nil},
		{"\tscroll down", scroll.Down, nil},
		{"scroll sideways", scroll.Center, ErrUnknownCommand},
		{"scroll  up", scroll.Center, ErrUnknownCommand},
		{"", scroll.Center, ErrUnknownCommand},
		{"up", scroll.Center, ErrUnknownCommand},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		if !errors.Is(err, tt.err) {
			t.Errorf("ParseCommand(%q) error = %v, expected %v", tt.line, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, expected %v", tt.line, got, tt.want)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	line, err := FormatCommand(scroll.Down)
	if err != nil || line != "scroll down\n" {
		t.Errorf("FormatCommand(Down) = %q, %v", line, err)
	}
	if _, err := FormatCommand(scroll.Center); !errors.Is(err, scroll.ErrNoDirection) {
		t.Errorf("Expected ErrNoDirection for Center, got %v", err)
	}
}

func TestMessagePayload(t *testing.T) {
	msg, err := NewMessage(TypeScroll, ScrollPayload{Direction: scroll.Up})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if string(msg.Payload) != `{"direction":"up"}` {
		t.Errorf("Unexpected payload %s", msg.Payload)
	}

	var p ScrollPayload
	if err := msg.Decode(&p); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Direction != scroll.Up {
		t.Errorf("Expected up, got %v", p.Direction)
	}
}
