// Package protocol defines the remote command grammar and the WebSocket
// event messages.
package protocol

import (
	"encoding/json"

	"eyescroll/internal/scroll"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeScroll is sent by a client to request a scroll
	TypeScroll MessageType = "scroll"

	// TypeDispatch is broadcast after a direction reached the scroll target
	TypeDispatch MessageType = "dispatch"

	// TypeGaze is broadcast for every classified frame, Center included
	TypeGaze MessageType = "gaze"

	// TypeStatus is sent to a client right after it connects
	TypeStatus MessageType = "status"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage encodes payload into a Message of the given type
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	msg := Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// ScrollPayload is the payload for TypeScroll
type ScrollPayload struct {
	Direction scroll.Direction `json:"direction"`
}

// DispatchPayload is the payload for TypeDispatch
type DispatchPayload struct {
	Direction scroll.Direction `json:"direction"`
	Origin    string           `json:"origin"`    // "gaze", "remote", "api" or "ws"
	Delivered bool             `json:"delivered"` // false when no target was connected
	Timestamp int64            `json:"ts"`        // Unix ms timestamp
}

// GazePayload is the payload for TypeGaze
type GazePayload struct {
	Direction scroll.Direction `json:"direction"`
	Delta     float64          `json:"delta"`
	Threshold float64          `json:"threshold"`
	Timestamp int64            `json:"ts"`
}
