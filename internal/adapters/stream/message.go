package stream

import (
	"encoding/json"
	"time"
)

// Message types sent to stream clients.
const (
	MessageSnapshot = "fused_snapshot"
	MessagePong     = "pong"
	MessageError    = "error"
)

// Message is the envelope of every frame written to a stream client.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// command is a client-to-server frame. Only "ping" is understood.
type command struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

func serializeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
