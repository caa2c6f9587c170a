package realtime

import "encoding/json"

// Control events handled by the server itself. Every other event is
// broadcast to the message's room.
const (
	EventJoin  = "join"
	EventLeave = "leave"

	// Acknowledgements sent back to the client that joined or left.
	EventJoined = "joined"
	EventLeft   = "left"
)

// Inbound is a frame sent by a client.
type Inbound struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a frame sent to clients. Origin is the worker the event was
// first emitted on.
type Outbound struct {
	Event  string          `json:"event"`
	Room   string          `json:"room,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin"`
}
