package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType tags every frame on the wire.
type EventType string

// Client -> server events
const (
	EventJoinRoom       EventType = "joinRoom"
	EventUpdateElements EventType = "updateElements"
	EventPointerUpdate  EventType = "pointerUpdate"
	EventChatMessage    EventType = "chatMessage"
)

// Server -> client events
const (
	EventCanvasState     EventType = "canvasState"
	EventUserJoined      EventType = "userJoined"
	EventUserLeft        EventType = "userLeft"
	EventElementsUpdated EventType = "elementsUpdated"
	EventPointerUpdated  EventType = "pointerUpdated"
)

// Envelope is the frame carried over the connection: a tag plus the
// event-specific payload.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var ErrMalformed = errors.New("malformed event")

// JoinRoom admits the sender into a room.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
}

// UpdateElements replaces the room's scene snapshot.
// Elements is opaque to the server apart from being a JSON array.
type UpdateElements struct {
	RoomID   string          `json:"roomId"`
	Elements json.RawMessage `json:"elements"`
	Nickname string          `json:"nickname,omitempty"`
}

// Pointer is a transient cursor position; the server only relays it.
type Pointer struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PointerUpdate struct {
	RoomID   string  `json:"roomId"`
	Pointer  Pointer `json:"pointer"`
	Nickname string  `json:"nickname,omitempty"`
}

// ChatMessage wraps an ephemeral chat payload; nothing is retained.
type ChatPayload struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

type ChatMessage struct {
	RoomID  string      `json:"roomId"`
	Message ChatPayload `json:"message"`
}

// Outbound payloads

type UserJoined struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type UserLeft struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type ElementsUpdated struct {
	Elements json.RawMessage `json:"elements"`
	UserID   string          `json:"userId"`
	Nickname string          `json:"nickname,omitempty"`
}

type PointerUpdated struct {
	UserID   string  `json:"userId"`
	Pointer  Pointer `json:"pointer"`
	Nickname string  `json:"nickname,omitempty"`
}

type ChatBroadcast struct {
	Message ChatPayload `json:"message"`
}

// DecodeEnvelope parses a raw frame and rejects anything without a type tag.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Encode marshals an outbound event frame.
func Encode(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// validElements checks the opaque snapshot really is a JSON array.
func validElements(elements json.RawMessage) bool {
	if len(elements) == 0 {
		return false
	}
	var probe []json.RawMessage
	return json.Unmarshal(elements, &probe) == nil
}
