// Package relay defines the wire envelope and the typed payloads exchanged
// over the transport, plus the audience model used for fan-out.
package relay

import "encoding/json"

// Inbound event names (client to server).
const (
	EventLogin         = "login"
	EventCreateRoom    = "create-room"
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSendMessage   = "send-message"
	EventSetTyping     = "set-typing"
	EventContentChange = "content-change"
	EventCursorMove    = "cursor-move"
	EventDrawingStart  = "drawing-start"
	EventDrawingMove   = "drawing-move"
	EventDrawingEnd    = "drawing-end"
	EventClear         = "clear"
)

// Outbound event names (server to client).
const (
	EventError           = "error"
	EventMessage         = "message"
	EventTyping          = "typing"
	EventContentUpdate   = "content-update"
	EventCursorUpdate    = "cursor-update"
	EventCursorRemoved   = "cursor-removed"
	EventStrokeStart     = "stroke-start"
	EventStrokePoint     = "stroke-point"
	EventStrokeEnd       = "stroke-end"
	EventCleared         = "cleared"
	EventMemberJoined    = "member-joined"
	EventMemberLeft      = "member-left"
	EventRoomListUpdate  = "room-list-update"
	EventChatHistory     = "chat-history"
	EventDocumentState   = "document-state"
	EventWhiteboardState = "whiteboard-state"
)

// Envelope is the framing for every message in both directions: a named
// event plus an event-specific JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Audience selects the connection set an outbound event is delivered to.
type Audience int

const (
	// AudienceSender delivers only to the connection that sent the inbound event.
	AudienceSender Audience = iota
	// AudienceRoomExceptSender delivers to every room member but the sender.
	AudienceRoomExceptSender
	// AudienceRoom delivers to every room member, sender included.
	AudienceRoom
	// AudienceBroadcast delivers to every registered connection.
	AudienceBroadcast
)

// Outbound is one event produced by a room handler, awaiting fan-out.
type Outbound struct {
	Audience Audience
	Event    string
	Payload  any
}

// Inbound payloads.

// LoginPayload binds an identity to the connection. UserID is optional; when
// empty a fresh id is generated, so duplicate usernames are possible.
type LoginPayload struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
}

// CreateRoomPayload declares a room ahead of joining it. Kind defaults to chat.
type CreateRoomPayload struct {
	RoomID string `json:"roomId"`
	Kind   string `json:"kind,omitempty"`
}

// JoinRoomPayload adds the connection to a room's membership.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// LeaveRoomPayload removes the connection from a room's membership.
type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload appends a chat message to the room history.
type SendMessagePayload struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// SetTypingPayload relays an ephemeral typing indicator. Nothing is stored
// server-side and no stop event is guaranteed: receivers must locally expire
// an active indicator after roughly one second.
type SetTypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ContentChangePayload replaces the document content (last writer wins).
type ContentChangePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// CursorMovePayload reports the sender's cursor position in a document room.
type CursorMovePayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// DrawingStartPayload begins a stroke at a point with a drawing style.
type DrawingStartPayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
}

// DrawingMovePayload extends the sender's active stroke by one point.
type DrawingMovePayload struct {
	RoomID string  `json:"roomId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// DrawingEndPayload completes the sender's active stroke.
type DrawingEndPayload struct {
	RoomID string `json:"roomId"`
}

// ClearPayload wipes a whiteboard room.
type ClearPayload struct {
	RoomID string `json:"roomId"`
}

// Outbound payloads.

// ErrorPayload carries a recoverable error back to the sender only.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// MessageEventPayload delivers one chat message to the room.
type MessageEventPayload struct {
	RoomID  string  `json:"roomId"`
	Message Message `json:"message"`
}

// TypingEventPayload relays a typing indicator to the rest of the room.
type TypingEventPayload struct {
	RoomID   string `json:"roomId"`
	Who      string `json:"who"`
	IsTyping bool   `json:"isTyping"`
}

// ContentUpdatePayload announces an accepted document mutation.
type ContentUpdatePayload struct {
	RoomID   string `json:"roomId"`
	Content  string `json:"content"`
	Version  int64  `json:"version"`
	AuthorID string `json:"authorId"`
}

// CursorUpdatePayload announces a cursor move to the rest of the room.
type CursorUpdatePayload struct {
	RoomID       string  `json:"roomId"`
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// CursorRemovedPayload announces that a member's cursor disappeared.
type CursorRemovedPayload struct {
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
}

// StrokeStartPayload announces the first point of a new stroke.
type StrokeStartPayload struct {
	RoomID       string      `json:"roomId"`
	ConnectionID string      `json:"connectionId"`
	OwnerID      string      `json:"ownerId"`
	OwnerName    string      `json:"ownerName,omitempty"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Style        StrokeStyle `json:"style"`
}

// StrokePointPayload extends a stroke already announced via stroke-start.
type StrokePointPayload struct {
	RoomID       string  `json:"roomId"`
	ConnectionID string  `json:"connectionId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// StrokeEndPayload marks a stroke as completed.
type StrokeEndPayload struct {
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
}

// ClearedPayload announces that a whiteboard was wiped.
type ClearedPayload struct {
	RoomID string `json:"roomId"`
}

// MemberPayload announces a membership change.
type MemberPayload struct {
	RoomID       string        `json:"roomId"`
	ConnectionID string        `json:"connectionId"`
	User         *UserIdentity `json:"user,omitempty"`
}

// RoomListPayload carries the current room summaries to every connection.
type RoomListPayload struct {
	Rooms []RoomSummary `json:"rooms"`
}

// ChatHistoryPayload is the join-time snapshot of a chat room.
type ChatHistoryPayload struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

// DocumentStatePayload is the join-time snapshot of a document room.
type DocumentStatePayload struct {
	RoomID  string        `json:"roomId"`
	Content string        `json:"content"`
	Version int64         `json:"version"`
	Cursors []CursorState `json:"cursors"`
}

// CursorState is one member's cursor inside a document snapshot.
type CursorState struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId,omitempty"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// WhiteboardStatePayload is the join-time snapshot of a whiteboard room.
type WhiteboardStatePayload struct {
	RoomID        string   `json:"roomId"`
	Strokes       []Stroke `json:"strokes"`
	ActiveStrokes []Stroke `json:"activeStrokes"`
}
