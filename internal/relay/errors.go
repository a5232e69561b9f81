// Package relay implements the room-based fan-out core: a connection
// registry, a room store holding per-room mutable state, and an event router
// that dispatches inbound client events to room handlers and relays the
// resulting events to room members.
package relay

import "fmt"

// ErrorCode identifies a recoverable per-request failure. Codes are sent back
// to the originating connection as the payload of an "error" event and are
// never broadcast.
type ErrorCode string

// Error codes reported to clients.
const (
	CodeUnknownConnection    ErrorCode = "UNKNOWN_CONNECTION"
	CodeAlreadyAuthenticated ErrorCode = "ALREADY_AUTHENTICATED"
	CodeRoomNotFound         ErrorCode = "ROOM_NOT_FOUND"
	CodeRoomKindMismatch     ErrorCode = "ROOM_KIND_MISMATCH"
	CodeUnsupportedEvent     ErrorCode = "UNSUPPORTED_EVENT"
	CodeAlreadyDrawing       ErrorCode = "ALREADY_DRAWING"
	CodeNotAuthenticated     ErrorCode = "NOT_AUTHENTICATED"
	CodeNotRoomMember        ErrorCode = "NOT_ROOM_MEMBER"
)

// Error is a coded, client-reportable failure. Every error produced by the
// relay core is one of these; none is fatal to the process.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// errMalformedPayload covers missing or undecodable payload fields. These are
// rejected before reaching a handler and classified as unsupported input.
func errMalformedPayload(event string) *Error {
	return newError(CodeUnsupportedEvent, "malformed payload for event %q", event)
}
