// Package relay implements the chat room handler: message history with
// ring-buffer eviction and ephemeral typing indicators.
package relay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// handleSendMessage appends a message to the room history and delivers it to
// the whole room, sender included. Requires a logged-in sender.
func handleSendMessage(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "send-message requires login")
	}

	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Text == "" {
		return nil, errMalformedPayload(EventSendMessage)
	}

	msg := Message{
		ID:         uuid.NewString(),
		SenderID:   sender.Identity.ID,
		SenderName: sender.Identity.DisplayName,
		Text:       p.Text,
		CreatedAt:  time.Now().UTC(),
	}
	room.chat.append(msg)

	return []Outbound{
		{AudienceRoom, EventMessage, MessageEventPayload{RoomID: room.ID, Message: msg}},
	}, nil
}

// handleSetTyping relays a typing indicator to the rest of the room without
// touching state. No stop event is guaranteed; receivers expire an active
// indicator locally after roughly one second.
func handleSetTyping(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "set-typing requires login")
	}

	var p SetTypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errMalformedPayload(EventSetTyping)
	}

	return []Outbound{
		{AudienceRoomExceptSender, EventTyping, TypingEventPayload{
			RoomID:   room.ID,
			Who:      sender.Identity.DisplayName,
			IsTyping: p.IsTyping,
		}},
	}, nil
}
