// Package relay implements the document room handler. Concurrent edits are
// resolved last-writer-wins by router acceptance order: no merge, no
// rejection. Two in-flight edits may silently overwrite each other; this is
// a documented limitation of the protocol, not a bug.
package relay

import "encoding/json"

// handleContentChange replaces the document content and bumps the version.
// The version counts accepted mutations since room creation and strictly
// increases.
func handleContentChange(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "content-change requires login")
	}

	var p ContentChangePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errMalformedPayload(EventContentChange)
	}

	doc := room.document
	doc.Content = p.Content
	doc.Version++

	return []Outbound{
		{AudienceRoomExceptSender, EventContentUpdate, ContentUpdatePayload{
			RoomID:   room.ID,
			Content:  doc.Content,
			Version:  doc.Version,
			AuthorID: sender.Identity.ID,
		}},
	}, nil
}

// handleCursorMove records the sender's cursor and relays it, one event per
// move with no batching.
func handleCursorMove(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "cursor-move requires login")
	}

	var p CursorMovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errMalformedPayload(EventCursorMove)
	}

	room.document.setCursor(sender.ConnectionID, CursorPosition{X: p.X, Y: p.Y})

	return []Outbound{
		{AudienceRoomExceptSender, EventCursorUpdate, CursorUpdatePayload{
			RoomID:       room.ID,
			ConnectionID: sender.ConnectionID,
			UserID:       sender.Identity.ID,
			X:            p.X,
			Y:            p.Y,
		}},
	}, nil
}
