// Package relay implements the whiteboard room handler. Each connection is
// a small state machine, Idle -> Drawing -> Idle: drawing-start opens a
// stroke, drawing-move extends it, drawing-end promotes it to the completed
// sequence. Late or out-of-order move/end events are silent no-ops.
package relay

import "encoding/json"

// handleDrawingStart opens a stroke for the sender. A second start without
// an intervening end fails with AlreadyDrawing.
func handleDrawingStart(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "drawing-start requires login")
	}

	var p DrawingStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errMalformedPayload(EventDrawingStart)
	}

	board := room.whiteboard
	if _, active := board.active[sender.ConnectionID]; active {
		return nil, newError(CodeAlreadyDrawing, "connection %q already has an active stroke", sender.ConnectionID)
	}

	style := StrokeStyle{Color: p.Color, Width: p.Width}
	board.active[sender.ConnectionID] = &Stroke{
		OwnerID:   sender.Identity.ID,
		OwnerName: sender.Identity.DisplayName,
		Points:    []Point{{X: p.X, Y: p.Y}},
		Style:     style,
	}

	return []Outbound{
		{AudienceRoomExceptSender, EventStrokeStart, StrokeStartPayload{
			RoomID:       room.ID,
			ConnectionID: sender.ConnectionID,
			OwnerID:      sender.Identity.ID,
			OwnerName:    sender.Identity.DisplayName,
			X:            p.X,
			Y:            p.Y,
			Style:        style,
		}},
	}, nil
}

// handleDrawingMove appends a point to the sender's active stroke. With no
// active stroke the event is dropped silently; a late move after an end or a
// disconnect is normal, not an error.
func handleDrawingMove(_ *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error) {
	var p DrawingMovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errMalformedPayload(EventDrawingMove)
	}

	stroke, ok := room.whiteboard.active[sender.ConnectionID]
	if !ok {
		return nil, nil
	}
	stroke.Points = append(stroke.Points, Point{X: p.X, Y: p.Y})

	return []Outbound{
		{AudienceRoomExceptSender, EventStrokePoint, StrokePointPayload{
			RoomID:       room.ID,
			ConnectionID: sender.ConnectionID,
			X:            p.X,
			Y:            p.Y,
		}},
	}, nil
}

// handleDrawingEnd atomically moves the active stroke to the completed
// sequence. No-op when the sender has no active stroke.
func handleDrawingEnd(_ *Router, room *Room, sender senderInfo, _ json.RawMessage) ([]Outbound, error) {
	if !room.whiteboard.promote(sender.ConnectionID) {
		return nil, nil
	}

	return []Outbound{
		{AudienceRoomExceptSender, EventStrokeEnd, StrokeEndPayload{
			RoomID:       room.ID,
			ConnectionID: sender.ConnectionID,
		}},
	}, nil
}

// handleClear wipes both completed and active strokes and tells the whole
// room, sender included.
func handleClear(_ *Router, room *Room, sender senderInfo, _ json.RawMessage) ([]Outbound, error) {
	if sender.Identity == nil {
		return nil, newError(CodeNotAuthenticated, "clear requires login")
	}

	room.whiteboard.clear()

	return []Outbound{
		{AudienceRoom, EventCleared, ClearedPayload{RoomID: room.ID}},
	}, nil
}
