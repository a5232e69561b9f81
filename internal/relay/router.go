// Package relay routes inbound client events to room handlers and fans the
// resulting events out to the right audience. The Router is the only entry
// point for event traffic; it owns validation, room resolution, and the
// disconnect cascade.
package relay

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/metrics"
)

// Sender delivers an encoded outbound event to one connection. Delivery is
// fire-and-forget: the router consumes no acknowledgment or backpressure
// signal, and a slow or mid-disconnect consumer simply misses the event.
type Sender interface {
	Send(connectionID string, data []byte)
}

// senderInfo is the resolved view of the connection that produced an
// inbound event, handed to room handlers.
type senderInfo struct {
	ConnectionID string
	Identity     *UserIdentity
}

// handlerFunc mutates room state and returns the outbound events to fan out.
// It runs with the room's mutex held, so handler invocations for the same
// room never interleave.
type handlerFunc func(r *Router, room *Room, sender senderInfo, payload json.RawMessage) ([]Outbound, error)

var roomHandlers = map[RoomKind]map[string]handlerFunc{
	RoomKindChat: {
		EventSendMessage: handleSendMessage,
		EventSetTyping:   handleSetTyping,
	},
	RoomKindDocument: {
		EventContentChange: handleContentChange,
		EventCursorMove:    handleCursorMove,
	},
	RoomKindWhiteboard: {
		EventDrawingStart: handleDrawingStart,
		EventDrawingMove:  handleDrawingMove,
		EventDrawingEnd:   handleDrawingEnd,
		EventClear:        handleClear,
	},
}

// Options configures router policy.
type Options struct {
	// AutoCreateRooms makes join-room create an ephemeral chat room when the
	// id is unknown. With the flag off, joining an undeclared room fails
	// with RoomNotFound.
	AutoCreateRooms bool
}

// Router demultiplexes inbound events by (room kind, event name) and
// broadcasts handler output to the resolved connection set.
type Router struct {
	registry   *Registry
	store      *Store
	sender     Sender
	autoCreate bool
	log        zerolog.Logger
}

// NewRouter wires a router to its registry, store, and transport sender.
func NewRouter(registry *Registry, store *Store, sender Sender, opts Options, log zerolog.Logger) *Router {
	return &Router{
		registry:   registry,
		store:      store,
		sender:     sender,
		autoCreate: opts.AutoCreateRooms,
		log:        log.With().Str("component", "router").Logger(),
	}
}

// Connect registers a fresh transport connection and sends it the current
// room list.
func (r *Router) Connect(connectionID string) {
	r.registry.Register(connectionID)
	metrics.ConnectionsActive.Inc()
	metrics.ConnectionsTotal.Inc()

	r.sendTo(connectionID, EventRoomListUpdate, RoomListPayload{Rooms: r.store.Summaries()})
	r.log.Info().Str("connection", connectionID).Int("connections", r.registry.Count()).Msg("connection registered")
}

// Disconnect runs the disconnect cascade: deregister the connection, then
// for every room it belonged to finish any active whiteboard stroke, drop
// its document cursor, leave the membership, and notify the remaining
// members.
func (r *Router) Disconnect(connectionID string) {
	identity, _ := r.registry.Identity(connectionID)
	rooms, ok := r.registry.Deregister(connectionID)
	if !ok {
		return
	}
	metrics.ConnectionsActive.Dec()

	for _, roomID := range rooms {
		r.disconnectFromRoom(roomID, connectionID, identity)
	}
	if len(rooms) > 0 {
		r.broadcastRoomList()
	}
	r.log.Info().Str("connection", connectionID).Int("connections", r.registry.Count()).Msg("connection deregistered")
}

func (r *Router) disconnectFromRoom(roomID, connectionID string, identity *UserIdentity) {
	_ = r.store.Mutate(roomID, func(room *Room) error {
		if !room.hasMember(connectionID) {
			return nil
		}

		var outs []Outbound
		switch room.Kind {
		case RoomKindWhiteboard:
			// Treat the disconnect as an implicit drawing-end.
			if room.whiteboard.promote(connectionID) {
				outs = append(outs, Outbound{AudienceRoomExceptSender, EventStrokeEnd, StrokeEndPayload{RoomID: roomID, ConnectionID: connectionID}})
			}
		case RoomKindDocument:
			if room.document.removeCursor(connectionID) {
				outs = append(outs, Outbound{AudienceRoomExceptSender, EventCursorRemoved, CursorRemovedPayload{RoomID: roomID, ConnectionID: connectionID}})
			}
		}
		outs = append(outs, Outbound{AudienceRoomExceptSender, EventMemberLeft, MemberPayload{RoomID: roomID, ConnectionID: connectionID, User: identity}})
		r.fanOut(room, connectionID, outs)
		return nil
	})
	r.store.Leave(roomID, connectionID)
}

// HandleMessage processes one raw inbound frame from the transport. All
// failures are recoverable: they are reported to the sender as an "error"
// event and never affect other connections or rooms.
func (r *Router) HandleMessage(connectionID string, raw []byte) {
	if !r.registry.IsRegistered(connectionID) {
		r.reportError(connectionID, newError(CodeUnknownConnection, "connection %q is not registered", connectionID))
		return
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.reportError(connectionID, newError(CodeUnsupportedEvent, "undecodable event envelope"))
		return
	}

	if err := r.dispatch(connectionID, env); err != nil {
		r.reportError(connectionID, err)
		return
	}
	metrics.EventsTotal.WithLabelValues(env.Event).Inc()
}

func (r *Router) dispatch(connectionID string, env Envelope) error {
	switch env.Event {
	case EventLogin:
		return r.handleLogin(connectionID, env.Payload)
	case EventCreateRoom:
		return r.handleCreateRoom(connectionID, env.Payload)
	case EventJoinRoom:
		return r.handleJoinRoom(connectionID, env.Payload)
	case EventLeaveRoom:
		return r.handleLeaveRoom(connectionID, env.Payload)
	default:
		return r.dispatchRoomEvent(connectionID, env)
	}
}

func (r *Router) handleLogin(connectionID string, payload json.RawMessage) error {
	var p LoginPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Username == "" {
		return errMalformedPayload(EventLogin)
	}

	id := p.UserID
	if id == "" {
		id = uuid.NewString()
	}
	if err := r.registry.Authenticate(connectionID, UserIdentity{ID: id, DisplayName: p.Username}); err != nil {
		return err
	}
	r.log.Info().Str("connection", connectionID).Str("username", p.Username).Msg("connection logged in")
	return nil
}

func (r *Router) handleCreateRoom(connectionID string, payload json.RawMessage) error {
	var p CreateRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		return errMalformedPayload(EventCreateRoom)
	}

	kind := RoomKindChat
	if p.Kind != "" {
		parsed, ok := ParseRoomKind(p.Kind)
		if !ok {
			return errMalformedPayload(EventCreateRoom)
		}
		kind = parsed
	}

	if _, err := r.store.GetOrCreate(p.RoomID, kind, true); err != nil {
		return err
	}
	r.log.Info().Str("connection", connectionID).Str("room", p.RoomID).Str("kind", string(kind)).Msg("room created")
	r.broadcastRoomList()
	return nil
}

func (r *Router) handleJoinRoom(connectionID string, payload json.RawMessage) error {
	var p JoinRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		return errMalformedPayload(EventJoinRoom)
	}

	created := false
	if _, ok := r.store.Get(p.RoomID); !ok {
		if !r.autoCreate {
			return newError(CodeRoomNotFound, "room %q does not exist", p.RoomID)
		}
		// Auto-created rooms are ephemeral chat rooms; join-room carries no kind.
		if _, err := r.store.GetOrCreate(p.RoomID, RoomKindChat, true); err != nil {
			return err
		}
		created = true
	}

	identity, _ := r.registry.Identity(connectionID)
	err := r.store.Mutate(p.RoomID, func(room *Room) error {
		// The connection may disconnect between the registration check in
		// HandleMessage and this point. Marking the join under the room's
		// lock makes the two orderings safe: either the mark fails here, or
		// Deregister returns this room and the cascade removes the member.
		if !r.registry.markJoined(connectionID, p.RoomID) {
			return newError(CodeUnknownConnection, "connection %q is not registered", connectionID)
		}
		room.members[connectionID] = struct{}{}
		room.touch()
		r.fanOut(room, connectionID, []Outbound{
			{AudienceSender, snapshotEvent(room.Kind), snapshotPayload(room)},
			{AudienceRoomExceptSender, EventMemberJoined, MemberPayload{RoomID: p.RoomID, ConnectionID: connectionID, User: identity}},
		})
		return nil
	})
	if err != nil {
		if created {
			// Drop the room auto-created for a join that never completed.
			r.store.Leave(p.RoomID, connectionID)
		}
		return err
	}

	r.log.Info().Str("connection", connectionID).Str("room", p.RoomID).Msg("joined room")
	r.broadcastRoomList()
	return nil
}

func (r *Router) handleLeaveRoom(connectionID string, payload json.RawMessage) error {
	var p LeaveRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.RoomID == "" {
		return errMalformedPayload(EventLeaveRoom)
	}

	identity, _ := r.registry.Identity(connectionID)
	err := r.store.Mutate(p.RoomID, func(room *Room) error {
		if !room.hasMember(connectionID) {
			return newError(CodeNotRoomMember, "connection %q is not in room %q", connectionID, p.RoomID)
		}
		r.fanOut(room, connectionID, []Outbound{
			{AudienceRoomExceptSender, EventMemberLeft, MemberPayload{RoomID: p.RoomID, ConnectionID: connectionID, User: identity}},
		})
		return nil
	})
	if err != nil {
		return err
	}

	r.store.Leave(p.RoomID, connectionID)
	r.registry.markLeft(connectionID, p.RoomID)
	r.log.Info().Str("connection", connectionID).Str("room", p.RoomID).Msg("left room")
	r.broadcastRoomList()
	return nil
}

// dispatchRoomEvent handles kind-specific events. The handler runs and its
// room-scoped fan-out completes under the room's lock, so members observe
// outbound events in router acceptance order.
func (r *Router) dispatchRoomEvent(connectionID string, env Envelope) error {
	var target struct {
		RoomID string `json:"roomId"`
	}
	if len(env.Payload) > 0 {
		_ = json.Unmarshal(env.Payload, &target)
	}
	if target.RoomID == "" {
		return errMalformedPayload(env.Event)
	}

	identity, ok := r.registry.Identity(connectionID)
	if !ok {
		return newError(CodeUnknownConnection, "connection %q is not registered", connectionID)
	}
	sender := senderInfo{ConnectionID: connectionID, Identity: identity}

	return r.store.Mutate(target.RoomID, func(room *Room) error {
		if !room.hasMember(connectionID) {
			return newError(CodeNotRoomMember, "connection %q is not in room %q", connectionID, target.RoomID)
		}

		handler, ok := roomHandlers[room.Kind][env.Event]
		if !ok {
			return newError(CodeUnsupportedEvent, "event %q is not supported in %s rooms", env.Event, room.Kind)
		}

		outs, err := handler(r, room, sender, env.Payload)
		if err != nil {
			return err
		}
		room.touch()
		r.fanOut(room, connectionID, outs)
		return nil
	})
}

func snapshotEvent(kind RoomKind) string {
	switch kind {
	case RoomKindDocument:
		return EventDocumentState
	case RoomKindWhiteboard:
		return EventWhiteboardState
	default:
		return EventChatHistory
	}
}

// snapshotPayload builds the join-time state snapshot. Called with the
// room's mutex held.
func snapshotPayload(room *Room) any {
	switch room.Kind {
	case RoomKindDocument:
		cursors := make([]CursorState, 0, len(room.document.cursors))
		for connID, pos := range room.document.cursors {
			cursors = append(cursors, CursorState{ConnectionID: connID, X: pos.X, Y: pos.Y})
		}
		return DocumentStatePayload{
			RoomID:  room.ID,
			Content: room.document.Content,
			Version: room.document.Version,
			Cursors: cursors,
		}
	case RoomKindWhiteboard:
		return WhiteboardStatePayload{
			RoomID:        room.ID,
			Strokes:       room.whiteboard.CompletedStrokes(),
			ActiveStrokes: room.whiteboard.ActiveStrokes(),
		}
	default:
		return ChatHistoryPayload{RoomID: room.ID, Messages: room.chat.History()}
	}
}

// fanOut delivers handler output. Room-scoped audiences resolve against the
// locked room's membership; Broadcast resolves against every registered
// connection.
func (r *Router) fanOut(room *Room, senderID string, outs []Outbound) {
	for _, out := range outs {
		data, err := encodeEnvelope(out.Event, out.Payload)
		if err != nil {
			r.log.Error().Err(err).Str("event", out.Event).Msg("failed to encode outbound event")
			continue
		}

		var targets []string
		switch out.Audience {
		case AudienceSender:
			targets = []string{senderID}
		case AudienceRoom:
			targets = room.memberIDs()
		case AudienceRoomExceptSender:
			for _, id := range room.memberIDs() {
				if id != senderID {
					targets = append(targets, id)
				}
			}
		case AudienceBroadcast:
			targets = r.registry.ConnectionIDs()
		}

		for _, id := range targets {
			r.sender.Send(id, data)
			metrics.DeliveriesTotal.Inc()
		}
	}
}

func (r *Router) broadcastRoomList() {
	data, err := encodeEnvelope(EventRoomListUpdate, RoomListPayload{Rooms: r.store.Summaries()})
	if err != nil {
		r.log.Error().Err(err).Msg("failed to encode room list")
		return
	}
	for _, id := range r.registry.ConnectionIDs() {
		r.sender.Send(id, data)
		metrics.DeliveriesTotal.Inc()
	}
}

func (r *Router) sendTo(connectionID, event string, payload any) {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	r.sender.Send(connectionID, data)
	metrics.DeliveriesTotal.Inc()
}

// reportError sends a recoverable error back to the originating connection
// only. Errors are never broadcast and never fatal.
func (r *Router) reportError(connectionID string, err error) {
	var relayErr *Error
	if !errors.As(err, &relayErr) {
		r.log.Error().Err(err).Str("connection", connectionID).Msg("unexpected dispatch error")
		relayErr = newError(CodeUnsupportedEvent, "invalid request")
	}

	metrics.EventErrorsTotal.WithLabelValues(string(relayErr.Code)).Inc()
	r.log.Debug().Str("connection", connectionID).Str("code", string(relayErr.Code)).Str("reason", relayErr.Message).Msg("event rejected")
	r.sendTo(connectionID, EventError, ErrorPayload{Code: relayErr.Code, Message: relayErr.Message})
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: body})
}
