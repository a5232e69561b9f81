// Package relay owns all mutable room state through the Store type. Every
// mutation of a room funnels through Mutate, which serializes access per
// room; operations on distinct rooms proceed concurrently.
package relay

import (
	"sync"
	"time"

	"github.com/roomrelay/roomrelay/internal/metrics"
)

// RoomKind selects the state shape and handler set for a room.
type RoomKind string

// Supported room kinds.
const (
	RoomKindChat       RoomKind = "chat"
	RoomKindDocument   RoomKind = "document"
	RoomKindWhiteboard RoomKind = "whiteboard"
)

// ParseRoomKind maps a wire string onto a RoomKind.
func ParseRoomKind(s string) (RoomKind, bool) {
	switch RoomKind(s) {
	case RoomKindChat, RoomKindDocument, RoomKindWhiteboard:
		return RoomKind(s), true
	}
	return "", false
}

// DefaultChatCapacity bounds a chat room's history when no capacity is
// configured.
const DefaultChatCapacity = 50

// Message is one immutable chat message. Ordering is the order the router
// accepted the send-message events, not any sender clock.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChatState is a bounded ring of recent messages. The oldest message is
// evicted once capacity is exceeded.
type ChatState struct {
	messages []Message
	capacity int
}

func newChatState(capacity int) *ChatState {
	if capacity <= 0 {
		capacity = DefaultChatCapacity
	}
	return &ChatState{capacity: capacity}
}

func (c *ChatState) append(msg Message) {
	c.messages = append(c.messages, msg)
	if len(c.messages) > c.capacity {
		c.messages = c.messages[len(c.messages)-c.capacity:]
	}
}

// History returns a copy of the retained messages in insertion order.
func (c *ChatState) History() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Capacity returns the ring bound.
func (c *ChatState) Capacity() int { return c.capacity }

// CursorPosition is one member's cursor inside a document room.
type CursorPosition struct {
	X float64
	Y float64
}

// DocumentState is shared text content with a monotonically increasing
// version. Version counts accepted content mutations since room creation;
// it never decreases.
type DocumentState struct {
	Content string
	Version int64
	cursors map[string]CursorPosition
}

func newDocumentState() *DocumentState {
	return &DocumentState{cursors: make(map[string]CursorPosition)}
}

func (d *DocumentState) setCursor(connectionID string, pos CursorPosition) {
	d.cursors[connectionID] = pos
}

func (d *DocumentState) removeCursor(connectionID string) bool {
	if _, ok := d.cursors[connectionID]; !ok {
		return false
	}
	delete(d.cursors, connectionID)
	return true
}

// Cursors returns a copy of the cursor map.
func (d *DocumentState) Cursors() map[string]CursorPosition {
	out := make(map[string]CursorPosition, len(d.cursors))
	for id, pos := range d.cursors {
		out[id] = pos
	}
	return out
}

// Point is one sample of a stroke path.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeStyle describes how a stroke is rendered.
type StrokeStyle struct {
	Color string  `json:"color,omitempty"`
	Width float64 `json:"width,omitempty"`
}

// Stroke is an ordered point sequence attributed to one owner.
type Stroke struct {
	OwnerID   string      `json:"ownerId"`
	OwnerName string      `json:"ownerName,omitempty"`
	Points    []Point     `json:"points"`
	Style     StrokeStyle `json:"style"`
}

// WhiteboardState holds completed strokes plus at most one in-progress
// stroke per connection. A stroke is promoted from active to completed
// atomically; it never exists in both.
type WhiteboardState struct {
	completed []Stroke
	active    map[string]*Stroke
}

func newWhiteboardState() *WhiteboardState {
	return &WhiteboardState{active: make(map[string]*Stroke)}
}

// CompletedStrokes returns a copy of the finished strokes in completion order.
func (w *WhiteboardState) CompletedStrokes() []Stroke {
	out := make([]Stroke, len(w.completed))
	copy(out, w.completed)
	return out
}

// ActiveStrokes returns a copy of the in-progress strokes.
func (w *WhiteboardState) ActiveStrokes() []Stroke {
	out := make([]Stroke, 0, len(w.active))
	for _, stroke := range w.active {
		out = append(out, *stroke)
	}
	return out
}

// ActiveStroke returns the in-progress stroke for a connection, if any.
func (w *WhiteboardState) ActiveStroke(connectionID string) (*Stroke, bool) {
	stroke, ok := w.active[connectionID]
	return stroke, ok
}

// promote moves the connection's active stroke into the completed sequence.
func (w *WhiteboardState) promote(connectionID string) bool {
	stroke, ok := w.active[connectionID]
	if !ok {
		return false
	}
	delete(w.active, connectionID)
	w.completed = append(w.completed, *stroke)
	return true
}

func (w *WhiteboardState) clear() {
	w.completed = nil
	w.active = make(map[string]*Stroke)
}

// Room is one broadcast scope: a membership set plus kind-specific state.
// All fields behind mu are mutated only inside Store.Mutate.
type Room struct {
	ID        string
	Kind      RoomKind
	Ephemeral bool

	mu           sync.Mutex
	members      map[string]struct{}
	lastActivity time.Time

	chat       *ChatState
	document   *DocumentState
	whiteboard *WhiteboardState
}

func newRoom(id string, kind RoomKind, ephemeral bool, chatCapacity int) *Room {
	room := &Room{
		ID:           id,
		Kind:         kind,
		Ephemeral:    ephemeral,
		members:      make(map[string]struct{}),
		lastActivity: time.Now(),
	}
	switch kind {
	case RoomKindChat:
		room.chat = newChatState(chatCapacity)
	case RoomKindDocument:
		room.document = newDocumentState()
	case RoomKindWhiteboard:
		room.whiteboard = newWhiteboardState()
	}
	return room
}

// Chat returns the room's chat state; nil for other kinds.
func (r *Room) Chat() *ChatState { return r.chat }

// Document returns the room's document state; nil for other kinds.
func (r *Room) Document() *DocumentState { return r.document }

// Whiteboard returns the room's whiteboard state; nil for other kinds.
func (r *Room) Whiteboard() *WhiteboardState { return r.whiteboard }

func (r *Room) hasMember(connectionID string) bool {
	_, ok := r.members[connectionID]
	return ok
}

func (r *Room) memberIDs() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) touch() {
	r.lastActivity = time.Now()
}

// RoomSummary is the public view of a room used in room-list updates.
type RoomSummary struct {
	RoomID       string    `json:"roomId"`
	Kind         RoomKind  `json:"kind"`
	MemberCount  int       `json:"memberCount"`
	LastActivity time.Time `json:"lastActivity"`
}

// Store maps room ids to rooms and enforces the per-room exclusive-access
// discipline. It is the only structure shared between logical flows.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	chatCapacity int
}

// NewStore creates an empty room store. chatCapacity bounds chat history per
// room; zero or negative selects DefaultChatCapacity.
func NewStore(chatCapacity int) *Store {
	return &Store{
		rooms:        make(map[string]*Room),
		chatCapacity: chatCapacity,
	}
}

// Declare predeclares a non-ephemeral room: it survives emptiness and is
// typically created from configuration at startup.
func (s *Store) Declare(roomID string, kind RoomKind) (*Room, error) {
	return s.GetOrCreate(roomID, kind, false)
}

// GetOrCreate returns the room with the given id, creating it when absent.
// If the room already exists with a different kind the call fails with
// RoomKindMismatch and the existing room is left untouched.
func (s *Store) GetOrCreate(roomID string, kind RoomKind, ephemeral bool) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		if room.Kind != kind {
			return nil, newError(CodeRoomKindMismatch, "room %q is a %s room, not %s", roomID, room.Kind, kind)
		}
		return room, nil
	}

	room := newRoom(roomID, kind, ephemeral, s.chatCapacity)
	s.rooms[roomID] = room
	metrics.RoomsActive.Inc()
	return room, nil
}

// Get returns the room with the given id, if it exists.
func (s *Store) Get(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	return room, ok
}

// Leave removes a connection from the room's membership. Emptied ephemeral
// rooms are deleted together with their state; an emptied room never holds
// resources past this call.
func (s *Store) Leave(roomID, connectionID string) (roomEmptied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}

	room.mu.Lock()
	delete(room.members, connectionID)
	empty := len(room.members) == 0
	room.mu.Unlock()

	if empty && room.Ephemeral {
		delete(s.rooms, roomID)
		metrics.RoomsActive.Dec()
	}
	return empty
}

// Mutate runs fn with the room's mutex held. It is the sole mutation point
// for room state; handlers never touch state outside a Mutate call.
func (s *Store) Mutate(roomID string, fn func(room *Room) error) error {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return newError(CodeRoomNotFound, "room %q does not exist", roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	return fn(room)
}

// Summaries returns a snapshot of every room for room-list updates.
func (s *Store) Summaries() []RoomSummary {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		out = append(out, RoomSummary{
			RoomID:       room.ID,
			Kind:         room.Kind,
			MemberCount:  len(room.members),
			LastActivity: room.lastActivity,
		})
		room.mu.Unlock()
	}
	return out
}

// Count returns the number of live rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
