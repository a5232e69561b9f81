package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roomrelay/roomrelay/internal/config"
	"github.com/roomrelay/roomrelay/internal/relay"
)

const testTimeout = 3 * time.Second

// testServer bundles a running relay stack behind an httptest listener.
type testServer struct {
	ts  *httptest.Server
	hub *Hub
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()

	cfg := config.New()
	cfg.AllowedOrigins = []string{"*"}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zerolog.Nop()
	registry := relay.NewRegistry()
	store := relay.NewStore(cfg.ChatHistoryCapacity)
	for _, spec := range cfg.Rooms {
		kind, ok := relay.ParseRoomKind(spec.Kind)
		if !ok {
			t.Fatalf("invalid room kind %q in test config", spec.Kind)
		}
		if _, err := store.Declare(spec.ID, kind); err != nil {
			t.Fatalf("failed to declare room %s: %v", spec.ID, err)
		}
	}

	hub := NewHub(logger)
	router := relay.NewRouter(registry, store, hub, relay.Options{AutoCreateRooms: cfg.AutoCreateRooms}, logger)
	hub.SetRouter(router)
	go hub.Run()

	srv := New(cfg, hub, logger)
	ts := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		// Shut the hub down first so hijacked WebSocket connections are
		// closed before the test server waits on them.
		if err := hub.Shutdown(testTimeout); err != nil {
			t.Errorf("hub shutdown failed: %v", err)
		}
		ts.Close()
	})

	return &testServer{ts: ts, hub: hub}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://localhost:8080"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	data, err := json.Marshal(relay.Envelope{Event: event, Payload: body})
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("failed to write %s: %v", event, err)
	}
}

// waitForEvent reads frames until one matches the wanted event name,
// discarding everything else (room-list updates arrive interleaved with
// most flows).
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) relay.Envelope {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("failed to set read deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed while waiting for %s: %v", event, err)
		}

		var env relay.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("undecodable frame: %v", err)
		}
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("timed out waiting for %s", event)
	return relay.Envelope{}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("undecodable health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func postLogin(t *testing.T, url, username string) *http.Response {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username})
	resp, err := http.Post(url+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	return resp
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	resp := postLogin(t, s.ts.URL, "alice")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var first struct {
		User relay.UserIdentity `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&first); err != nil {
		t.Fatalf("undecodable login body: %v", err)
	}
	if first.User.ID == "" || first.User.DisplayName != "alice" {
		t.Fatalf("unexpected identity: %+v", first.User)
	}

	// The same username gets the same identity back.
	resp = postLogin(t, s.ts.URL, "alice")
	defer resp.Body.Close()
	var second struct {
		User relay.UserIdentity `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&second); err != nil {
		t.Fatalf("undecodable login body: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Fatal("repeat login issued a different identity")
	}
}

func TestLoginRequiresUsername(t *testing.T) {
	s := newTestServer(t, nil)

	resp := postLogin(t, s.ts.URL, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLoginUserCap(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.MaxUsers = 1
	})

	resp := postLogin(t, s.ts.URL, "alice")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for first user, got %d", resp.StatusCode)
	}

	resp = postLogin(t, s.ts.URL, "bob")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 over the user cap, got %d", resp.StatusCode)
	}

	// An existing user still gets through at the cap.
	resp = postLogin(t, s.ts.URL, "alice")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for returning user, got %d", resp.StatusCode)
	}
}

func TestWebSocketDisallowedOrigin(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example.com"}
	})

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		conn.Close()
		t.Fatal("dial from disallowed origin succeeded")
	}
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", resp.StatusCode)
		}
	}
}

func TestChatFlowEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)

	alice := s.dial(t)
	waitForEvent(t, alice, relay.EventRoomListUpdate)
	writeEvent(t, alice, relay.EventLogin, relay.LoginPayload{Username: "alice"})
	writeEvent(t, alice, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "general"})
	waitForEvent(t, alice, relay.EventChatHistory)

	writeEvent(t, alice, relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hi"})
	env := waitForEvent(t, alice, relay.EventMessage)
	var own relay.MessageEventPayload
	if err := json.Unmarshal(env.Payload, &own); err != nil {
		t.Fatalf("undecodable message payload: %v", err)
	}
	if own.Message.Text != "hi" || own.Message.SenderName != "alice" {
		t.Fatalf("unexpected echoed message: %+v", own)
	}

	// A second participant joins and receives the history snapshot.
	bob := s.dial(t)
	waitForEvent(t, bob, relay.EventRoomListUpdate)
	writeEvent(t, bob, relay.EventLogin, relay.LoginPayload{Username: "bob"})
	writeEvent(t, bob, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "general"})

	env = waitForEvent(t, bob, relay.EventChatHistory)
	var history relay.ChatHistoryPayload
	if err := json.Unmarshal(env.Payload, &history); err != nil {
		t.Fatalf("undecodable history payload: %v", err)
	}
	if len(history.Messages) != 1 || history.Messages[0].Text != "hi" {
		t.Fatalf("unexpected history for joiner: %+v", history.Messages)
	}

	waitForEvent(t, alice, relay.EventMemberJoined)

	// Messages flow both ways once both are members.
	writeEvent(t, bob, relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hello alice"})
	env = waitForEvent(t, alice, relay.EventMessage)
	var fromBob relay.MessageEventPayload
	if err := json.Unmarshal(env.Payload, &fromBob); err != nil {
		t.Fatalf("undecodable message payload: %v", err)
	}
	if fromBob.Message.SenderName != "bob" || fromBob.Message.Text != "hello alice" {
		t.Fatalf("unexpected message from bob: %+v", fromBob)
	}
}

func TestPredeclaredRoomsOverWebSocket(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AutoCreateRooms = false
		cfg.Rooms = []config.RoomSpec{{ID: "shared-doc", Kind: "document"}}
	})

	conn := s.dial(t)
	waitForEvent(t, conn, relay.EventRoomListUpdate)
	writeEvent(t, conn, relay.EventLogin, relay.LoginPayload{Username: "alice"})

	// Joining an undeclared room fails under strict policy.
	writeEvent(t, conn, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "nowhere"})
	env := waitForEvent(t, conn, relay.EventError)
	var errPayload relay.ErrorPayload
	if err := json.Unmarshal(env.Payload, &errPayload); err != nil {
		t.Fatalf("undecodable error payload: %v", err)
	}
	if errPayload.Code != relay.CodeRoomNotFound {
		t.Fatalf("expected ROOM_NOT_FOUND, got %s", errPayload.Code)
	}

	// The predeclared document room works and identifies its kind.
	writeEvent(t, conn, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "shared-doc"})
	env = waitForEvent(t, conn, relay.EventDocumentState)
	var snapshot relay.DocumentStatePayload
	if err := json.Unmarshal(env.Payload, &snapshot); err != nil {
		t.Fatalf("undecodable snapshot payload: %v", err)
	}
	if snapshot.RoomID != "shared-doc" || snapshot.Version != 0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestDisconnectNotifiesRoom(t *testing.T) {
	s := newTestServer(t, nil)

	alice := s.dial(t)
	waitForEvent(t, alice, relay.EventRoomListUpdate)
	writeEvent(t, alice, relay.EventLogin, relay.LoginPayload{Username: "alice"})
	writeEvent(t, alice, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "general"})
	waitForEvent(t, alice, relay.EventChatHistory)

	bob := s.dial(t)
	waitForEvent(t, bob, relay.EventRoomListUpdate)
	writeEvent(t, bob, relay.EventLogin, relay.LoginPayload{Username: "bob"})
	writeEvent(t, bob, relay.EventJoinRoom, relay.JoinRoomPayload{RoomID: "general"})
	waitForEvent(t, bob, relay.EventChatHistory)
	waitForEvent(t, alice, relay.EventMemberJoined)

	bob.Close()

	env := waitForEvent(t, alice, relay.EventMemberLeft)
	var p relay.MemberPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("undecodable member-left payload: %v", err)
	}
	if p.RoomID != "general" {
		t.Fatalf("unexpected member-left payload: %+v", p)
	}
	if p.User == nil || p.User.DisplayName != "bob" {
		t.Fatalf("member-left missing identity: %+v", p)
	}
}

func TestHubShutdownDisconnectsClients(t *testing.T) {
	s := newTestServer(t, nil)

	conn := s.dial(t)
	waitForEvent(t, conn, relay.EventRoomListUpdate)

	deadline := time.Now().Add(testTimeout)
	for s.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.hub.Shutdown(testTimeout); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// The server side closed the socket; the next read fails promptly.
	_ = conn.SetReadDeadline(time.Now().Add(testTimeout))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after hub shutdown")
	}
}
