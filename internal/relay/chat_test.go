package relay_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/roomrelay/roomrelay/internal/relay"
)

func TestSendMessageDeliversToWholeRoom(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.connectAndLogin(t, "c2", "bob")
	f.join(t, "c1", "general")
	f.join(t, "c2", "general")
	f.sender.reset()

	f.send(t, "c1", relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hello"})

	for _, conn := range []string{"c1", "c2"} {
		envs := f.sender.eventsOf(conn, relay.EventMessage)
		if len(envs) != 1 {
			t.Fatalf("%s received %d message events, expected 1", conn, len(envs))
		}
		var p relay.MessageEventPayload
		if err := json.Unmarshal(envs[0].Payload, &p); err != nil {
			t.Fatalf("undecodable message payload: %v", err)
		}
		if p.RoomID != "general" || p.Message.Text != "hello" {
			t.Fatalf("unexpected message payload: %+v", p)
		}
		if p.Message.SenderName != "alice" {
			t.Fatalf("message attributed to %q, expected alice", p.Message.SenderName)
		}
		if p.Message.ID == "" || p.Message.CreatedAt.IsZero() {
			t.Fatal("message is missing server-assigned id or timestamp")
		}
	}
}

func TestSendMessageRequiresLogin(t *testing.T) {
	f := newFixture(true, 0)
	f.router.Connect("c1")
	f.join(t, "c1", "general")

	f.send(t, "c1", relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hi"})
	requireErrorCode(t, f.sender, "c1", relay.CodeNotAuthenticated)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.connectAndLogin(t, "c2", "bob")
	f.join(t, "c1", "general")

	f.send(t, "c2", relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hi"})
	requireErrorCode(t, f.sender, "c2", relay.CodeNotRoomMember)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.join(t, "c1", "general")

	f.send(t, "c1", relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general"})
	requireErrorCode(t, f.sender, "c1", relay.CodeUnsupportedEvent)
}

func TestJoinDeliversChatHistory(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.join(t, "c1", "general")
	f.send(t, "c1", relay.EventSendMessage, relay.SendMessagePayload{RoomID: "general", Text: "hi"})

	f.connectAndLogin(t, "c2", "bob")
	f.sender.reset()
	f.join(t, "c2", "general")

	snapshots := f.sender.eventsOf("c2", relay.EventChatHistory)
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 chat-history snapshot, got %d", len(snapshots))
	}
	var p relay.ChatHistoryPayload
	if err := json.Unmarshal(snapshots[0].Payload, &p); err != nil {
		t.Fatalf("undecodable chat-history payload: %v", err)
	}
	if len(p.Messages) != 1 || p.Messages[0].Text != "hi" {
		t.Fatalf("unexpected history: %+v", p.Messages)
	}

	// Only the joiner receives the snapshot.
	if got := f.sender.eventsOf("c1", relay.EventChatHistory); len(got) != 0 {
		t.Fatalf("existing member received %d chat-history events", len(got))
	}
}

func TestChatHistoryEvictsOldest(t *testing.T) {
	const capacity = 5
	f := newFixture(true, capacity)
	f.connectAndLogin(t, "c1", "alice")
	f.join(t, "c1", "general")

	for i := 0; i < capacity+3; i++ {
		f.send(t, "c1", relay.EventSendMessage, relay.SendMessagePayload{
			RoomID: "general",
			Text:   fmt.Sprintf("msg-%d", i),
		})
	}

	var history []relay.Message
	err := f.store.Mutate("general", func(room *relay.Room) error {
		history = room.Chat().History()
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}

	if len(history) != capacity {
		t.Fatalf("expected %d retained messages, got %d", capacity, len(history))
	}
	for i, msg := range history {
		want := fmt.Sprintf("msg-%d", i+3)
		if msg.Text != want {
			t.Fatalf("history[%d] = %q, expected %q", i, msg.Text, want)
		}
	}
}

func TestTypingGoesToOthersOnly(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.connectAndLogin(t, "c2", "bob")
	f.join(t, "c1", "general")
	f.join(t, "c2", "general")
	f.sender.reset()

	f.send(t, "c1", relay.EventSetTyping, relay.SetTypingPayload{RoomID: "general", IsTyping: true})

	if got := f.sender.eventsOf("c1", relay.EventTyping); len(got) != 0 {
		t.Fatalf("sender received its own typing indicator %d times", len(got))
	}
	envs := f.sender.eventsOf("c2", relay.EventTyping)
	if len(envs) != 1 {
		t.Fatalf("expected 1 typing event for c2, got %d", len(envs))
	}
	var p relay.TypingEventPayload
	if err := json.Unmarshal(envs[0].Payload, &p); err != nil {
		t.Fatalf("undecodable typing payload: %v", err)
	}
	if p.Who != "alice" || !p.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", p)
	}
}

func TestTypingStoresNothing(t *testing.T) {
	f := newFixture(true, 0)
	f.connectAndLogin(t, "c1", "alice")
	f.join(t, "c1", "general")

	f.send(t, "c1", relay.EventSetTyping, relay.SetTypingPayload{RoomID: "general", IsTyping: true})

	_ = f.store.Mutate("general", func(room *relay.Room) error {
		if got := len(room.Chat().History()); got != 0 {
			t.Fatalf("typing indicator was persisted: %d history entries", got)
		}
		return nil
	})
}
