package relay_test

import (
	"errors"
	"testing"

	"github.com/roomrelay/roomrelay/internal/relay"
)

func TestRegisterAndDeregister(t *testing.T) {
	reg := relay.NewRegistry()

	reg.Register("c1")
	if !reg.IsRegistered("c1") {
		t.Fatal("registered connection not found")
	}
	if reg.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", reg.Count())
	}

	rooms, ok := reg.Deregister("c1")
	if !ok {
		t.Fatal("deregister of known connection reported unknown")
	}
	if len(rooms) != 0 {
		t.Fatalf("fresh connection reported %d joined rooms", len(rooms))
	}
	if reg.IsRegistered("c1") {
		t.Fatal("connection still registered after deregister")
	}

	if _, ok := reg.Deregister("c1"); ok {
		t.Fatal("second deregister reported success")
	}
}

func TestAuthenticateFirstLoginWins(t *testing.T) {
	reg := relay.NewRegistry()
	reg.Register("c1")

	if err := reg.Authenticate("c1", relay.UserIdentity{ID: "u1", DisplayName: "alice"}); err != nil {
		t.Fatalf("first login failed: %v", err)
	}

	err := reg.Authenticate("c1", relay.UserIdentity{ID: "u2", DisplayName: "mallory"})
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relay.CodeAlreadyAuthenticated {
		t.Fatalf("expected ALREADY_AUTHENTICATED, got %v", err)
	}

	identity, registered := reg.Identity("c1")
	if !registered || identity == nil {
		t.Fatal("identity lost after rejected re-login")
	}
	if identity.ID != "u1" || identity.DisplayName != "alice" {
		t.Fatalf("identity was overwritten: %+v", identity)
	}
}

func TestAuthenticateUnknownConnection(t *testing.T) {
	reg := relay.NewRegistry()

	err := reg.Authenticate("ghost", relay.UserIdentity{ID: "u1", DisplayName: "alice"})
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relay.CodeUnknownConnection {
		t.Fatalf("expected UNKNOWN_CONNECTION, got %v", err)
	}
}

func TestIdentityBeforeLogin(t *testing.T) {
	reg := relay.NewRegistry()
	reg.Register("c1")

	identity, registered := reg.Identity("c1")
	if !registered {
		t.Fatal("registered connection reported unknown")
	}
	if identity != nil {
		t.Fatalf("expected nil identity before login, got %+v", identity)
	}

	if _, registered := reg.Identity("ghost"); registered {
		t.Fatal("unknown connection reported registered")
	}
}

func TestIdentityReturnsCopy(t *testing.T) {
	reg := relay.NewRegistry()
	reg.Register("c1")
	if err := reg.Authenticate("c1", relay.UserIdentity{ID: "u1", DisplayName: "alice"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	first, _ := reg.Identity("c1")
	first.DisplayName = "mallory"

	second, _ := reg.Identity("c1")
	if second.DisplayName != "alice" {
		t.Fatal("mutating a returned identity leaked into the registry")
	}
}

func TestConnectionIDs(t *testing.T) {
	reg := relay.NewRegistry()
	reg.Register("c1")
	reg.Register("c2")

	ids := reg.ConnectionIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 connection ids, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen["c1"] || !seen["c2"] {
		t.Fatalf("unexpected connection ids: %v", ids)
	}
}
