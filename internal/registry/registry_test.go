package registry

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/models"
)

type fakePeer struct {
	handle string
	events []models.Event
}

func (f *fakePeer) Handle() string { return f.handle }

func (f *fakePeer) Send(evt models.Event) bool {
	f.events = append(f.events, evt)
	return true
}

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestRegisterAndLookup(t *testing.T) {
	r := newTestRegistry()
	p := &fakePeer{handle: "h1"}

	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("expected lookup miss before register")
	}

	r.Register("alice", p)
	got, ok := r.Lookup("alice")
	if !ok || got.Handle() != "h1" {
		t.Fatalf("expected handle h1, got %v ok=%v", got, ok)
	}

	if id, ok := r.IdentityOf("h1"); !ok || id != "alice" {
		t.Fatalf("expected reverse lookup alice, got %q ok=%v", id, ok)
	}
}

func TestRegisterLastHandleWins(t *testing.T) {
	r := newTestRegistry()
	first := &fakePeer{handle: "h1"}
	second := &fakePeer{handle: "h2"}

	r.Register("alice", first)
	r.Register("alice", second)

	got, ok := r.Lookup("alice")
	if !ok || got.Handle() != "h2" {
		t.Fatalf("expected last-registered handle h2, got %v", got)
	}
}

func TestUnregisterKeepsNewerBinding(t *testing.T) {
	r := newTestRegistry()
	first := &fakePeer{handle: "h1"}
	second := &fakePeer{handle: "h2"}
	r.Register("alice", first)
	r.Register("alice", second)

	// Closing the superseded first connection must not break routing to
	// the newer one.
	dep := r.Unregister(first)
	if dep.Identity != "" {
		t.Fatalf("expected no identity release for stale handle, got %q", dep.Identity)
	}
	if got, ok := r.Lookup("alice"); !ok || got.Handle() != "h2" {
		t.Fatalf("expected h2 to stay routable, got %v ok=%v", got, ok)
	}

	dep = r.Unregister(second)
	if dep.Identity != "alice" {
		t.Fatalf("expected alice released, got %q", dep.Identity)
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("expected alice unavailable after unregister")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := newTestRegistry()
	p := &fakePeer{handle: "h1"}
	r.Register("alice", p)

	r.Unregister(p)
	dep := r.Unregister(p)
	if dep.Identity != "" || len(dep.Rooms) != 0 {
		t.Fatalf("expected empty departure on second unregister, got %+v", dep)
	}
}

func TestJoinRoomReturnsPriorMembers(t *testing.T) {
	r := newTestRegistry()
	a := &fakePeer{handle: "ha"}
	b := &fakePeer{handle: "hb"}

	prior := r.JoinRoom("room-1", a)
	if len(prior) != 0 {
		t.Fatalf("expected empty room, got %d members", len(prior))
	}

	prior = r.JoinRoom("room-1", b)
	if len(prior) != 1 || prior[0].Handle() != "ha" {
		t.Fatalf("expected prior member ha, got %v", prior)
	}

	// Re-join is a no-op and never reports the joiner to itself.
	prior = r.JoinRoom("room-1", b)
	if len(prior) != 1 || prior[0].Handle() != "ha" {
		t.Fatalf("expected re-join to report ha only, got %v", prior)
	}
}

func TestLeaveRoomNeverJoinedIsNoop(t *testing.T) {
	r := newTestRegistry()
	a := &fakePeer{handle: "ha"}
	r.JoinRoom("room-1", a)

	remaining := r.LeaveRoom("room-1", "ghost")
	if len(remaining) != 1 {
		t.Fatalf("expected ha to remain, got %v", remaining)
	}
	remaining = r.LeaveRoom("no-such-room", "ha")
	if remaining != nil {
		t.Fatalf("expected nil for unknown room, got %v", remaining)
	}
}

func TestUnregisterDepartsAllRooms(t *testing.T) {
	r := newTestRegistry()
	a := &fakePeer{handle: "ha"}
	b := &fakePeer{handle: "hb"}
	c := &fakePeer{handle: "hc"}

	r.Register("alice", a)
	r.JoinRoom("r1", a)
	r.JoinRoom("r2", a)
	r.JoinRoom("r1", b)
	r.JoinRoom("r2", c)

	dep := r.Unregister(a)
	if dep.Identity != "alice" {
		t.Fatalf("expected alice released, got %q", dep.Identity)
	}
	if len(dep.Rooms) != 2 {
		t.Fatalf("expected 2 rooms in departure, got %d", len(dep.Rooms))
	}
	if rem := dep.Rooms["r1"]; len(rem) != 1 || rem[0].Handle() != "hb" {
		t.Fatalf("expected hb remaining in r1, got %v", rem)
	}
	if rem := dep.Rooms["r2"]; len(rem) != 1 || rem[0].Handle() != "hc" {
		t.Fatalf("expected hc remaining in r2, got %v", rem)
	}
}

func TestMembersExcludesCaller(t *testing.T) {
	r := newTestRegistry()
	a := &fakePeer{handle: "ha"}
	b := &fakePeer{handle: "hb"}
	r.JoinRoom("r1", a)
	r.JoinRoom("r1", b)

	members := r.Members("r1", "ha")
	if len(members) != 1 || members[0].Handle() != "hb" {
		t.Fatalf("expected only hb, got %v", members)
	}
}
