// Package registry tracks live connections: which identity owns which
// connection handle, and which signaling rooms a handle has joined. All
// state is process-local and vanishes on restart.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/models"
)

// Peer is a live connection able to receive signaling events. Send must
// not block; implementations report false when the peer's buffer is full.
type Peer interface {
	Handle() string
	Send(evt models.Event) bool
}

// Departure is the atomic result of unregistering a handle: the identity
// that was released, if the handle was its last-registered connection,
// and the remaining members of every room the handle was in.
type Departure struct {
	Identity string
	Rooms    map[string][]Peer
}

// Registry is the identity↔connection and room-membership map. Every
// mutation is a single lock-held step; there is no read-modify-write
// across operations, so concurrent connection handlers cannot lose
// updates to each other.
type Registry struct {
	mu         sync.RWMutex
	peers      map[string]Peer                // handle -> peer, every tracked connection
	byIdentity map[string]Peer                // identity -> last-registered peer
	identities map[string]string              // handle -> declared identity
	rooms      map[string]map[string]Peer     // roomTag -> handle -> peer
	peerRooms  map[string]map[string]struct{} // handle -> joined roomTags
	log        zerolog.Logger
}

// New creates an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		peers:      make(map[string]Peer),
		byIdentity: make(map[string]Peer),
		identities: make(map[string]string),
		rooms:      make(map[string]map[string]Peer),
		peerRooms:  make(map[string]map[string]struct{}),
		log:        log.With().Str("component", "registry").Logger(),
	}
}

// Track records a connection at transport open, before it has declared an
// identity or joined a room.
func (r *Registry) Track(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.Handle()] = p
}

// PeerByHandle returns a tracked connection by its handle. Room-dialect
// call control addresses peers this way.
func (r *Registry) PeerByHandle(handle string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[handle]
	return p, ok
}

// Register binds an identity to a peer, replacing any prior binding for
// that identity. Overwrite is deliberate: the most recent device wins
// point-to-point delivery.
func (r *Registry) Register(identity string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := p.Handle()
	if prev, ok := r.identities[handle]; ok && prev != identity {
		if cur, ok := r.byIdentity[prev]; ok && cur.Handle() == handle {
			delete(r.byIdentity, prev)
		}
	}
	r.peers[handle] = p
	r.byIdentity[identity] = p
	r.identities[handle] = identity
	r.log.Debug().Str("identity", identity).Str("handle", handle).Msg("registered")
}

// Lookup returns the last-registered peer for an identity. Absence is a
// normal outcome, not an error.
func (r *Registry) Lookup(identity string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byIdentity[identity]
	return p, ok
}

// IdentityOf returns the identity a handle declared, if any.
func (r *Registry) IdentityOf(handle string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[handle]
	return id, ok
}

// JoinRoom adds a peer to a room and returns the members that were
// already present, for the peerJoined broadcast. Joining twice is a
// no-op with the same return.
func (r *Registry) JoinRoom(roomTag string, p Peer) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := p.Handle()
	room, ok := r.rooms[roomTag]
	if !ok {
		room = make(map[string]Peer)
		r.rooms[roomTag] = room
	}

	prior := make([]Peer, 0, len(room))
	for h, member := range room {
		if h != handle {
			prior = append(prior, member)
		}
	}

	room[handle] = p
	r.peers[handle] = p
	joined, ok := r.peerRooms[handle]
	if !ok {
		joined = make(map[string]struct{})
		r.peerRooms[handle] = joined
	}
	joined[roomTag] = struct{}{}
	return prior
}

// LeaveRoom removes a handle from a room and returns the remaining
// members. Leaving a room the handle never joined is a no-op.
func (r *Registry) LeaveRoom(roomTag, handle string) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(roomTag, handle)
}

// Members returns the current members of a room, excluding the given
// handle. Useful for room-wide broadcasts from one member.
func (r *Registry) Members(roomTag, exceptHandle string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomTag]
	members := make([]Peer, 0, len(room))
	for h, member := range room {
		if h != exceptHandle {
			members = append(members, member)
		}
	}
	return members
}

// Unregister removes every trace of a handle in one step: identity
// binding (only if this handle was the last registered for it) and all
// room memberships. Idempotent; a second call returns an empty Departure.
func (r *Registry) Unregister(p Peer) Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := p.Handle()
	dep := Departure{Rooms: make(map[string][]Peer)}
	delete(r.peers, handle)

	if identity, ok := r.identities[handle]; ok {
		delete(r.identities, handle)
		if cur, ok := r.byIdentity[identity]; ok && cur.Handle() == handle {
			delete(r.byIdentity, identity)
			dep.Identity = identity
		}
	}

	for roomTag := range r.peerRooms[handle] {
		dep.Rooms[roomTag] = r.leaveLocked(roomTag, handle)
	}
	delete(r.peerRooms, handle)

	r.log.Debug().Str("handle", handle).Str("identity", dep.Identity).Int("rooms", len(dep.Rooms)).Msg("unregistered")
	return dep
}

func (r *Registry) leaveLocked(roomTag, handle string) []Peer {
	room, ok := r.rooms[roomTag]
	if !ok {
		return nil
	}
	delete(room, handle)
	if joined, ok := r.peerRooms[handle]; ok {
		delete(joined, roomTag)
	}
	if len(room) == 0 {
		delete(r.rooms, roomTag)
		return nil
	}
	remaining := make([]Peer, 0, len(room))
	for _, member := range room {
		remaining = append(remaining, member)
	}
	return remaining
}
