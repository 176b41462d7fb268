// Package room tracks which peers are currently connected to which room.
//
// A Registry is the only shared mutable state in the signaling service. Rooms
// are created implicitly on first join and removed as soon as their last
// member leaves, so an empty room is never observable.
package room

import (
	"errors"
	"sync"
)

var (
	ErrEmptyCode     = errors.New("room code must not be empty")
	ErrAlreadyMember = errors.New("peer is already a member of the room")
)

// Status is a read-only view of a room, as reported by the status endpoint.
type Status struct {
	RoomCode  string `json:"room_code"`
	PeerCount int    `json:"peer_count"`
	Active    bool   `json:"active"`
}

// Registry maps room codes to their ordered member lists.
//
// M is the member handle type. Members are compared with ==, so M is normally
// a pointer or an interface holding a pointer.
type Registry[M comparable] struct {
	mu    sync.Mutex
	rooms map[string][]M
}

func NewRegistry[M comparable]() *Registry[M] {
	return &Registry[M]{
		rooms: make(map[string][]M),
	}
}

// Join appends m to the room, creating the room if needed. It returns the
// member count after the join.
func (r *Registry[M]) Join(code string, m M) (int, error) {
	if code == "" {
		return 0, ErrEmptyCode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[code]
	for _, existing := range members {
		if existing == m {
			return len(members), ErrAlreadyMember
		}
	}
	members = append(members, m)
	r.rooms[code] = members
	return len(members), nil
}

// Leave removes m from the room. Leaving an absent room, or a room m is not a
// member of, is a no-op so cleanup paths may call it more than once.
//
// remaining is the member count after the call; removed reports whether m was
// actually a member.
func (r *Registry[M]) Leave(code string, m M) (remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[code]
	if !ok {
		return 0, false
	}

	idx := -1
	for i, existing := range members {
		if existing == m {
			idx = i
			break
		}
	}
	if idx < 0 {
		return len(members), false
	}

	// Build a fresh slice so snapshots handed out earlier never alias the
	// backing array we keep mutating.
	next := make([]M, 0, len(members)-1)
	next = append(next, members[:idx]...)
	next = append(next, members[idx+1:]...)
	if len(next) == 0 {
		delete(r.rooms, code)
		return 0, true
	}
	r.rooms[code] = next
	return len(next), true
}

// Members returns a copy of the room's members in join order. The result is
// safe to iterate while the room changes.
func (r *Registry[M]) Members(code string) []M {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[code]
	if len(members) == 0 {
		return nil
	}
	out := make([]M, len(members))
	copy(out, members)
	return out
}

func (r *Registry[M]) PeerCount(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[code])
}

func (r *Registry[M]) Exists(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[code]
	return ok
}

func (r *Registry[M]) Status(code string) Status {
	n := r.PeerCount(code)
	return Status{
		RoomCode:  code,
		PeerCount: n,
		Active:    n > 0,
	}
}

// Stats returns the number of live rooms and the total number of members
// across them.
func (r *Registry[M]) Stats() (rooms, peers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, members := range r.rooms {
		peers += len(members)
	}
	return len(r.rooms), peers
}
