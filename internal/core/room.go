package core

import (
	"sort"
	"sync"
)

// Member pairs a connection with the username it joined as.
// The registry only references it; the owning Session closes the connection.
type Member struct {
	Conn     Conn
	Username string
}

// RoomInfo describes a live room.
type RoomInfo struct {
	Name    string
	Members int
}

type membership struct {
	member *Member
	seq    uint64
}

// Registry maps room names to their members.
//
// A connection is in at most one room, and a room exists only while it has
// members. Callers never see the internal sets: Snapshot hands out copies.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]membership // room -> conn id -> membership
	roomOf map[string]string                // conn id -> room
	seq    uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]membership),
		roomOf: make(map[string]string),
	}
}

// Join adds m to room, creating the room if needed. Joining the room m is
// already in is a no-op; joining another room moves m out of the old one.
func (r *Registry) Join(room string, m *Member) {
	id := m.Conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.roomOf[id]; ok {
		if current == room {
			return
		}
		r.removeLocked(current, id)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]membership)
		r.rooms[room] = members
	}
	r.seq++
	members[id] = membership{member: m, seq: r.seq}
	r.roomOf[id] = room
}

// Leave removes m from room and drops the room once it is empty.
// It is a no-op when m is not in room.
func (r *Registry) Leave(room string, m *Member) {
	id := m.Conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomOf[id] != room {
		return
	}
	r.removeLocked(room, id)
}

func (r *Registry) removeLocked(room, id string) {
	members := r.rooms[room]
	delete(members, id)
	delete(r.roomOf, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Snapshot copies the members of room in join order. Later joins and leaves
// do not affect the returned slice.
func (r *Registry) Snapshot(room string) []*Member {
	r.mu.RLock()
	entries := make([]membership, 0, len(r.rooms[room]))
	for _, ms := range r.rooms[room] {
		entries = append(entries, ms)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]*Member, len(entries))
	for i, ms := range entries {
		out[i] = ms.member
	}
	return out
}

// Usernames renders the roster of room in join order.
func (r *Registry) Usernames(room string) []string {
	members := r.Snapshot(room)
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Username
	}
	return names
}

// MemberCount returns 0 for an absent room.
func (r *Registry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomOf reports the room a connection is registered in.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.roomOf[connID]
	return room, ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms lists live rooms sorted by name.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		out = append(out, RoomInfo{Name: name, Members: len(members)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
