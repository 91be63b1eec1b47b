package ws

import (
	"sort"
	"sync"
)

// Adapter tracks which sockets of a namespace are in which rooms.
type Adapter struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	sids  map[string]map[string]struct{}
}

// NewAdapter creates an empty room adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		rooms: make(map[string]map[string]struct{}),
		sids:  make(map[string]map[string]struct{}),
	}
}

// Add puts socket id into each room.
func (a *Adapter) Add(id string, rooms ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, room := range rooms {
		joined, ok := a.sids[id]
		if !ok {
			joined = make(map[string]struct{})
			a.sids[id] = joined
		}
		joined[room] = struct{}{}

		members, ok := a.rooms[room]
		if !ok {
			members = make(map[string]struct{})
			a.rooms[room] = members
		}
		members[id] = struct{}{}
	}
}

// Del removes socket id from room. Empty rooms are dropped.
func (a *Adapter) Del(id, room string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delLocked(id, room)
}

func (a *Adapter) delLocked(id, room string) {
	if joined, ok := a.sids[id]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(a.sids, id)
		}
	}

	if members, ok := a.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(a.rooms, room)
		}
	}
}

// DelAll removes socket id from every room it joined.
func (a *Adapter) DelAll(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for room := range a.sids[id] {
		a.delLocked(id, room)
	}
}

// SocketsIn returns the distinct socket ids in any of rooms, or every known
// socket id when no room is given. The result is sorted.
func (a *Adapter) SocketsIn(rooms ...string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := make(map[string]struct{})
	if len(rooms) == 0 {
		for id := range a.sids {
			seen[id] = struct{}{}
		}
	} else {
		for _, room := range rooms {
			for id := range a.rooms[room] {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RoomsOf returns the sorted rooms socket id has joined.
func (a *Adapter) RoomsOf(id string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	joined, ok := a.sids[id]
	if !ok {
		return nil
	}

	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Rooms returns the sorted names of every non-empty room.
func (a *Adapter) Rooms() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rooms := make([]string, 0, len(a.rooms))
	for room := range a.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}
