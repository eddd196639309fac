package websocket

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// ErrInvalidRoom is returned for room names outside the post:<id> namespace
var ErrInvalidRoom = errors.New("invalid room name")

var roomPattern = regexp.MustCompile(`^post:[A-Za-z0-9_-]{1,64}$`)

// PostRoom returns the room name for a post
func PostRoom(postID string) string {
	return "post:" + postID
}

// ValidateRoom checks a client supplied room name
func ValidateRoom(room string) error {
	if !roomPattern.MatchString(room) {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

// Rooms tracks which connections watch which post. Each connection owns its
// set of rooms; the reverse index serves room-scoped broadcasts.
type Rooms struct {
	mu     sync.RWMutex
	byConn map[string]map[string]struct{}
	byRoom map[string]map[string]struct{}
}

// NewRooms creates an empty membership index
func NewRooms() *Rooms {
	return &Rooms{
		byConn: make(map[string]map[string]struct{}),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to a room. Joining twice is a no-op.
func (r *Rooms) Join(connectionID, room string) error {
	if err := ValidateRoom(room); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byConn[connectionID] == nil {
		r.byConn[connectionID] = make(map[string]struct{})
	}
	r.byConn[connectionID][room] = struct{}{}

	if r.byRoom[room] == nil {
		r.byRoom[room] = make(map[string]struct{})
	}
	r.byRoom[room][connectionID] = struct{}{}
	return nil
}

// Leave removes the connection from a room and reports whether it was a member
func (r *Rooms) Leave(connectionID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connectionID, room)
}

// LeaveAll clears every membership of a connection and returns the rooms it left
func (r *Rooms) LeaveAll(connectionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.byConn[connectionID]))
	for room := range r.byConn[connectionID] {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(connectionID, room)
	}
	sort.Strings(left)
	return left
}

func (r *Rooms) leaveLocked(connectionID, room string) bool {
	rooms, ok := r.byConn[connectionID]
	if !ok {
		return false
	}
	if _, ok := rooms[room]; !ok {
		return false
	}

	delete(rooms, room)
	if len(rooms) == 0 {
		delete(r.byConn, connectionID)
	}

	if members, ok := r.byRoom[room]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.byRoom, room)
		}
	}
	return true
}

// Members returns the connections joined to a room
func (r *Rooms) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.byRoom[room]))
	for connectionID := range r.byRoom[room] {
		members = append(members, connectionID)
	}
	sort.Strings(members)
	return members
}

// Rooms returns the rooms a connection has joined
func (r *Rooms) Rooms(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.byConn[connectionID]))
	for room := range r.byConn[connectionID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Count returns the number of non-empty rooms
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRoom)
}
