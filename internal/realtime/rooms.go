package realtime

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	conversationRoomPrefix = "match_"
	personalRoomPrefix     = "user_"
)

type RoomKind int

const (
	RoomEphemeral RoomKind = iota
	RoomConversation
	RoomPersonal
)

func ConversationRoom(conversationID uint) string {
	return fmt.Sprintf("%s%d", conversationRoomPrefix, conversationID)
}

func PersonalRoom(userID uint) string {
	return fmt.Sprintf("%s%d", personalRoomPrefix, userID)
}

// ParseRoom classifies a room key. Reserved prefixes with a non-numeric
// suffix are treated as ephemeral.
func ParseRoom(room string) (RoomKind, uint) {
	for _, p := range []struct {
		prefix string
		kind   RoomKind
	}{
		{conversationRoomPrefix, RoomConversation},
		{personalRoomPrefix, RoomPersonal},
	} {
		if rest, ok := strings.CutPrefix(room, p.prefix); ok {
			id, err := strconv.ParseUint(rest, 10, 64)
			if err == nil && id > 0 {
				return p.kind, uint(id)
			}
		}
	}
	return RoomEphemeral, 0
}

// Rooms tracks which sessions are subscribed to which room
type Rooms struct {
	mu        sync.RWMutex
	members   map[string]map[string]Session
	bySession map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string]map[string]Session),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Join is idempotent and reports whether the session was added
func (r *Rooms) Join(s Session, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.members[room]
	if !ok {
		members = make(map[string]Session)
		r.members[room] = members
	}
	if _, exists := members[s.ID()]; exists {
		return false
	}
	members[s.ID()] = s

	joined, ok := r.bySession[s.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.bySession[s.ID()] = joined
	}
	joined[room] = struct{}{}
	return true
}

func (r *Rooms) Leave(sessionID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID, room)
}

func (r *Rooms) leaveLocked(sessionID, room string) bool {
	members, ok := r.members[room]
	if !ok {
		return false
	}
	if _, exists := members[sessionID]; !exists {
		return false
	}

	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.members, room)
	}

	if joined := r.bySession[sessionID]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.bySession, sessionID)
		}
	}
	return true
}

// LeaveAll drops the session from every room and returns how many it left
func (r *Rooms) LeaveAll(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.bySession[sessionID]
	left := 0
	for room := range joined {
		if r.leaveLocked(sessionID, room) {
			left++
		}
	}
	return left
}

// Close empties the room
func (r *Rooms) Close(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.members[room]
	n := 0
	for sessionID := range members {
		if r.leaveLocked(sessionID, room) {
			n++
		}
	}
	return n
}

func (r *Rooms) IsMember(sessionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[room][sessionID]
	return ok
}

func (r *Rooms) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[room])
}

func (r *Rooms) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Rooms) Broadcast(room string, ev OutboundEvent) int {
	return deliver(r.snapshot(room, 0), ev)
}

// BroadcastExcept skips every session owned by userID
func (r *Rooms) BroadcastExcept(room string, ev OutboundEvent, userID uint) int {
	return deliver(r.snapshot(room, userID), ev)
}

func (r *Rooms) snapshot(room string, exceptUser uint) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.members[room]
	out := make([]Session, 0, len(members))
	for _, s := range members {
		if exceptUser != 0 && s.UserID() == exceptUser {
			continue
		}
		out = append(out, s)
	}
	return out
}
