package realtime

import (
	"slices"
	"sync"
)

// Session is one live transport handle bound to an authenticated user
type Session interface {
	ID() string
	UserID() uint
	// Send queues the event without blocking and reports whether it was accepted
	Send(ev OutboundEvent) bool
	// Close terminates the transport; the owner calls Router.Disconnect
	Close()
}

// Registry maps users to their live sessions. A user may hold several
// sessions at once and is online while at least one remains.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byUser   map[uint]map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		byUser:   make(map[uint]map[string]Session),
	}
}

// Register adds the session and reports whether it is the user's first
func (r *Registry) Register(s Session) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID()]; exists {
		return false
	}

	r.sessions[s.ID()] = s
	userSessions, ok := r.byUser[s.UserID()]
	if !ok {
		userSessions = make(map[string]Session)
		r.byUser[s.UserID()] = userSessions
	}
	userSessions[s.ID()] = s

	return len(userSessions) == 1
}

// Unregister removes the session. last reports that the user has no
// sessions left; ok is false for unknown handles.
func (r *Registry) Unregister(sessionID string) (userID uint, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return 0, false, false
	}
	delete(r.sessions, sessionID)

	userID = s.UserID()
	userSessions := r.byUser[userID]
	delete(userSessions, sessionID)
	if len(userSessions) == 0 {
		delete(r.byUser, userID)
		return userID, true, true
	}
	return userID, false, true
}

func (r *Registry) SessionsFor(userID uint) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		out = append(out, s)
	}
	return out
}

func (r *Registry) IsOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUsers returns a sorted snapshot
func (r *Registry) OnlineUsers() []uint {
	r.mu.RLock()
	ids := make([]uint, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// SendToUser delivers to every session of userID
func (r *Registry) SendToUser(userID uint, ev OutboundEvent) int {
	return deliver(r.SessionsFor(userID), ev)
}

// BroadcastExcept delivers to every session not owned by userID
func (r *Registry) BroadcastExcept(userID uint, ev OutboundEvent) int {
	r.mu.RLock()
	targets := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.UserID() != userID {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	return deliver(targets, ev)
}

// deliver runs outside any lock so a slow session never stalls the registry
func deliver(targets []Session, ev OutboundEvent) int {
	sent := 0
	for _, s := range targets {
		if s.Send(ev) {
			sent++
		}
	}
	return sent
}
