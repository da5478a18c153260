package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// fakeSession records everything sent to it
type fakeSession struct {
	id     string
	userID uint

	mu       sync.Mutex
	events   []OutboundEvent
	closed   bool
	rejected bool
}

func newFakeSession(userID uint) *fakeSession {
	return &fakeSession{id: uuid.NewString(), userID: userID}
}

func (f *fakeSession) ID() string   { return f.id }
func (f *fakeSession) UserID() uint { return f.userID }

func (f *fakeSession) Send(ev OutboundEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejected {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// named returns the events with the given wire name, oldest first
func (f *fakeSession) named(name string) []OutboundEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OutboundEvent
	for _, ev := range f.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSession) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = nil
}
