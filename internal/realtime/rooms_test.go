package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoom(t *testing.T) {
	tests := []struct {
		room string
		kind RoomKind
		id   uint
	}{
		{"match_42", RoomConversation, 42},
		{"user_7", RoomPersonal, 7},
		{"match_", RoomEphemeral, 0},
		{"match_abc", RoomEphemeral, 0},
		{"user_0", RoomEphemeral, 0},
		{"lobby", RoomEphemeral, 0},
	}

	for _, tt := range tests {
		kind, id := ParseRoom(tt.room)
		assert.Equal(t, tt.kind, kind, tt.room)
		assert.Equal(t, tt.id, id, tt.room)
	}

	assert.Equal(t, "match_42", ConversationRoom(42))
	assert.Equal(t, "user_7", PersonalRoom(7))
}

func TestRooms_JoinIsIdempotent(t *testing.T) {
	r := NewRooms()
	s := newFakeSession(1)

	assert.True(t, r.Join(s, "match_1"))
	assert.False(t, r.Join(s, "match_1"))
	assert.Equal(t, 1, r.Size("match_1"))
	assert.True(t, r.IsMember(s.ID(), "match_1"))
}

func TestRooms_LeaveAndLeaveAll(t *testing.T) {
	r := NewRooms()
	s := newFakeSession(1)
	other := newFakeSession(2)

	r.Join(s, "match_1")
	r.Join(s, "match_2")
	r.Join(s, "user_1")
	r.Join(other, "match_1")

	assert.True(t, r.Leave(s.ID(), "match_2"))
	assert.False(t, r.Leave(s.ID(), "match_2"))
	assert.Zero(t, r.Size("match_2"))

	assert.Equal(t, 2, r.LeaveAll(s.ID()))
	assert.False(t, r.IsMember(s.ID(), "match_1"))
	assert.True(t, r.IsMember(other.ID(), "match_1"))
	assert.Equal(t, 1, r.RoomCount())
}

func TestRooms_BroadcastExceptSkipsAllSessionsOfUser(t *testing.T) {
	r := NewRooms()
	typist := newFakeSession(1)
	typistTablet := newFakeSession(1)
	peer := newFakeSession(2)
	for _, s := range []*fakeSession{typist, typistTablet, peer} {
		r.Join(s, "match_5")
	}

	sent := r.BroadcastExcept("match_5", UserTyping{UserID: 1, Room: "match_5"}, 1)

	assert.Equal(t, 1, sent)
	assert.Empty(t, typist.named("user_typing"))
	assert.Empty(t, typistTablet.named("user_typing"))
	assert.Len(t, peer.named("user_typing"), 1)

	assert.Equal(t, 3, r.Broadcast("match_5", MessageDeleted{MessageID: 1, MatchID: 5}))
	assert.Zero(t, r.Broadcast("empty", MessageDeleted{}))
}

func TestRooms_Close(t *testing.T) {
	r := NewRooms()
	a, b := newFakeSession(1), newFakeSession(2)
	r.Join(a, "match_9")
	r.Join(b, "match_9")
	r.Join(a, "user_1")

	assert.Equal(t, 2, r.Close("match_9"))
	assert.Zero(t, r.Size("match_9"))
	assert.True(t, r.IsMember(a.ID(), "user_1"))
}
