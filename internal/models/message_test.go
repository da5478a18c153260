package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactions_ToggleRoundTrip(t *testing.T) {
	original := Reactions{"❤️": {1}, "😂": {2, 3}}
	r := original.Clone()

	assert.True(t, r.Toggle("❤️", 7))
	assert.Equal(t, []uint{1, 7}, r["❤️"])

	assert.False(t, r.Toggle("❤️", 7))
	assert.Equal(t, original, r)
}

func TestReactions_ToggleDropsEmptySet(t *testing.T) {
	var r Reactions

	assert.True(t, r.Toggle("🔥", 4))
	assert.Equal(t, Reactions{"🔥": {4}}, r)

	assert.False(t, r.Toggle("🔥", 4))
	assert.Empty(t, r)
	_, exists := r["🔥"]
	assert.False(t, exists)
}

func TestReactions_ToggleDoesNotAliasClone(t *testing.T) {
	original := Reactions{"👍": {1, 2, 3}}
	r := original.Clone()

	r.Toggle("👍", 2)

	assert.Equal(t, []uint{1, 2, 3}, original["👍"])
	assert.Equal(t, []uint{1, 3}, r["👍"])
}

func TestMessageType_Valid(t *testing.T) {
	assert.True(t, MessageTypeText.Valid())
	assert.True(t, MessageTypeImage.Valid())
	assert.True(t, MessageTypeAudio.Valid())
	assert.False(t, MessageType("video").Valid())
	assert.True(t, MessageTypeAudio.IsMedia())
	assert.False(t, MessageTypeText.IsMedia())
}

func TestConversation_Participants(t *testing.T) {
	a, b := CanonicalPair(9, 4)
	assert.Equal(t, uint(4), a)
	assert.Equal(t, uint(9), b)

	c := Conversation{User1ID: a, User2ID: b}
	assert.True(t, c.Includes(9))
	assert.False(t, c.Includes(5))
	assert.Equal(t, uint(4), c.Counterpart(9))
	assert.Equal(t, uint(9), c.Counterpart(4))
}
