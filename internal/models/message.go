package models

import (
	"slices"
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// Valid reports whether t is one of the supported message types
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio:
		return true
	}
	return false
}

// IsMedia reports whether the content column holds a media URL
func (t MessageType) IsMedia() bool {
	return t == MessageTypeImage || t == MessageTypeAudio
}

type Message struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	ConversationID uint        `gorm:"not null;index:idx_messages_conversation_created,priority:1" json:"match_id"`
	SenderID       uint        `gorm:"not null;index" json:"sender_id"`
	ReceiverID     uint        `gorm:"not null;index" json:"receiver_id"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Type           MessageType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	CreatedAt      time.Time   `gorm:"index:idx_messages_conversation_created,priority:2" json:"sent_at"`

	IsDelivered bool       `gorm:"not null;default:false" json:"is_delivered"`
	IsRead      bool       `gorm:"not null;default:false" json:"is_read"`
	EditedAt    *time.Time `json:"edited_at"`

	// Terminal: content is blanked when set
	IsDeletedForEveryone bool `gorm:"not null;default:false" json:"is_deleted_for_everyone"`

	Reactions Reactions `gorm:"type:text;serializer:json" json:"reactions"`
	ReplyToID *uint     `gorm:"index" json:"reply_to"`
}

// MessageDeletion hides one message for one viewer only
type MessageDeletion struct {
	ID        uint `gorm:"primaryKey"`
	MessageID uint `gorm:"not null;uniqueIndex:idx_message_user_delete"`
	UserID    uint `gorm:"not null;uniqueIndex:idx_message_user_delete;index"`
	CreatedAt time.Time
}

func (MessageDeletion) TableName() string {
	return "message_deletes"
}

// Reactions maps an emoji to the users who reacted with it
type Reactions map[string][]uint

// Toggle adds userID to the emoji's set, or removes it if already present.
// Empty sets are dropped so toggling twice restores the previous map.
// It returns true when the reaction was added.
func (r *Reactions) Toggle(emoji string, userID uint) bool {
	if *r == nil {
		*r = Reactions{}
	}
	users := (*r)[emoji]
	if i := slices.Index(users, userID); i >= 0 {
		users = append(users[:i:i], users[i+1:]...)
		if len(users) == 0 {
			delete(*r, emoji)
		} else {
			(*r)[emoji] = users
		}
		return false
	}
	(*r)[emoji] = append(slices.Clip(users), userID)
	return true
}

// Clone returns a deep copy
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = slices.Clone(users)
	}
	return out
}
