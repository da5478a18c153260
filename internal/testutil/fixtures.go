package testutil

import (
	"testing"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"gorm.io/gorm"
)

// CreateTestUser inserts a users row with the given ID
func CreateTestUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	user := &models.User{ID: id}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %d: %v", id, err)
	}
	return user
}

// CreateTestMatch inserts an active conversation between a and b
func CreateTestMatch(t *testing.T, db *gorm.DB, a, b uint) *models.Conversation {
	low, high := models.CanonicalPair(a, b)
	conv := &models.Conversation{
		User1ID:   low,
		User2ID:   high,
		IsActive:  true,
		MatchedAt: time.Now().UTC(),
	}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("Failed to create match %d-%d: %v", a, b, err)
	}
	return conv
}

// DeactivateTestMatch flips the conversation to inactive
func DeactivateTestMatch(t *testing.T, db *gorm.DB, conv *models.Conversation) {
	err := db.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Update("is_active", false).Error
	if err != nil {
		t.Fatalf("Failed to deactivate match %d: %v", conv.ID, err)
	}
	conv.IsActive = false
}

// CreateTestMessage inserts a text message with an explicit timestamp
func CreateTestMessage(t *testing.T, db *gorm.DB, conv *models.Conversation, senderID uint, content string, createdAt time.Time) *models.Message {
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     conv.Counterpart(senderID),
		Content:        content,
		Type:           models.MessageTypeText,
		CreatedAt:      createdAt.UTC(),
	}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}
	return msg
}
