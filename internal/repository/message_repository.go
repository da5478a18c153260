package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// GetByID returns nil when the message does not exist
func (r *MessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).First(&msg, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// LatestCreatedAt returns the newest timestamp in a conversation, or the
// zero time when it has no messages
func (r *MessageRepository) LatestCreatedAt(ctx context.Context, conversationID uint) (time.Time, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Select("created_at").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&msg).Error
	return msg.CreatedAt, err
}

// BelongsTo reports whether messageID is part of conversationID
func (r *MessageRepository) BelongsTo(ctx context.Context, messageID, conversationID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Count(&count).Error
	return count > 0, err
}

// ListVisible returns the conversation history as seen by viewerID, oldest
// first, excluding messages the viewer deleted for themselves
func (r *MessageRepository) ListVisible(ctx context.Context, conversationID, viewerID uint) ([]models.Message, error) {
	hidden := r.db.Model(&models.MessageDeletion{}).
		Select("message_id").
		Where("user_id = ?", viewerID)

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Where("id NOT IN (?)", hidden).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ?", ids).
		Update("is_delivered", true).Error
}

// MarkRead flags every unread message addressed to readerID in the
// conversation as read and returns the affected IDs in log order
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, readerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, readerID, false).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_read":      true,
			"is_delivered": true,
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpdateContent writes the new content and edit timestamp in one statement
func (r *MessageRepository) UpdateContent(ctx context.Context, id uint, content string, editedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"edited_at": editedAt,
		}).Error
}

// MarkDeletedForEveryone blanks the content. It reports false when the
// message was already deleted.
func (r *MessageRepository) MarkDeletedForEveryone(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND is_deleted_for_everyone = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted_for_everyone": true,
			"content":                 "",
		})
	return res.RowsAffected > 0, res.Error
}

// HideForUser records a deleted-for-me entry. Repeated calls are no-ops.
func (r *MessageRepository) HideForUser(ctx context.Context, messageID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MessageDeletion{MessageID: messageID, UserID: userID}).Error
}

func (r *MessageRepository) UpdateReactions(ctx context.Context, id uint, reactions models.Reactions) error {
	if reactions == nil {
		reactions = models.Reactions{}
	}
	return r.db.WithContext(ctx).
		Model(&models.Message{ID: id}).
		Select("Reactions").
		Updates(models.Message{Reactions: reactions}).Error
}
