package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// GetByID returns nil when the conversation does not exist
func (r *ConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).First(&conv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindByPair returns the conversation for two users regardless of status
func (r *ConversationRepository) FindByPair(ctx context.Context, a, b uint) (*models.Conversation, error) {
	low, high := models.CanonicalPair(a, b)

	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", low, high).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindActiveByPair returns nil unless an active conversation links a and b
func (r *ConversationRepository) FindActiveByPair(ctx context.Context, a, b uint) (*models.Conversation, error) {
	conv, err := r.FindByPair(ctx, a, b)
	if err != nil || conv == nil || !conv.IsActive {
		return nil, err
	}
	return conv, nil
}

// LockActive re-reads the conversation holding a row lock for the rest of
// the transaction. It returns nil once the conversation is inactive.
func (r *ConversationRepository) LockActive(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND is_active = ?", id, true).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListActiveForUser returns every active conversation containing userID
func (r *ConversationRepository) ListActiveForUser(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("(user1_id = ? OR user2_id = ?) AND is_active = ?", userID, userID, true).
		Order("id ASC").
		Find(&convs).Error
	return convs, err
}

// Deactivate flips is_active off. Already inactive rows are left untouched.
func (r *ConversationRepository) Deactivate(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"deactivated_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// DeactivateAllForUser deactivates every active conversation of userID and
// returns the rows that were active before the update
func (r *ConversationRepository) DeactivateAllForUser(ctx context.Context, userID uint, at time.Time) ([]models.Conversation, error) {
	active, err := r.ListActiveForUser(ctx, userID)
	if err != nil || len(active) == 0 {
		return nil, err
	}

	ids := make([]uint, 0, len(active))
	for _, c := range active {
		ids = append(ids, c.ID)
	}

	err = r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_active":      false,
			"deactivated_at": at,
		}).Error
	if err != nil {
		return nil, err
	}
	return active, nil
}
