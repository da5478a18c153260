package repository

import (
	"context"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

func (r *BlockRepository) WithTx(tx *gorm.DB) *BlockRepository {
	return &BlockRepository{db: tx}
}

// IsBlockedEitherWay reports whether a blocked b or b blocked a
func (r *BlockRepository) IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_user_id = ?) OR (blocker_id = ? AND blocked_user_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// Create inserts the block; an existing block is not an error
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Block{BlockerID: blockerID, BlockedUserID: blockedID})
	return res.RowsAffected > 0, res.Error
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	return res.RowsAffected > 0, res.Error
}

func (r *BlockRepository) ListBlockedBy(ctx context.Context, blockerID uint) ([]models.Block, error) {
	var blocks []models.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}
