package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/deepmatch-realtime/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// IsAnyBanned reports whether at least one of ids is banned. Users without a
// row are treated as not banned.
func (r *UserRepository) IsAnyBanned(ctx context.Context, ids ...uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ? AND is_banned = ?", ids, true).
		Count(&count).Error
	return count > 0, err
}

// SetPresence upserts the online flag and last-seen timestamp
func (r *UserRepository) SetPresence(ctx context.Context, id uint, online bool, at time.Time) error {
	user := models.User{ID: id, IsOnline: online, LastSeen: &at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen"}),
		}).
		Create(&user).Error
}

// SetBan upserts the moderation flags
func (r *UserRepository) SetBan(ctx context.Context, id uint, banned bool, reason string, at time.Time) error {
	user := models.User{ID: id, IsBanned: banned, BanReason: reason}
	if banned {
		user.BannedAt = &at
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_banned", "ban_reason", "banned_at"}),
		}).
		Create(&user).Error
}
