package models

import "time"

// User is owned by the profile/auth collaborator. Only presence and
// moderation columns are read or written here.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	IsOnline  bool       `gorm:"not null;default:false" json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	IsBanned  bool       `gorm:"not null;default:false;index" json:"is_banned"`
	BanReason string     `gorm:"type:text" json:"ban_reason,omitempty"`
	BannedAt  *time.Time `json:"banned_at,omitempty"`
}

// Block is one directed entry of the block list
type Block struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BlockerID     uint      `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocker_id"`
	BlockedUserID uint      `gorm:"not null;uniqueIndex:idx_block_pair;index" json:"blocked_user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Block) TableName() string {
	return "user_blocks"
}
