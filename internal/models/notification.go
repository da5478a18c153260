package models

import "time"

type NotificationType string

const (
	NotificationLike  NotificationType = "like"
	NotificationRose  NotificationType = "rose"
	NotificationMatch NotificationType = "match"
)

type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"not null;index" json:"user_id"`
	FromUserID uint             `gorm:"not null" json:"from_user_id"`
	Type       NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	Message    string           `gorm:"type:varchar(200)" json:"message"`
	IsRead     bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
